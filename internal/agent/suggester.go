package agent

import (
	"context"
	"fmt"
	"strings"
)

// Suggester proposes follow-up questions after an answer. Enrichment only;
// the caller treats failure as an empty list.
type Suggester struct {
	completer Completer
}

func NewSuggester(completer Completer) *Suggester {
	return &Suggester{completer: completer}
}

const suggesterSystemPrompt = `Given a customer question and the answer they received, suggest up to three short follow-up questions the customer might ask next.
Reply with one question per line, no numbering or bullets.`

func (s *Suggester) SuggestFollowUps(ctx context.Context, question, answer string) ([]string, error) {
	user := fmt.Sprintf("Question: %s\n\nAnswer: %s", question, answer)

	reply, err := s.completer.Complete(ctx, suggesterSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("suggestion failed: %w", err)
	}

	var suggestions []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789. "))
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
		if len(suggestions) == 3 {
			break
		}
	}
	return suggestions, nil
}
