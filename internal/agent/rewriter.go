package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/support-agent/backend/internal/retrieval"
)

// Rewriter reformulates a query that retrieved insufficient material,
// steering the next retrieval attempt away from what was already seen.
type Rewriter struct {
	completer Completer
}

func NewRewriter(completer Completer) *Rewriter {
	return &Rewriter{completer: completer}
}

const rewriterSystemPrompt = `You rewrite customer support questions to improve document retrieval.
The previous phrasing retrieved excerpts that did not answer the question.
Produce one alternative phrasing using different key terms. Reply with the rewritten question only.`

func (r *Rewriter) Rewrite(ctx context.Context, original string, seen []retrieval.Excerpt) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %s\n", original)

	if len(seen) > 0 {
		sb.WriteString("\nExcerpts that did not help:\n")
		for i, e := range seen {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "- %s\n", truncate(e.Text, 200))
		}
	}

	rewritten, err := r.completer.Complete(ctx, rewriterSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("rewrite failed: %w", err)
	}

	rewritten = strings.Trim(strings.TrimSpace(rewritten), `"`)
	if rewritten == "" {
		return "", fmt.Errorf("rewrite produced empty query")
	}
	return rewritten, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
