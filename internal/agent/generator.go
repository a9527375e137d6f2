package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/internal/storage/models"
)

// Generator produces the final answer from the query and whatever excerpts
// survived grading. Unlike the other adapters its failure is fatal to the
// run; there is no useful fallback for a missing answer.
type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

const generatorSystemPrompt = `You are a customer support assistant. Answer the question using the numbered excerpts when they are relevant, citing them as [1], [2] and so on.
If no excerpts are provided or none are relevant, answer from general knowledge and say so.
Be concise and direct.`

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

func (g *Generator) Generate(ctx context.Context, query string, excerpts []retrieval.Excerpt) (string, []models.Attribution, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", query)

	if len(excerpts) > 0 {
		sb.WriteString("\nExcerpts:\n")
		for i, e := range excerpts {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, e.Text)
		}
	}

	answer, err := g.completer.Complete(ctx, generatorSystemPrompt, sb.String())
	if err != nil {
		return "", nil, fmt.Errorf("generation failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, fmt.Errorf("generation produced empty answer")
	}

	return answer, attributeSources(answer, excerpts), nil
}

// attributeSources maps [n] citations in the answer back to their excerpts.
// When the answer cites nothing explicit, every excerpt that informed it is
// attributed.
func attributeSources(answer string, excerpts []retrieval.Excerpt) []models.Attribution {
	if len(excerpts) == 0 {
		return nil
	}

	cited := map[int]bool{}
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil && n >= 1 && n <= len(excerpts) {
			cited[n-1] = true
		}
	}

	var attribution []models.Attribution
	for i, e := range excerpts {
		if len(cited) > 0 && !cited[i] {
			continue
		}
		attribution = append(attribution, models.Attribution{
			SourceID: e.SourceID,
			Preview:  truncate(e.Text, 160),
			Score:    e.Score,
		})
	}
	return attribution
}
