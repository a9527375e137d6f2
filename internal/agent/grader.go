package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/pkg/logger"
)

// Verdict is the grader's judgment of whether retrieved excerpts can ground
// an answer to the query.
type Verdict struct {
	Sufficient bool
	Confidence float64
}

// Grader asks the LLM whether the excerpts answer the question. Any service
// failure degrades to an insufficient verdict so the pipeline keeps moving
// instead of aborting.
type Grader struct {
	completer Completer
}

func NewGrader(completer Completer) *Grader {
	return &Grader{completer: completer}
}

const graderSystemPrompt = `You judge whether retrieved document excerpts contain enough information to answer a customer question.
Reply with exactly one line: "yes" or "no", followed by a confidence between 0.0 and 1.0.
Example: "yes 0.85"`

var verdictPattern = regexp.MustCompile(`(?i)\b(yes|no)\b(?:[^\d]*([01](?:\.\d+)?))?`)

func (g *Grader) Grade(ctx context.Context, query string, excerpts []retrieval.Excerpt) Verdict {
	// Nothing retrieved means nothing to grade. Skip the service call.
	if len(excerpts) == 0 {
		return Verdict{Sufficient: false, Confidence: 1.0}
	}

	var sb strings.Builder
	for i, e := range excerpts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, e.Text)
	}

	user := fmt.Sprintf("Question: %s\n\nExcerpts:\n%s", query, sb.String())

	reply, err := g.completer.Complete(ctx, graderSystemPrompt, user)
	if err != nil {
		logger.Warn("Grading failed, treating excerpts as insufficient", zap.Error(err))
		return Verdict{Sufficient: false, Confidence: 0}
	}

	return parseVerdict(reply)
}

func parseVerdict(reply string) Verdict {
	match := verdictPattern.FindStringSubmatch(reply)
	if match == nil {
		logger.Warn("Unparseable grading reply", zap.String("reply", reply))
		return Verdict{Sufficient: false, Confidence: 0}
	}

	v := Verdict{
		Sufficient: strings.EqualFold(match[1], "yes"),
		Confidence: 0.5,
	}
	if match[2] != "" {
		if conf, err := strconv.ParseFloat(match[2], 64); err == nil {
			v.Confidence = conf
		}
	}
	return v
}
