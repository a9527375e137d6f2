package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/support-agent/backend/pkg/logger"
)

// LanguageService covers the language-aware enrichment steps: detection,
// translation, and sentiment scoring.
type LanguageService struct {
	completer Completer
}

func NewLanguageService(completer Completer) *LanguageService {
	return &LanguageService{completer: completer}
}

const detectSystemPrompt = `Identify the language of the text. Reply with the ISO 639-1 two-letter code only, for example "en" or "es".`

var isoCodePattern = regexp.MustCompile(`\b([a-z]{2})\b`)

// DetectLanguage returns the ISO 639-1 code of the text, or "unknown" when
// detection fails. Detection never fails the run.
func (l *LanguageService) DetectLanguage(ctx context.Context, text string) string {
	reply, err := l.completer.Complete(ctx, detectSystemPrompt, text)
	if err != nil {
		logger.Warn("Language detection failed", zap.Error(err))
		return "unknown"
	}

	match := isoCodePattern.FindStringSubmatch(strings.ToLower(reply))
	if match == nil {
		return "unknown"
	}
	return match[1]
}

const translateSystemPrompt = `Translate the text into the requested language. Reply with the translation only.`

func (l *LanguageService) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	user := fmt.Sprintf("Target language: %s\n\nText: %s", targetLanguage, text)

	translated, err := l.completer.Complete(ctx, translateSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	return strings.TrimSpace(translated), nil
}

const sentimentSystemPrompt = `Score the sentiment of the text. Reply with one line: a label (positive, neutral, or negative) and a score between -1.0 and 1.0.
Example: "negative -0.6"`

var sentimentPattern = regexp.MustCompile(`(?i)\b(positive|neutral|negative)\b(?:[^\d-]*(-?[01](?:\.\d+)?))?`)

// ScoreSentiment labels and scores the text. Failure yields neutral 0.0;
// sentiment is enrichment, never a reason to fail a run.
func (l *LanguageService) ScoreSentiment(ctx context.Context, text string) (label string, score float64) {
	reply, err := l.completer.Complete(ctx, sentimentSystemPrompt, text)
	if err != nil {
		logger.Warn("Sentiment scoring failed", zap.Error(err))
		return "neutral", 0.0
	}

	match := sentimentPattern.FindStringSubmatch(reply)
	if match == nil {
		return "neutral", 0.0
	}

	label = strings.ToLower(match[1])
	if match[2] != "" {
		if parsed, err := strconv.ParseFloat(match[2], 64); err == nil {
			score = clamp(parsed, -1.0, 1.0)
		}
	}
	return label, score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
