package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreSentimentParsing(t *testing.T) {
	cases := []struct {
		reply string
		label string
		score float64
	}{
		{"negative -0.6", "negative", -0.6},
		{"positive 0.8", "positive", 0.8},
		{"neutral 0.0", "neutral", 0.0},
		{"The sentiment is negative, score -0.4", "negative", -0.4},
		{"positive", "positive", 0.0},
	}

	for _, tc := range cases {
		fc := &fakeCompleter{reply: tc.reply}
		l := NewLanguageService(fc)

		label, score := l.ScoreSentiment(context.Background(), "some text")
		assert.Equal(t, tc.label, label, tc.reply)
		assert.InDelta(t, tc.score, score, 0.001, tc.reply)
	}
}

func TestScoreSentimentFailureIsNeutral(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("upstream timeout")}
	l := NewLanguageService(fc)

	label, score := l.ScoreSentiment(context.Background(), "some text")
	assert.Equal(t, "neutral", label)
	assert.Equal(t, 0.0, score)
}

func TestDetectLanguage(t *testing.T) {
	fc := &fakeCompleter{reply: "es"}
	l := NewLanguageService(fc)
	assert.Equal(t, "es", l.DetectLanguage(context.Background(), "¿Cómo restablezco mi contraseña?"))

	fc = &fakeCompleter{err: errors.New("upstream timeout")}
	l = NewLanguageService(fc)
	assert.Equal(t, "unknown", l.DetectLanguage(context.Background(), "hello"))
}
