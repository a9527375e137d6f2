package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/support-agent/backend/internal/retrieval"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestGradeEmptyExcerptsSkipsService(t *testing.T) {
	fc := &fakeCompleter{reply: "yes 0.9"}
	g := NewGrader(fc)

	v := g.Grade(context.Background(), "how do refunds work", nil)

	assert.False(t, v.Sufficient)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, 0, fc.calls)
}

func TestGradeSufficient(t *testing.T) {
	fc := &fakeCompleter{reply: "yes 0.85"}
	g := NewGrader(fc)

	v := g.Grade(context.Background(), "how do refunds work", []retrieval.Excerpt{
		{Text: "Refunds are issued within 14 days of purchase."},
	})

	assert.True(t, v.Sufficient)
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
	assert.Equal(t, 1, fc.calls)
}

func TestGradeServiceFailureIsInsufficient(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("upstream timeout")}
	g := NewGrader(fc)

	v := g.Grade(context.Background(), "how do refunds work", []retrieval.Excerpt{
		{Text: "some excerpt"},
	})

	assert.False(t, v.Sufficient)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		reply      string
		sufficient bool
		confidence float64
	}{
		{"yes 0.9", true, 0.9},
		{"no 0.7", false, 0.7},
		{"Yes, confidence: 0.75", true, 0.75},
		{"NO", false, 0.5},
		{"yes", true, 0.5},
		{"The excerpts are relevant. yes 1.0", true, 1.0},
		{"garbage reply", false, 0},
	}

	for _, tc := range cases {
		v := parseVerdict(tc.reply)
		assert.Equal(t, tc.sufficient, v.Sufficient, tc.reply)
		assert.InDelta(t, tc.confidence, v.Confidence, 0.001, tc.reply)
	}
}
