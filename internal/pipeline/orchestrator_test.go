package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/internal/storage/models"
)

type fakeRouter struct {
	destination agent.Destination
}

func (f *fakeRouter) Route(query string) agent.Destination { return f.destination }

type fakeGrader struct {
	verdicts []agent.Verdict
	calls    int
}

func (f *fakeGrader) Grade(ctx context.Context, query string, excerpts []retrieval.Excerpt) agent.Verdict {
	v := f.verdicts[f.calls%len(f.verdicts)]
	f.calls++
	return v
}

type fakeRewriter struct {
	rewritten string
	err       error
	calls     int
}

func (f *fakeRewriter) Rewrite(ctx context.Context, original string, seen []retrieval.Excerpt) (string, error) {
	f.calls++
	return f.rewritten, f.err
}

type fakeGenerator struct {
	answer      string
	attribution []models.Attribution
	err         error
	calls       int
}

func (f *fakeGenerator) Generate(ctx context.Context, query string, excerpts []retrieval.Excerpt) (string, []models.Attribution, error) {
	f.calls++
	return f.answer, f.attribution, f.err
}

type fakeLanguage struct{}

func (f *fakeLanguage) DetectLanguage(ctx context.Context, text string) string { return "en" }
func (f *fakeLanguage) Translate(ctx context.Context, text, target string) (string, error) {
	return text, nil
}
func (f *fakeLanguage) ScoreSentiment(ctx context.Context, text string) (string, float64) {
	return "neutral", 0.0
}

type fakeSuggester struct {
	suggestions []string
}

func (f *fakeSuggester) SuggestFollowUps(ctx context.Context, q, a string) ([]string, error) {
	return f.suggestions, nil
}

type fakeRetriever struct {
	excerpts []retrieval.Excerpt
	queries  []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) ([]retrieval.Excerpt, error) {
	f.queries = append(f.queries, query)
	return f.excerpts, nil
}

type fakeCache struct {
	entries map[string]*models.CacheEntry
	stores  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.CacheEntry)}
}

func (f *fakeCache) Lookup(ctx context.Context, fp string) (*models.CacheEntry, error) {
	e, ok := f.entries[fp]
	if !ok {
		return nil, nil
	}
	e.HitCount++
	cp := *e
	return &cp, nil
}

func (f *fakeCache) Store(ctx context.Context, e *models.CacheEntry) {
	f.stores++
	cp := *e
	cp.HitCount = 0
	f.entries[e.Fingerprint] = &cp
}

type fakeLedger struct {
	runs       []*models.RunRecord
	sentiments []*models.SentimentObservation
}

func (f *fakeLedger) RecordRun(ctx context.Context, r *models.RunRecord) { f.runs = append(f.runs, r) }
func (f *fakeLedger) RecordSentiment(ctx context.Context, o *models.SentimentObservation) {
	f.sentiments = append(f.sentiments, o)
}

type fakeConversations struct {
	messages []string
}

func (f *fakeConversations) EnsureConversation(ctx context.Context, id, customerID string) error {
	return nil
}
func (f *fakeConversations) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	f.messages = append(f.messages, role+": "+content)
	return nil
}

type deps struct {
	router    *fakeRouter
	grader    *fakeGrader
	rewriter  *fakeRewriter
	generator *fakeGenerator
	kb        *fakeRetriever
	web       *fakeRetriever
	cache     *fakeCache
	ledger    *fakeLedger
	convs     *fakeConversations
}

func newDeps() *deps {
	return &deps{
		router: &fakeRouter{destination: agent.DestKnowledgeBase},
		grader: &fakeGrader{verdicts: []agent.Verdict{{Sufficient: true, Confidence: 0.9}}},
		rewriter: &fakeRewriter{
			rewritten: "alternative phrasing of the question",
		},
		generator: &fakeGenerator{answer: "You can reset it in account settings."},
		kb: &fakeRetriever{excerpts: []retrieval.Excerpt{
			{Text: "Passwords are reset from account settings.", SourceID: "doc-1", Score: 0.8},
		}},
		web:    &fakeRetriever{},
		cache:  newFakeCache(),
		ledger: &fakeLedger{},
		convs:  &fakeConversations{},
	}
}

func newOrchestrator(d *deps, cfg Config) *Orchestrator {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxRewrites == 0 {
		cfg.MaxRewrites = 1
	}
	return NewOrchestrator(
		d.router, d.grader, d.rewriter, d.generator,
		&fakeLanguage{}, &fakeSuggester{suggestions: []string{"How long does it take?"}},
		d.kb, d.web, d.cache, d.ledger, d.convs, cfg,
	)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	o := newOrchestrator(newDeps(), Config{})

	_, err := o.Ask(context.Background(), Request{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAskSecondCallServedFromCache(t *testing.T) {
	d := newDeps()
	o := newOrchestrator(d, Config{})
	ctx := context.Background()

	first, err := o.Ask(ctx, Request{Question: "How do I reset my password?"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, d.generator.calls)

	second, err := o.Ask(ctx, Request{Question: "how do i RESET my password?"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.SuggestedQuestions, second.SuggestedQuestions)

	// No second pipeline run.
	assert.Equal(t, 1, d.generator.calls)

	// Both runs land in the ledger, the second marked from_cache.
	require.Len(t, d.ledger.runs, 2)
	assert.False(t, d.ledger.runs[0].FromCache)
	assert.True(t, d.ledger.runs[1].FromCache)
	assert.Equal(t, 0, d.ledger.runs[1].DocumentsRetrieved)
}

func TestAskZeroExcerptsStillCompletes(t *testing.T) {
	d := newDeps()
	d.kb.excerpts = nil
	d.grader.verdicts = []agent.Verdict{{Sufficient: false, Confidence: 1.0}}
	d.generator.answer = "I don't have documentation on that, but generally..."
	o := newOrchestrator(d, Config{})

	resp, err := o.Ask(context.Background(), Request{Question: "something obscure"})
	require.NoError(t, err)

	assert.Empty(t, resp.Attribution)
	assert.NotEmpty(t, resp.Answer)

	joined := strings.Join(resp.ReasoningTrace, " | ")
	assert.Contains(t, joined, "low-confidence grounding")
}

func TestAskGeneratorFailureIsFatal(t *testing.T) {
	d := newDeps()
	d.generator.err = errors.New("model unavailable")
	o := newOrchestrator(d, Config{})

	_, err := o.Ask(context.Background(), Request{Question: "How do I reset my password?"})
	assert.ErrorIs(t, err, ErrGenerationFailed)

	// A failed run leaves no trace in cache or ledger.
	assert.Equal(t, 0, d.cache.stores)
	assert.Empty(t, d.ledger.runs)
	assert.Empty(t, d.convs.messages)
}

func TestAskRewriteBounded(t *testing.T) {
	d := newDeps()
	d.grader.verdicts = []agent.Verdict{{Sufficient: false, Confidence: 0.9}}
	o := newOrchestrator(d, Config{MaxRewrites: 1})

	resp, err := o.Ask(context.Background(), Request{Question: "How do I reset my password?"})
	require.NoError(t, err)

	assert.Equal(t, 1, d.rewriter.calls)
	require.Len(t, d.ledger.runs, 1)
	assert.Equal(t, 1, d.ledger.runs[0].RewriteAttempts)

	joined := strings.Join(resp.ReasoningTrace, " | ")
	assert.Contains(t, joined, "low-confidence grounding")
}

func TestAskNoRewriteWhenSufficient(t *testing.T) {
	d := newDeps()
	o := newOrchestrator(d, Config{MaxRewrites: 1})

	_, err := o.Ask(context.Background(), Request{Question: "How do I reset my password?"})
	require.NoError(t, err)

	assert.Equal(t, 0, d.rewriter.calls)
	require.Len(t, d.ledger.runs, 1)
	assert.Equal(t, 0, d.ledger.runs[0].RewriteAttempts)
}

func TestAskDuplicateRewriteStopsLoop(t *testing.T) {
	d := newDeps()
	d.grader.verdicts = []agent.Verdict{{Sufficient: false, Confidence: 0.9}}
	d.rewriter.rewritten = "  How do I  reset my PASSWORD?  "
	o := newOrchestrator(d, Config{MaxRewrites: 3})

	_, err := o.Ask(context.Background(), Request{Question: "How do I reset my password?"})
	require.NoError(t, err)

	// The rewrite normalized to the original question, so only one attempt.
	assert.Equal(t, 1, d.rewriter.calls)
	assert.Equal(t, 0, d.ledger.runs[0].RewriteAttempts)
}

func TestAskDirectAnswerSkipsRetrieval(t *testing.T) {
	d := newDeps()
	d.router.destination = agent.DestDirectAnswer
	d.generator.answer = "Hello! How can I help?"
	o := newOrchestrator(d, Config{})

	resp, err := o.Ask(context.Background(), Request{Question: "hello"})
	require.NoError(t, err)

	assert.Empty(t, d.kb.queries)
	assert.Empty(t, d.web.queries)
	assert.Equal(t, 0, d.grader.calls)
	assert.Empty(t, resp.Attribution)
}

func TestAskWebSearchRouting(t *testing.T) {
	d := newDeps()
	d.router.destination = agent.DestWebSearch
	d.web.excerpts = []retrieval.Excerpt{
		{Text: "Status page: all systems operational.", SourceID: "https://status.example.com", Score: 1.0},
	}
	o := newOrchestrator(d, Config{})

	_, err := o.Ask(context.Background(), Request{Question: "any news about the outage today"})
	require.NoError(t, err)

	assert.Len(t, d.web.queries, 1)
	assert.Empty(t, d.kb.queries)
}

func TestAskRecordsSentimentForBothSubjects(t *testing.T) {
	d := newDeps()
	o := newOrchestrator(d, Config{})

	_, err := o.Ask(context.Background(), Request{Question: "How do I reset my password?"})
	require.NoError(t, err)

	require.Len(t, d.ledger.sentiments, 2)
	subjects := []string{d.ledger.sentiments[0].Subject, d.ledger.sentiments[1].Subject}
	assert.ElementsMatch(t, []string{"query", "response"}, subjects)
}
