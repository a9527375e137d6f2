package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
	"github.com/support-agent/backend/pkg/utils"
)

var (
	ErrEmptyQuestion    = errors.New("question must not be empty")
	ErrGenerationFailed = errors.New("answer generation failed")
)

type Router interface {
	Route(query string) agent.Destination
}

type Grader interface {
	Grade(ctx context.Context, query string, excerpts []retrieval.Excerpt) agent.Verdict
}

type Rewriter interface {
	Rewrite(ctx context.Context, original string, seen []retrieval.Excerpt) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, query string, excerpts []retrieval.Excerpt) (string, []models.Attribution, error)
}

type Language interface {
	DetectLanguage(ctx context.Context, text string) string
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	ScoreSentiment(ctx context.Context, text string) (label string, score float64)
}

type Suggester interface {
	SuggestFollowUps(ctx context.Context, question, answer string) ([]string, error)
}

type Cache interface {
	Lookup(ctx context.Context, fingerprint string) (*models.CacheEntry, error)
	Store(ctx context.Context, e *models.CacheEntry)
}

type Ledger interface {
	RecordRun(ctx context.Context, r *models.RunRecord)
	RecordSentiment(ctx context.Context, o *models.SentimentObservation)
}

type ConversationStore interface {
	EnsureConversation(ctx context.Context, id, customerID string) error
	AppendMessage(ctx context.Context, conversationID, role, content string) error
}

type Config struct {
	RetrievalK     int
	MaxRewrites    int
	RequestTimeout time.Duration
}

// Orchestrator runs one question through the full pipeline: cache check,
// language detection, routing, retrieval with graded rewrites, generation,
// enrichment, and persistence.
type Orchestrator struct {
	router        Router
	grader        Grader
	rewriter      Rewriter
	generator     Generator
	language      Language
	suggester     Suggester
	knowledgeBase retrieval.Retriever
	webSearch     retrieval.Retriever
	cache         Cache
	ledger        Ledger
	conversations ConversationStore
	cfg           Config
}

func NewOrchestrator(
	router Router,
	grader Grader,
	rewriter Rewriter,
	generator Generator,
	language Language,
	suggester Suggester,
	knowledgeBase retrieval.Retriever,
	webSearch retrieval.Retriever,
	cache Cache,
	ledger Ledger,
	conversations ConversationStore,
	cfg Config,
) *Orchestrator {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 4
	}
	if cfg.MaxRewrites < 0 {
		cfg.MaxRewrites = 0
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &Orchestrator{
		router:        router,
		grader:        grader,
		rewriter:      rewriter,
		generator:     generator,
		language:      language,
		suggester:     suggester,
		knowledgeBase: knowledgeBase,
		webSearch:     webSearch,
		cache:         cache,
		ledger:        ledger,
		conversations: conversations,
		cfg:           cfg,
	}
}

type Request struct {
	Question       string
	ConversationID string
	CustomerID     string
}

type Response struct {
	ConversationID     string               `json:"conversation_id"`
	RunID              string               `json:"run_id"`
	Answer             string               `json:"answer"`
	Attribution        []models.Attribution `json:"attribution"`
	ReasoningTrace     []string             `json:"reasoning_trace"`
	FromCache          bool                 `json:"from_cache"`
	SentimentLabel     string               `json:"sentiment"`
	SuggestedQuestions []string             `json:"suggested_questions"`
	Language           string               `json:"language"`
	LatencyMS          int                  `json:"latency_ms"`
}

// Ask processes one question end to end. Only generation failure and an
// empty question are fatal; every other stage degrades to a safe default and
// the run completes.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	started := time.Now()
	runID := uuid.New().String()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	tr := &trace{}
	fingerprint := utils.Fingerprint(question)

	entry, err := o.cache.Lookup(ctx, fingerprint)
	if err == nil && entry != nil {
		metrics.CacheHits.Inc()
		tr.add("cache hit for fingerprint %s (hit %d)", fingerprint[:12], entry.HitCount)
		return o.finishFromCache(ctx, req, entry, conversationID, runID, question, started, tr), nil
	}
	metrics.CacheMisses.Inc()
	tr.add("cache miss, running full pipeline")

	lang := o.language.DetectLanguage(ctx, question)
	tr.add("detected language: %s", lang)

	destination := o.router.Route(question)
	tr.add("routed to %s", destination)

	excerpts, rewrites, lowConfidence := o.retrieveWithRewrites(ctx, question, destination, tr)

	answer, attribution, err := o.generator.Generate(ctx, question, excerpts)
	if err != nil {
		logger.Error("Generation failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		metrics.PipelineTotal.WithLabelValues("generation_failed").Inc()
		return nil, errors.Join(ErrGenerationFailed, err)
	}
	tr.add("generated answer with %d attributed sources", len(attribution))
	if lowConfidence {
		tr.add("low-confidence grounding: retrieval never satisfied the grader")
	}

	if lang != "en" && lang != "unknown" {
		if translated, err := o.language.Translate(ctx, answer, lang); err == nil && translated != "" {
			answer = translated
			tr.add("translated answer to %s", lang)
		} else if err != nil {
			logger.Warn("Answer translation failed", zap.String("language", lang), zap.Error(err))
		}
	}

	sentimentLabel, suggestions := o.enrich(ctx, conversationID, question, answer, tr)

	o.persist(ctx, req, persistArgs{
		runID:          runID,
		conversationID: conversationID,
		fingerprint:    fingerprint,
		question:       question,
		answer:         answer,
		attribution:    attribution,
		sentiment:      sentimentLabel,
		suggestions:    suggestions,
		documents:      len(excerpts),
		rewrites:       rewrites,
		started:        started,
	})

	latency := time.Since(started)
	metrics.PipelineDuration.WithLabelValues(destination.String()).Observe(latency.Seconds())
	metrics.PipelineTotal.WithLabelValues("completed").Inc()
	metrics.DocumentsRetrieved.Observe(float64(len(excerpts)))

	return &Response{
		ConversationID:     conversationID,
		RunID:              runID,
		Answer:             answer,
		Attribution:        attribution,
		ReasoningTrace:     tr.Steps(),
		SentimentLabel:     sentimentLabel,
		SuggestedQuestions: suggestions,
		Language:           lang,
		LatencyMS:          int(latency.Milliseconds()),
	}, nil
}

// retrieveWithRewrites runs the retrieve/grade loop, rewriting the query at
// most MaxRewrites times. A rewrite that normalizes to a query already tried
// ends the loop instead of burning the attempt on a duplicate.
func (o *Orchestrator) retrieveWithRewrites(ctx context.Context, question string, destination agent.Destination, tr *trace) (excerpts []retrieval.Excerpt, rewrites int, lowConfidence bool) {
	if destination == agent.DestDirectAnswer {
		tr.add("direct answer, skipping retrieval")
		return nil, 0, false
	}

	currentQuery := question
	attempted := map[string]bool{utils.NormalizeQuery(question): true}

	for {
		excerpts = o.retrieve(ctx, destination, currentQuery, tr)

		verdict := o.grader.Grade(ctx, currentQuery, excerpts)
		tr.add("graded %d excerpts: sufficient=%t confidence=%.2f", len(excerpts), verdict.Sufficient, verdict.Confidence)

		if verdict.Sufficient {
			return excerpts, rewrites, false
		}
		if rewrites >= o.cfg.MaxRewrites {
			return excerpts, rewrites, true
		}

		rewritten, err := o.rewriter.Rewrite(ctx, question, excerpts)
		if err != nil {
			logger.Warn("Rewrite failed, proceeding with current excerpts", zap.Error(err))
			return excerpts, rewrites, true
		}

		normalized := utils.NormalizeQuery(rewritten)
		if attempted[normalized] {
			tr.add("rewrite repeated an earlier phrasing, stopping")
			return excerpts, rewrites, true
		}
		attempted[normalized] = true

		rewrites++
		metrics.RewriteAttempts.Inc()
		currentQuery = rewritten
		tr.add("rewrote query to: %s", rewritten)
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, destination agent.Destination, query string, tr *trace) []retrieval.Excerpt {
	var retriever retrieval.Retriever
	switch destination {
	case agent.DestWebSearch:
		retriever = o.webSearch
	default:
		retriever = o.knowledgeBase
	}
	if retriever == nil {
		tr.add("no retriever for %s", destination)
		return nil
	}

	excerpts, err := retriever.Retrieve(ctx, query, o.cfg.RetrievalK)
	if err != nil {
		logger.Warn("Retrieval failed, continuing with no excerpts",
			zap.String("destination", destination.String()),
			zap.Error(err),
		)
		tr.add("retrieval from %s failed", destination)
		return nil
	}

	tr.add("retrieved %d excerpts from %s", len(excerpts), destination)
	return excerpts
}

// enrich scores sentiment for the query and the answer and asks for
// follow-up suggestions, in parallel. All of it is best-effort.
func (o *Orchestrator) enrich(ctx context.Context, conversationID, question, answer string, tr *trace) (sentimentLabel string, suggestions []string) {
	var (
		wg             sync.WaitGroup
		queryLabel     string
		queryScore     float64
		responseLabel  string
		responseScore  float64
		suggestionsErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		queryLabel, queryScore = o.language.ScoreSentiment(ctx, question)
	}()
	go func() {
		defer wg.Done()
		responseLabel, responseScore = o.language.ScoreSentiment(ctx, answer)
	}()
	go func() {
		defer wg.Done()
		suggestions, suggestionsErr = o.suggester.SuggestFollowUps(ctx, question, answer)
	}()
	wg.Wait()

	if suggestionsErr != nil {
		logger.Warn("Follow-up suggestion failed", zap.Error(suggestionsErr))
		suggestions = nil
	}

	o.ledger.RecordSentiment(ctx, &models.SentimentObservation{
		ConversationID: conversationID,
		Subject:        "query",
		Label:          queryLabel,
		Score:          queryScore,
	})
	o.ledger.RecordSentiment(ctx, &models.SentimentObservation{
		ConversationID: conversationID,
		Subject:        "response",
		Label:          responseLabel,
		Score:          responseScore,
	})
	metrics.SentimentScore.WithLabelValues("query").Observe(queryScore)
	metrics.SentimentScore.WithLabelValues("response").Observe(responseScore)

	tr.add("query sentiment %s, %d follow-up suggestions", queryLabel, len(suggestions))
	return queryLabel, suggestions
}

type persistArgs struct {
	runID          string
	conversationID string
	fingerprint    string
	question       string
	answer         string
	attribution    []models.Attribution
	sentiment      string
	suggestions    []string
	documents      int
	rewrites       int
	started        time.Time
}

func (o *Orchestrator) persist(ctx context.Context, req Request, args persistArgs) {
	o.cache.Store(ctx, &models.CacheEntry{
		Fingerprint: args.fingerprint,
		QueryText:   args.question,
		Answer:      args.answer,
		Attribution: args.attribution,
		Sentiment:   args.sentiment,
		Suggestions: args.suggestions,
	})

	o.ledger.RecordRun(ctx, &models.RunRecord{
		ID:                 args.runID,
		ConversationID:     args.conversationID,
		QueryText:          args.question,
		ResponseTimeMS:     int(time.Since(args.started).Milliseconds()),
		DocumentsRetrieved: args.documents,
		RewriteAttempts:    args.rewrites,
		FromCache:          false,
	})

	o.appendToConversation(ctx, args.conversationID, req.CustomerID, args.question, args.answer)
}

func (o *Orchestrator) finishFromCache(ctx context.Context, req Request, entry *models.CacheEntry, conversationID, runID, question string, started time.Time, tr *trace) *Response {
	o.ledger.RecordRun(ctx, &models.RunRecord{
		ID:                 runID,
		ConversationID:     conversationID,
		QueryText:          question,
		ResponseTimeMS:     int(time.Since(started).Milliseconds()),
		DocumentsRetrieved: 0,
		RewriteAttempts:    0,
		FromCache:          true,
	})

	o.appendToConversation(ctx, conversationID, req.CustomerID, question, entry.Answer)

	metrics.PipelineTotal.WithLabelValues("cache_hit").Inc()

	return &Response{
		ConversationID:     conversationID,
		RunID:              runID,
		Answer:             entry.Answer,
		Attribution:        entry.Attribution,
		ReasoningTrace:     tr.Steps(),
		FromCache:          true,
		SentimentLabel:     entry.Sentiment,
		SuggestedQuestions: entry.Suggestions,
		LatencyMS:          int(time.Since(started).Milliseconds()),
	}
}

func (o *Orchestrator) appendToConversation(ctx context.Context, conversationID, customerID, question, answer string) {
	if err := o.conversations.EnsureConversation(ctx, conversationID, customerID); err != nil {
		logger.Warn("Failed to ensure conversation", zap.Error(err))
		return
	}
	if err := o.conversations.AppendMessage(ctx, conversationID, "user", question); err != nil {
		logger.Warn("Failed to append user message", zap.Error(err))
	}
	if err := o.conversations.AppendMessage(ctx, conversationID, "assistant", answer); err != nil {
		logger.Warn("Failed to append assistant message", zap.Error(err))
	}
}
