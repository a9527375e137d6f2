package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

// Store is the append-only backend for run telemetry. *sqlite.Client
// satisfies it.
type Store interface {
	InsertRunRecord(ctx context.Context, r *models.RunRecord) error
	InsertSentiment(ctx context.Context, o *models.SentimentObservation) error
	InsertFeedback(ctx context.Context, f *models.Feedback) error
	RunSummary(ctx context.Context, since time.Time) (*models.RunSummary, error)
	TopQueries(ctx context.Context, since time.Time, limit int) ([]models.QueryFrequency, error)
	SentimentTrend(ctx context.Context, since time.Time) ([]models.SentimentBucket, error)
	RunCounts(ctx context.Context) (total int64, fromCache int64, err error)
	CacheCounts(ctx context.Context) (entries int64, totalHits int64, err error)
}

// Ledger appends run records, sentiment observations, and after-the-fact
// feedback, and serves read-side aggregates. Records are never edited after
// insert; feedback references its run instead of mutating it.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// RecordRun appends one run record. Failures are logged, never surfaced; a
// telemetry write must not fail the request that produced it.
func (l *Ledger) RecordRun(ctx context.Context, r *models.RunRecord) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if err := l.store.InsertRunRecord(ctx, r); err != nil {
		logger.Error("Failed to record pipeline run",
			zap.String("run_id", r.ID),
			zap.Error(err),
		)
	}
}

// RecordSentiment appends one sentiment observation, same failure policy as
// RecordRun.
func (l *Ledger) RecordSentiment(ctx context.Context, o *models.SentimentObservation) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if err := l.store.InsertSentiment(ctx, o); err != nil {
		logger.Error("Failed to record sentiment observation",
			zap.String("conversation_id", o.ConversationID),
			zap.Error(err),
		)
	}
}

// SubmitFeedback stores a user rating linked to its run. Unlike telemetry
// writes this is user-initiated, so the error propagates.
func (l *Ledger) SubmitFeedback(ctx context.Context, f *models.Feedback) error {
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", f.Rating)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	return l.store.InsertFeedback(ctx, f)
}

// Summary aggregates runs over the trailing period. An empty ledger yields
// zeroed aggregates, not an error.
func (l *Ledger) Summary(ctx context.Context, period time.Duration) (*models.RunSummary, error) {
	since := time.Now().Add(-period)

	summary, err := l.store.RunSummary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to build run summary: %w", err)
	}

	top, err := l.store.TopQueries(ctx, since, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to build top queries: %w", err)
	}
	summary.TopQueries = top

	return summary, nil
}

// SentimentTrend returns per-day average sentiment for the trailing window.
func (l *Ledger) SentimentTrend(ctx context.Context, days int) ([]models.SentimentBucket, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	buckets, err := l.store.SentimentTrend(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to build sentiment trend: %w", err)
	}
	return buckets, nil
}

// CacheMetrics combines cache-table counters with the ledger-derived hit rate.
func (l *Ledger) CacheMetrics(ctx context.Context) (*models.CacheMetrics, error) {
	entries, totalHits, err := l.store.CacheCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache counts: %w", err)
	}

	total, fromCache, err := l.store.RunCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read run counts: %w", err)
	}

	m := &models.CacheMetrics{
		Entries:       entries,
		TotalHits:     totalHits,
		RunsTotal:     total,
		RunsFromCache: fromCache,
	}
	if total > 0 {
		m.HitRate = float64(fromCache) / float64(total)
	}
	return m, nil
}
