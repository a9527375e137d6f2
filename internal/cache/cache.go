package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

// DurableStore is the authoritative cache backend. *sqlite.Client satisfies it.
type DurableStore interface {
	GetCacheEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, error)
	TouchCacheEntry(ctx context.Context, fingerprint string) (int64, error)
	PutCacheEntry(ctx context.Context, e *models.CacheEntry) error
	DeleteExpiredCacheEntries(ctx context.Context, cutoff time.Time) (int64, error)
	TrimCacheEntries(ctx context.Context, max int) (int64, error)
	CacheCounts(ctx context.Context) (entries int64, totalHits int64, err error)
}

// FastPath is an optional read-through layer in front of the durable store.
// It never owns hit counts; it only shortens the fingerprint -> entry lookup.
type FastPath interface {
	Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error)
	Set(ctx context.Context, e *models.CacheEntry) error
	Invalidate(ctx context.Context, fingerprint string) error
}

type ResponseCache struct {
	store DurableStore
	fast  FastPath
	ttl   time.Duration

	sweepInterval time.Duration
	maxEntries    int

	stopOnce sync.Once
	started  bool
	stop     chan struct{}
	done     chan struct{}
}

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxEntries    int
	FastPath      FastPath
}

func New(store DurableStore, opts Options) *ResponseCache {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Minute
	}

	return &ResponseCache{
		store:         store,
		fast:          opts.FastPath,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		maxEntries:    opts.MaxEntries,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Lookup returns the cached entry for a fingerprint, or nil on a miss.
// Expiry is enforced here rather than by the sweeper, so a stale entry is a
// miss even if the sweeper has not run yet. Storage errors degrade to a miss;
// the caller re-runs the pipeline and the cache self-heals on Store.
func (c *ResponseCache) Lookup(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	entry, err := c.fetch(ctx, fingerprint)
	if err != nil {
		logger.Warn("Cache lookup failed, treating as miss",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}

	if time.Since(entry.CreatedAt) > c.ttl {
		c.invalidate(ctx, fingerprint)
		return nil, nil
	}

	hits, err := c.store.TouchCacheEntry(ctx, fingerprint)
	if err != nil {
		logger.Warn("Cache touch failed, treating as miss",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, nil
	}
	entry.HitCount = hits
	entry.LastAccessedAt = time.Now()

	return entry, nil
}

func (c *ResponseCache) fetch(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	if c.fast != nil {
		if entry, err := c.fast.Get(ctx, fingerprint); err == nil && entry != nil {
			return entry, nil
		}
	}
	return c.store.GetCacheEntry(ctx, fingerprint)
}

// Store writes a fresh entry, replacing any previous answer for the same
// fingerprint and resetting its hit count. Failures are logged and swallowed;
// caching is never worth failing a request over.
func (c *ResponseCache) Store(ctx context.Context, e *models.CacheEntry) {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastAccessedAt = now
	e.HitCount = 0

	if err := c.store.PutCacheEntry(ctx, e); err != nil {
		logger.Warn("Cache store failed",
			zap.String("fingerprint", e.Fingerprint),
			zap.Error(err),
		)
		return
	}

	if c.fast != nil {
		if err := c.fast.Set(ctx, e); err != nil {
			logger.Debug("Fast path set failed", zap.Error(err))
		}
	}
}

func (c *ResponseCache) invalidate(ctx context.Context, fingerprint string) {
	if c.fast != nil {
		c.fast.Invalidate(ctx, fingerprint)
	}
}

func (c *ResponseCache) Stats(ctx context.Context) (entries int64, totalHits int64, err error) {
	return c.store.CacheCounts(ctx)
}

// StartSweeper launches the background expiry loop. Call Close to stop it.
func (c *ResponseCache) StartSweeper() {
	c.started = true
	go func() {
		defer close(c.done)

		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *ResponseCache) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-c.ttl)
	expired, err := c.store.DeleteExpiredCacheEntries(ctx, cutoff)
	if err != nil {
		logger.Warn("Cache sweep failed", zap.Error(err))
		return
	}

	var trimmed int64
	if c.maxEntries > 0 {
		trimmed, err = c.store.TrimCacheEntries(ctx, c.maxEntries)
		if err != nil {
			logger.Warn("Cache trim failed", zap.Error(err))
		}
	}

	if expired > 0 || trimmed > 0 {
		logger.Info("Cache sweep completed",
			zap.Int64("expired", expired),
			zap.Int64("trimmed", trimmed),
		)
	}
}

func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.started {
			<-c.done
		}
	})
}
