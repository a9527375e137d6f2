package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/storage/models"
)

type fakeStore struct {
	entries map[string]*models.CacheEntry
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*models.CacheEntry)}
}

func (f *fakeStore) GetCacheEntry(ctx context.Context, fp string) (*models.CacheEntry, error) {
	if f.fail {
		return nil, errors.New("disk gone")
	}
	e, ok := f.entries[fp]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) TouchCacheEntry(ctx context.Context, fp string) (int64, error) {
	if f.fail {
		return 0, errors.New("disk gone")
	}
	e, ok := f.entries[fp]
	if !ok {
		return 0, errors.New("no such entry")
	}
	e.HitCount++
	e.LastAccessedAt = time.Now()
	return e.HitCount, nil
}

func (f *fakeStore) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	if f.fail {
		return errors.New("disk gone")
	}
	cp := *e
	cp.HitCount = 0
	f.entries[e.Fingerprint] = &cp
	return nil
}

func (f *fakeStore) DeleteExpiredCacheEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for fp, e := range f.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(f.entries, fp)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) TrimCacheEntries(ctx context.Context, max int) (int64, error) {
	return 0, nil
}

func (f *fakeStore) CacheCounts(ctx context.Context) (int64, int64, error) {
	var hits int64
	for _, e := range f.entries {
		hits += e.HitCount
	}
	return int64(len(f.entries)), hits, nil
}

func TestLookupMissThenHit(t *testing.T) {
	store := newFakeStore()
	c := New(store, Options{TTL: time.Hour})
	ctx := context.Background()

	entry, err := c.Lookup(ctx, "fp1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	c.Store(ctx, &models.CacheEntry{
		Fingerprint: "fp1",
		QueryText:   "how do i reset my password",
		Answer:      "Use the account settings page.",
	})

	entry, err = c.Lookup(ctx, "fp1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Use the account settings page.", entry.Answer)
	assert.Equal(t, int64(1), entry.HitCount)

	entry, err = c.Lookup(ctx, "fp1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(2), entry.HitCount)
}

func TestLookupExpiredEntryIsMiss(t *testing.T) {
	store := newFakeStore()
	c := New(store, Options{TTL: time.Hour})
	ctx := context.Background()

	store.entries["old"] = &models.CacheEntry{
		Fingerprint: "old",
		Answer:      "stale",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}

	entry, err := c.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreResetsHitCount(t *testing.T) {
	store := newFakeStore()
	c := New(store, Options{TTL: time.Hour})
	ctx := context.Background()

	c.Store(ctx, &models.CacheEntry{Fingerprint: "fp", Answer: "v1"})

	_, err := c.Lookup(ctx, "fp")
	require.NoError(t, err)
	_, err = c.Lookup(ctx, "fp")
	require.NoError(t, err)

	c.Store(ctx, &models.CacheEntry{Fingerprint: "fp", Answer: "v2"})

	entry, err := c.Lookup(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "v2", entry.Answer)
	assert.Equal(t, int64(1), entry.HitCount)
}

func TestStorageFailureDegradesToMiss(t *testing.T) {
	store := newFakeStore()
	c := New(store, Options{TTL: time.Hour})
	ctx := context.Background()

	c.Store(ctx, &models.CacheEntry{Fingerprint: "fp", Answer: "v"})

	store.fail = true
	entry, err := c.Lookup(ctx, "fp")
	assert.NoError(t, err)
	assert.Nil(t, entry)

	// Store failures are swallowed too.
	c.Store(ctx, &models.CacheEntry{Fingerprint: "fp2", Answer: "v"})
	store.fail = false
	entry, err = c.Lookup(ctx, "fp2")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSweepRemovesExpired(t *testing.T) {
	store := newFakeStore()
	c := New(store, Options{TTL: time.Hour})

	store.entries["old"] = &models.CacheEntry{
		Fingerprint: "old",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}
	store.entries["fresh"] = &models.CacheEntry{
		Fingerprint: "fresh",
		CreatedAt:   time.Now(),
	}

	c.sweep()

	assert.NotContains(t, store.entries, "old")
	assert.Contains(t, store.entries, "fresh")
}
