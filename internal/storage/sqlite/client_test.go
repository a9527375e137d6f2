package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func TestCacheEntryRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	entry, err := c.GetCacheEntry(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)

	now := time.Now()
	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint: "fp-1",
		QueryText:   "how do i reset my password",
		Answer:      "Use account settings.",
		Attribution: []models.Attribution{
			{SourceID: "doc-1", Preview: "Passwords are reset from settings.", Score: 0.9},
		},
		Sentiment:      "neutral",
		Suggestions:    []string{"How long does a reset take?"},
		CreatedAt:      now,
		LastAccessedAt: now,
	}))

	entry, err = c.GetCacheEntry(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Use account settings.", entry.Answer)
	require.Len(t, entry.Attribution, 1)
	assert.Equal(t, "doc-1", entry.Attribution[0].SourceID)
	assert.Equal(t, []string{"How long does a reset take?"}, entry.Suggestions)
	assert.Equal(t, int64(0), entry.HitCount)
}

func TestTouchCacheEntryIncrements(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint:    "fp-1",
		QueryText:      "q",
		Answer:         "a",
		CreatedAt:      now,
		LastAccessedAt: now,
	}))

	hits, err := c.TouchCacheEntry(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits)

	hits, err = c.TouchCacheEntry(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits)
}

func TestTouchCacheEntryConcurrent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint:    "fp-1",
		QueryText:      "q",
		Answer:         "a",
		CreatedAt:      now,
		LastAccessedAt: now,
	}))

	const workers = 10
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			c.TouchCacheEntry(ctx, "fp-1")
		}()
	}
	wg.Wait()

	entry, err := c.GetCacheEntry(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(workers), entry.HitCount)
}

func TestPutCacheEntryOverwriteResetsHits(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint: "fp-1", QueryText: "q", Answer: "v1",
		CreatedAt: now, LastAccessedAt: now,
	}))
	_, err := c.TouchCacheEntry(ctx, "fp-1")
	require.NoError(t, err)

	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint: "fp-1", QueryText: "q", Answer: "v2",
		CreatedAt: now, LastAccessedAt: now,
	}))

	entry, err := c.GetCacheEntry(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Answer)
	assert.Equal(t, int64(0), entry.HitCount)
}

func TestDeleteExpiredCacheEntries(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint: "old", QueryText: "q", Answer: "a",
		CreatedAt: old, LastAccessedAt: old,
	}))
	require.NoError(t, c.PutCacheEntry(ctx, &models.CacheEntry{
		Fingerprint: "fresh", QueryText: "q", Answer: "a",
		CreatedAt: fresh, LastAccessedAt: fresh,
	}))

	deleted, err := c.DeleteExpiredCacheEntries(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entry, err := c.GetCacheEntry(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestConversationLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	conv, err := c.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv)

	require.NoError(t, c.EnsureConversation(ctx, "conv-1", "cust-9"))
	require.NoError(t, c.EnsureConversation(ctx, "conv-1", "cust-9"))
	require.NoError(t, c.AppendMessage(ctx, "conv-1", "user", "How do I reset my password?"))
	require.NoError(t, c.AppendMessage(ctx, "conv-1", "assistant", "Use account settings."))

	conv, err = c.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "cust-9", conv.CustomerID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "assistant", conv.Messages[1].Role)

	require.NoError(t, c.DeleteConversation(ctx, "conv-1"))
	conv, err = c.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestDocumentCatalog(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.InsertDocument(ctx, &models.Document{
		ID: "doc-1", Filename: "faq.html", FileSize: 1024,
		Status: "processing", UploadedAt: time.Now(),
	}))

	// Reprocessing updates status and chunk count in place.
	require.NoError(t, c.InsertDocument(ctx, &models.Document{
		ID: "doc-1", Filename: "faq.html", FileSize: 1024,
		Status: "processed", ChunkCount: 7, UploadedAt: time.Now(),
	}))

	doc, err := c.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "processed", doc.Status)
	assert.Equal(t, 7, doc.ChunkCount)

	docs, chunks, recent, err := c.KnowledgeBaseStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), docs)
	assert.Equal(t, int64(7), chunks)
	require.Len(t, recent, 1)

	require.NoError(t, c.DeleteDocument(ctx, "doc-1"))
	doc, err = c.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}
