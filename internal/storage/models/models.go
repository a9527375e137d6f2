package models

import "time"

// Attribution maps a generated answer back to a source excerpt that
// grounded it.
type Attribution struct {
	SourceID string  `json:"source"`
	Preview  string  `json:"preview"`
	Score    float64 `json:"relevance"`
}

// CacheEntry is one cached answer bundle, keyed by query fingerprint.
// HitCount and LastAccessedAt are mutated on every lookup hit; everything
// else is written once per Store.
type CacheEntry struct {
	Fingerprint    string
	QueryText      string
	Answer         string
	Attribution    []Attribution
	Sentiment      string
	Suggestions    []string
	CreatedAt      time.Time
	HitCount       int64
	LastAccessedAt time.Time
}

// RunRecord is one immutable Metrics Ledger entry, appended once per
// completed pipeline invocation. Cache hits still produce a record with
// DocumentsRetrieved = 0.
type RunRecord struct {
	ID                 string
	ConversationID     string
	QueryText          string
	ResponseTimeMS     int
	DocumentsRetrieved int
	RewriteAttempts    int
	FromCache          bool
	CreatedAt          time.Time
}

// SentimentObservation scores either the query or the response of a run.
type SentimentObservation struct {
	ID             int64
	ConversationID string
	Subject        string // "query" or "response"
	Label          string // positive | neutral | negative
	Score          float64
	CreatedAt      time.Time
}

// Feedback is a user rating appended after the fact. It references the
// original run by conversation/run identity and is never merged back into
// the run record.
type Feedback struct {
	ID             int64
	ConversationID string
	RunID          string
	Rating         int
	Comment        string
	CreatedAt      time.Time
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID         string    `json:"conversation_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Messages   []Message `json:"messages"`
}

// Document is a knowledge-base catalog row for an uploaded source file.
type Document struct {
	ID         string
	Filename   string
	FileSize   int64
	Status     string
	ChunkCount int
	UploadedAt time.Time
}

type DocumentChunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

// RunSummary is the read-side aggregate over the ledger for a period.
type RunSummary struct {
	TotalRuns             int64            `json:"total_runs"`
	AvgResponseTimeMS     float64          `json:"avg_response_time_ms"`
	AvgDocumentsRetrieved float64          `json:"avg_documents_retrieved"`
	AvgRating             float64          `json:"avg_rating"`
	RatedRuns             int64            `json:"rated_runs"`
	TopQueries            []QueryFrequency `json:"top_queries"`
}

type QueryFrequency struct {
	QueryText string `json:"query"`
	Count     int64  `json:"count"`
}

// SentimentBucket is a per-day sentiment average for one subject.
type SentimentBucket struct {
	Day      string  `json:"day"`
	Subject  string  `json:"subject"`
	AvgScore float64 `json:"avg_score"`
	Count    int64   `json:"count"`
}

// CacheMetrics combines cache-table aggregates with ledger-derived hit rate.
type CacheMetrics struct {
	Entries       int64   `json:"entries"`
	TotalHits     int64   `json:"total_hits"`
	RunsTotal     int64   `json:"runs_total"`
	RunsFromCache int64   `json:"runs_from_cache"`
	HitRate       float64 `json:"hit_rate"`
}
