package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite handles one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY under concurrent runs and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

	CREATE TABLE IF NOT EXISTS cache_entries (
		fingerprint TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		attribution TEXT,
		sentiment TEXT,
		suggestions TEXT,
		created_at INTEGER NOT NULL,
		hit_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_created ON cache_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_cache_accessed ON cache_entries(last_accessed_at);

	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT,
		query_text TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL,
		documents_retrieved INTEGER NOT NULL,
		rewrite_attempts INTEGER NOT NULL DEFAULT 0,
		from_cache INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON pipeline_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_conversation ON pipeline_runs(conversation_id);

	CREATE TABLE IF NOT EXISTS sentiment_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		label TEXT NOT NULL,
		score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sentiment_created ON sentiment_observations(created_at);
	CREATE INDEX IF NOT EXISTS idx_sentiment_conversation ON sentiment_observations(conversation_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		run_id TEXT,
		rating INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_conversation ON feedback(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_uploaded ON documents(uploaded_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ---------------------------------------------------------------------------
// Conversations

func (c *Client) EnsureConversation(ctx context.Context, id, customerID string) error {
	query := `INSERT OR IGNORE INTO conversations (id, customer_id, created_at) VALUES (?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, id, customerID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return nil
}

func (c *Client) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	query := `INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, conversationID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var createdAt int64
	var customerID sql.NullString

	err := c.db.QueryRowContext(ctx,
		`SELECT id, customer_id, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &customerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CustomerID = customerID.String
	conv.CreatedAt = time.Unix(createdAt, 0)

	rows, err := c.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		var msgCreated int64
		if err := rows.Scan(&m.Role, &m.Content, &msgCreated); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = time.Unix(msgCreated, 0)
		conv.Messages = append(conv.Messages, m)
	}

	return &conv, rows.Err()
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Response cache

func (c *Client) GetCacheEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	query := `
		SELECT fingerprint, query_text, answer, attribution, sentiment, suggestions,
			created_at, hit_count, last_accessed_at
		FROM cache_entries WHERE fingerprint = ?
	`

	var e models.CacheEntry
	var attributionJSON, suggestionsJSON sql.NullString
	var createdAt, lastAccessed int64

	err := c.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&e.Fingerprint,
		&e.QueryText,
		&e.Answer,
		&attributionJSON,
		&e.Sentiment,
		&suggestionsJSON,
		&createdAt,
		&e.HitCount,
		&lastAccessed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if attributionJSON.Valid && attributionJSON.String != "" {
		json.Unmarshal([]byte(attributionJSON.String), &e.Attribution)
	}
	if suggestionsJSON.Valid && suggestionsJSON.String != "" {
		json.Unmarshal([]byte(suggestionsJSON.String), &e.Suggestions)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.LastAccessedAt = time.Unix(lastAccessed, 0)

	return &e, nil
}

// TouchCacheEntry bumps hit_count and last_accessed_at in a single UPDATE,
// so concurrent lookups never lose increments. Returns the new hit count.
func (c *Client) TouchCacheEntry(ctx context.Context, fingerprint string) (int64, error) {
	_, err := c.db.ExecContext(ctx,
		`UPDATE cache_entries SET hit_count = hit_count + 1, last_accessed_at = ? WHERE fingerprint = ?`,
		time.Now().Unix(), fingerprint,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to touch cache entry: %w", err)
	}

	var hits int64
	err = c.db.QueryRowContext(ctx,
		`SELECT hit_count FROM cache_entries WHERE fingerprint = ?`, fingerprint,
	).Scan(&hits)
	if err != nil {
		return 0, fmt.Errorf("failed to read hit count: %w", err)
	}
	return hits, nil
}

func (c *Client) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	attributionJSON, _ := json.Marshal(e.Attribution)
	suggestionsJSON, _ := json.Marshal(e.Suggestions)

	query := `
		INSERT INTO cache_entries
			(fingerprint, query_text, answer, attribution, sentiment, suggestions,
			 created_at, hit_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			query_text = excluded.query_text,
			answer = excluded.answer,
			attribution = excluded.attribution,
			sentiment = excluded.sentiment,
			suggestions = excluded.suggestions,
			created_at = excluded.created_at,
			hit_count = 0,
			last_accessed_at = excluded.last_accessed_at
	`

	_, err := c.db.ExecContext(ctx, query,
		e.Fingerprint,
		e.QueryText,
		e.Answer,
		string(attributionJSON),
		e.Sentiment,
		string(suggestionsJSON),
		e.CreatedAt.Unix(),
		e.LastAccessedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	logger.Debug("Cache entry stored", zap.String("fingerprint", e.Fingerprint))
	return nil
}

func (c *Client) DeleteExpiredCacheEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE created_at < ?`, cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// TrimCacheEntries removes least-recently-accessed entries beyond max.
func (c *Client) TrimCacheEntries(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM cache_entries WHERE fingerprint IN (
			SELECT fingerprint FROM cache_entries
			ORDER BY last_accessed_at DESC
			LIMIT -1 OFFSET ?
		)
	`

	res, err := c.db.ExecContext(ctx, query, max)
	if err != nil {
		return 0, fmt.Errorf("failed to trim cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *Client) CacheCounts(ctx context.Context) (entries int64, totalHits int64, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM cache_entries`,
	).Scan(&entries, &totalHits)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return entries, totalHits, nil
}

// ---------------------------------------------------------------------------
// Metrics ledger

func (c *Client) InsertRunRecord(ctx context.Context, r *models.RunRecord) error {
	query := `
		INSERT INTO pipeline_runs
			(id, conversation_id, query_text, response_time_ms, documents_retrieved,
			 rewrite_attempts, from_cache, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	fromCache := 0
	if r.FromCache {
		fromCache = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		r.ID,
		r.ConversationID,
		r.QueryText,
		r.ResponseTimeMS,
		r.DocumentsRetrieved,
		r.RewriteAttempts,
		fromCache,
		r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	logger.Debug("Run recorded",
		zap.String("run_id", r.ID),
		zap.Int("latency_ms", r.ResponseTimeMS),
		zap.Bool("from_cache", r.FromCache),
	)
	return nil
}

func (c *Client) InsertSentiment(ctx context.Context, o *models.SentimentObservation) error {
	query := `
		INSERT INTO sentiment_observations (conversation_id, subject, label, score, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		o.ConversationID, o.Subject, o.Label, o.Score, o.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sentiment observation: %w", err)
	}
	return nil
}

func (c *Client) InsertFeedback(ctx context.Context, f *models.Feedback) error {
	query := `
		INSERT INTO feedback (conversation_id, run_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		f.ConversationID, f.RunID, f.Rating, f.Comment, f.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("conversation_id", f.ConversationID),
		zap.Int("rating", f.Rating),
	)
	return nil
}

func (c *Client) RunSummary(ctx context.Context, since time.Time) (*models.RunSummary, error) {
	var s models.RunSummary
	var avgLatency, avgDocs sql.NullFloat64

	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(response_time_ms), AVG(documents_retrieved)
		 FROM pipeline_runs WHERE created_at >= ?`, since.Unix(),
	).Scan(&s.TotalRuns, &avgLatency, &avgDocs)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	s.AvgResponseTimeMS = avgLatency.Float64
	s.AvgDocumentsRetrieved = avgDocs.Float64

	var avgRating sql.NullFloat64
	err = c.db.QueryRowContext(ctx,
		`SELECT AVG(f.rating), COUNT(*)
		 FROM feedback f
		 WHERE EXISTS (
			SELECT 1 FROM pipeline_runs r
			WHERE (r.id = f.run_id OR r.conversation_id = f.conversation_id)
			  AND r.created_at >= ?
		 )`, since.Unix(),
	).Scan(&avgRating, &s.RatedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ratings: %w", err)
	}
	s.AvgRating = avgRating.Float64

	return &s, nil
}

func (c *Client) TopQueries(ctx context.Context, since time.Time, limit int) ([]models.QueryFrequency, error) {
	query := `
		SELECT LOWER(TRIM(query_text)) AS q, COUNT(*) AS n
		FROM pipeline_runs
		WHERE created_at >= ?
		GROUP BY q
		ORDER BY n DESC, q ASC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top queries: %w", err)
	}
	defer rows.Close()

	var result []models.QueryFrequency
	for rows.Next() {
		var f models.QueryFrequency
		if err := rows.Scan(&f.QueryText, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan query frequency: %w", err)
		}
		result = append(result, f)
	}

	return result, rows.Err()
}

func (c *Client) SentimentTrend(ctx context.Context, since time.Time) ([]models.SentimentBucket, error) {
	query := `
		SELECT DATE(created_at, 'unixepoch') AS day, subject, AVG(score), COUNT(*)
		FROM sentiment_observations
		WHERE created_at >= ?
		GROUP BY day, subject
		ORDER BY day ASC, subject ASC
	`

	rows, err := c.db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get sentiment trend: %w", err)
	}
	defer rows.Close()

	var result []models.SentimentBucket
	for rows.Next() {
		var b models.SentimentBucket
		if err := rows.Scan(&b.Day, &b.Subject, &b.AvgScore, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment bucket: %w", err)
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

func (c *Client) RunCounts(ctx context.Context) (total int64, fromCache int64, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(from_cache), 0) FROM pipeline_runs`,
	).Scan(&total, &fromCache)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return total, fromCache, nil
}

// ---------------------------------------------------------------------------
// Knowledge-base catalog

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, filename, file_size, status, chunk_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			chunk_count = excluded.chunk_count
	`

	_, err := c.db.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.FileSize, doc.Status, doc.ChunkCount, doc.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var uploadedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, filename, file_size, status, chunk_count, uploaded_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.FileSize, &doc.Status, &doc.ChunkCount, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.UploadedAt = time.Unix(uploadedAt, 0)
	return &doc, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, filename, file_size, status, chunk_count, uploaded_at
		 FROM documents ORDER BY uploaded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var uploadedAt int64
		if err := rows.Scan(&d.ID, &d.Filename, &d.FileSize, &d.Status, &d.ChunkCount, &uploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.UploadedAt = time.Unix(uploadedAt, 0)
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (c *Client) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	query := `INSERT INTO document_chunks (id, doc_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		chunk.ID, chunk.DocID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (c *Client) KnowledgeBaseStatus(ctx context.Context) (docs int64, chunks int64, recent []models.Document, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(chunk_count), 0) FROM documents WHERE status = 'processed'`,
	).Scan(&docs, &chunks)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to get knowledge base status: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, filename, file_size, status, chunk_count, uploaded_at
		 FROM documents ORDER BY uploaded_at DESC LIMIT 10`,
	)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to list recent documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Document
		var uploadedAt int64
		if err := rows.Scan(&d.ID, &d.Filename, &d.FileSize, &d.Status, &d.ChunkCount, &uploadedAt); err != nil {
			return 0, 0, nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.UploadedAt = time.Unix(uploadedAt, 0)
		recent = append(recent, d)
	}

	return docs, chunks, recent, rows.Err()
}
