package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

// VectorStore receives the embedded chunks. *retrieval.MilvusRetriever
// satisfies it.
type VectorStore interface {
	InsertChunks(ctx context.Context, chunkIDs, docIDs, texts []string, vectors [][]float32) error
	DeleteByDocument(ctx context.Context, docID string) error
}

// Catalog tracks uploaded documents and their chunks. *sqlite.Client
// satisfies it.
type Catalog interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
	InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Processor turns an uploaded file into embedded knowledge-base chunks:
// strip markup, split into sentence-aligned chunks, embed, store.
type Processor struct {
	vectors   VectorStore
	catalog   Catalog
	embedder  retrieval.Embedder
	chunkSize int
}

func NewProcessor(vectors VectorStore, catalog Catalog, embedder retrieval.Embedder, chunkSize int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Processor{
		vectors:   vectors,
		catalog:   catalog,
		embedder:  embedder,
		chunkSize: chunkSize,
	}
}

func (p *Processor) ProcessDocument(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	docID := uuid.New().String()
	doc := &models.Document{
		ID:         docID,
		Filename:   filename,
		FileSize:   int64(len(content)),
		Status:     "processing",
		UploadedAt: time.Now(),
	}

	if err := p.catalog.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	text := string(content)
	if isHTML(filename) {
		cleaned, err := extractText(text)
		if err != nil {
			doc.Status = "failed"
			p.catalog.InsertDocument(ctx, doc)
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		text = cleaned
	}

	chunks, err := chunkText(text, p.chunkSize)
	if err != nil {
		doc.Status = "failed"
		p.catalog.InsertDocument(ctx, doc)
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		doc.Status = "failed"
		p.catalog.InsertDocument(ctx, doc)
		return nil, fmt.Errorf("document contains no usable text")
	}

	chunkIDs := make([]string, 0, len(chunks))
	docIDs := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))

	for i, chunk := range chunks {
		vector, err := p.embedder.GenerateEmbedding(ctx, chunk)
		if err != nil {
			doc.Status = "failed"
			p.catalog.InsertDocument(ctx, doc)
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}

		chunkID := uuid.New().String()
		chunkIDs = append(chunkIDs, chunkID)
		docIDs = append(docIDs, docID)
		vectors = append(vectors, vector)

		if err := p.catalog.InsertChunk(ctx, &models.DocumentChunk{
			ID:         chunkID,
			DocID:      docID,
			ChunkIndex: i,
			Text:       chunk,
			CreatedAt:  time.Now(),
		}); err != nil {
			logger.Warn("Failed to catalog chunk", zap.Error(err))
		}
	}

	if err := p.vectors.InsertChunks(ctx, chunkIDs, docIDs, chunks, vectors); err != nil {
		doc.Status = "failed"
		p.catalog.InsertDocument(ctx, doc)
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	doc.Status = "processed"
	doc.ChunkCount = len(chunks)
	if err := p.catalog.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}

	metrics.DocumentsProcessed.Inc()
	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
	)

	return doc, nil
}

func (p *Processor) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := p.catalog.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %s not found", docID)
	}

	if err := p.vectors.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	return p.catalog.DeleteDocument(ctx, docID)
}

func isHTML(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
		sb.WriteString(" ")
	})

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// chunkText groups whole sentences into chunks of roughly chunkSize
// characters. A sentence is never split across chunks.
func chunkText(text string, chunkSize int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range doc.Sentences() {
		s := strings.TrimSpace(sentence.Text)
		if s == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(s)+1 > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks, nil
}
