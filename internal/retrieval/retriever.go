package retrieval

import "context"

// Excerpt is one retrieved knowledge fragment handed to grading and
// generation. SourceID identifies the originating document or URL.
type Excerpt struct {
	Text     string
	SourceID string
	Score    float64
}

// Retriever fetches the k most relevant excerpts for a query. An empty
// result is a valid outcome, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Excerpt, error)
}

// Embedder produces the query vector used by vector-backed retrievers.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}
