package retrieval

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/support-agent/backend/pkg/config"
	"github.com/support-agent/backend/pkg/logger"
)

// MilvusRetriever serves knowledge-base lookups from a Milvus collection of
// embedded document chunks.
type MilvusRetriever struct {
	client     client.Client
	embedder   Embedder
	collection string
	dimension  int
}

func NewMilvusRetriever(ctx context.Context, cfg config.MilvusConfig, embedder Embedder) (*MilvusRetriever, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Address,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	r := &MilvusRetriever{
		client:     c,
		embedder:   embedder,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := r.ensureCollection(ctx); err != nil {
		return nil, err
	}

	logger.Info("Milvus retriever initialized",
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", cfg.Dimension),
	)

	return r, nil
}

func (r *MilvusRetriever) ensureCollection(ctx context.Context) error {
	has, err := r.client.HasCollection(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return r.client.LoadCollection(ctx, r.collection, false)
	}

	schema := entity.NewSchema().
		WithName(r.collection).
		WithDescription("Knowledge-base document chunks").
		WithField(entity.NewField().
			WithName("chunk_id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName("doc_id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64)).
		WithField(entity.NewField().
			WithName("text").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(8192)).
		WithField(entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(r.dimension)))

	if err := r.client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexAUTOINDEX(entity.L2)
	if err != nil {
		return fmt.Errorf("failed to define index: %w", err)
	}
	if err := r.client.CreateIndex(ctx, r.collection, "embedding", index, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return r.client.LoadCollection(ctx, r.collection, false)
}

// Retrieve embeds the query and runs an L2 nearest-neighbor search. L2
// distances are converted to a descending 1/(1+d) relevance score.
func (r *MilvusRetriever) Retrieve(ctx context.Context, query string, k int) ([]Excerpt, error) {
	vector, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := r.client.Search(ctx,
		r.collection,
		nil,
		"",
		[]string{"text", "doc_id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var excerpts []Excerpt
	for _, result := range results {
		textCol, ok := result.Fields.GetColumn("text").(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		docCol, _ := result.Fields.GetColumn("doc_id").(*entity.ColumnVarChar)

		for i := 0; i < result.ResultCount; i++ {
			text, err := textCol.ValueByIdx(i)
			if err != nil {
				continue
			}
			sourceID := ""
			if docCol != nil {
				sourceID, _ = docCol.ValueByIdx(i)
			}
			excerpts = append(excerpts, Excerpt{
				Text:     text,
				SourceID: sourceID,
				Score:    1.0 / (1.0 + float64(result.Scores[i])),
			})
		}
	}

	logger.Debug("Vector retrieval completed",
		zap.Int("requested", k),
		zap.Int("returned", len(excerpts)),
	)

	return excerpts, nil
}

// InsertChunks stores embedded chunks for one document.
func (r *MilvusRetriever) InsertChunks(ctx context.Context, chunkIDs, docIDs, texts []string, vectors [][]float32) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	_, err := r.client.Insert(ctx, r.collection, "",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("doc_id", docIDs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", r.dimension, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := r.client.Flush(ctx, r.collection, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}

	return nil
}

// DeleteByDocument removes all chunks belonging to one document.
func (r *MilvusRetriever) DeleteByDocument(ctx context.Context, docID string) error {
	expr := fmt.Sprintf(`doc_id == "%s"`, docID)
	if err := r.client.Delete(ctx, r.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (r *MilvusRetriever) Close() error {
	return r.client.Close()
}
