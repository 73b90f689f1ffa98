package retrieval

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/embedding"
	"github.com/stratumhq/stratum/internal/model"
)

// VectorSearcher is the slice of the vector store the retriever needs.
type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, namespace, sectionID string, topK int) ([]model.ScoredChunk, error)
}

// VectorRetriever embeds the query text and runs ANN search.
type VectorRetriever struct {
	embedder embedding.Embedder
	store    VectorSearcher
	logger   *logrus.Logger
}

func NewVectorRetriever(embedder embedding.Embedder, store VectorSearcher, logger *logrus.Logger) *VectorRetriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &VectorRetriever{embedder: embedder, store: store, logger: logger}
}

func (r *VectorRetriever) Name() string { return SourceVector }

func (r *VectorRetriever) Retrieve(ctx context.Context, q Query) (RankedList, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return RankedList{Source: SourceVector}, fmt.Errorf("vector retriever: %w", err)
	}

	hits, err := r.store.Search(ctx, queryEmbedding, q.Namespace, q.SectionID, q.TopK)
	if err != nil {
		return RankedList{Source: SourceVector}, fmt.Errorf("vector retriever: %w", err)
	}

	return RankedList{Source: SourceVector, Items: scoredChunkItems(hits)}, nil
}

func scoredChunkItems(hits []model.ScoredChunk) []ScoredItem {
	items := make([]ScoredItem, len(hits))
	for i, hit := range hits {
		items[i] = ScoredItem{
			ChunkID:        hit.Chunk.ID,
			DocumentID:     hit.Chunk.DocumentID,
			Namespace:      hit.Chunk.Namespace,
			Text:           hit.Chunk.Text,
			SectionID:      hit.Chunk.PrimarySectionID,
			SectionHeading: hit.Chunk.SectionHeading,
			Score:          hit.Score,
		}
	}
	return items
}
