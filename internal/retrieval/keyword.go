package retrieval

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
)

// KeywordSearcher is the slice of the BM25 index the retriever needs.
type KeywordSearcher interface {
	Search(ctx context.Context, query, namespace, sectionID string, topK int) ([]model.ScoredChunk, error)
}

// KeywordRetriever runs lexical BM25 search.
type KeywordRetriever struct {
	store  KeywordSearcher
	logger *logrus.Logger
}

func NewKeywordRetriever(store KeywordSearcher, logger *logrus.Logger) *KeywordRetriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &KeywordRetriever{store: store, logger: logger}
}

func (r *KeywordRetriever) Name() string { return SourceKeyword }

func (r *KeywordRetriever) Retrieve(ctx context.Context, q Query) (RankedList, error) {
	hits, err := r.store.Search(ctx, q.Text, q.Namespace, q.SectionID, q.TopK)
	if err != nil {
		return RankedList{Source: SourceKeyword}, fmt.Errorf("keyword retriever: %w", err)
	}
	return RankedList{Source: SourceKeyword, Items: scoredChunkItems(hits)}, nil
}
