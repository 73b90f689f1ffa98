package retrieval

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
)

// MemorySearcher is the slice of the session-memory store the retriever needs.
type MemorySearcher interface {
	Search(ctx context.Context, query, namespace, sessionID string, topK int) ([]model.ScoredChunk, error)
}

// MemoryRetriever searches recent conversation turns of the session. A query
// without a session, or a session with no recorded turns, yields an empty
// list rather than an error.
type MemoryRetriever struct {
	store  MemorySearcher
	logger *logrus.Logger
}

func NewMemoryRetriever(store MemorySearcher, logger *logrus.Logger) *MemoryRetriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryRetriever{store: store, logger: logger}
}

func (r *MemoryRetriever) Name() string { return SourceMemory }

func (r *MemoryRetriever) Retrieve(ctx context.Context, q Query) (RankedList, error) {
	if q.SessionID == "" {
		return RankedList{Source: SourceMemory}, nil
	}
	hits, err := r.store.Search(ctx, q.Text, q.Namespace, q.SessionID, q.TopK)
	if err != nil {
		return RankedList{Source: SourceMemory}, fmt.Errorf("memory retriever: %w", err)
	}
	return RankedList{Source: SourceMemory, Items: scoredChunkItems(hits)}, nil
}
