// Package retrieval implements the hybrid query path: four per-source
// retrievers run concurrently, their ranked lists are merged with reciprocal
// rank fusion, and the fused list is re-ranked by section heading overlap.
package retrieval

import "context"

// Source names as they appear in fusion annotations and degraded_sources.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
	SourceGraph   = "graph"
	SourceMemory  = "memory"
)

// Query is the shaped retrieval request shared by all sources.
type Query struct {
	Text      string
	Namespace string
	// SectionID optionally scopes retrieval to one section.
	SectionID string
	// SessionID enables the session-memory source when set.
	SessionID string
	TopK      int
	// GlobalGraph switches the graph source from neighborhood expansion to
	// community-based retrieval.
	GlobalGraph bool
}

// Retriever is one ranked source feeding fusion.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, q Query) (RankedList, error)
}

// RankedList is one source's results, best first.
type RankedList struct {
	Source string
	Items  []ScoredItem
	// RunID is set by the global graph source to the community run the
	// results came from.
	RunID string
}

// ScoredItem pairs a chunk with its source-native score. Fusion only uses
// rank positions; the raw score is kept for debugging.
type ScoredItem struct {
	ChunkID        string
	DocumentID     string
	Namespace      string
	Text           string
	SectionID      string
	SectionHeading string
	Score          float64
}
