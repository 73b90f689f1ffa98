// Package model defines the shared data model for the retrieval engine.
// Every persisted record carries an explicit Namespace tag; the store
// adapters serialize these structs per backend, so a field can never be
// silently dropped on one store and kept on another.
package model

import "time"

// Document is the logical source unit. Identity is immutable; re-ingestion
// creates a new version upstream.
type Document struct {
	ID        string    `json:"document_id"`
	Namespace string    `json:"namespace"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Section is a heading-delimited subdivision of a Document. Sections form an
// optional hierarchy via ParentSectionID.
type Section struct {
	ID              string `json:"section_id"`
	DocumentID      string `json:"document_id"`
	Namespace       string `json:"namespace"`
	Heading         string `json:"heading"`
	Level           int    `json:"level"`
	PageNumber      int    `json:"page_number,omitempty"`
	OrderIndex      int    `json:"order_index"`
	ParentSectionID string `json:"parent_section_id,omitempty"`
}

// Chunk is the unit of retrieval. A chunk belongs to exactly one Document and
// must carry the same Namespace in every store that indexes it.
type Chunk struct {
	ID               string    `json:"chunk_id"`
	DocumentID       string    `json:"document_id"`
	Namespace        string    `json:"namespace"`
	Text             string    `json:"text"`
	PrimarySectionID string    `json:"primary_section_id,omitempty"`
	SectionIDs       []string  `json:"section_ids,omitempty"`
	SectionHeading   string    `json:"section_heading,omitempty"`
	TokenCount       int       `json:"token_count,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
}

// Entity is a named concept extracted from chunk text.
type Entity struct {
	ID          string `json:"entity_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Namespace   string `json:"namespace"`
	Description string `json:"description,omitempty"`
}

// MentionEdge links an entity to a chunk it is mentioned in.
type MentionEdge struct {
	EntityID string `json:"entity_id"`
	ChunkID  string `json:"chunk_id"`
}

// RelationEdge is a typed, directional edge between two entities.
type RelationEdge struct {
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Community is one cluster of entities produced by a community detection run.
// Within a run every entity belongs to at most one community.
type Community struct {
	ID            string   `json:"community_id"`
	RunID         string   `json:"run_id"`
	Namespace     string   `json:"namespace"`
	MemberIDs     []string `json:"member_ids"`
	Size          int      `json:"size"`
	Density       float64  `json:"density"`
	Keywords      []string `json:"keywords,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	SummaryStatus string   `json:"summary_status,omitempty"`
}

// Community summary states. Statistical keywords are written with the run;
// the LLM summary arrives asynchronously and may lag or fail.
const (
	SummaryStatistical = "statistical"
	SummaryLLM         = "llm-enhanced"
	SummaryLLMFailed   = "llm-failed"
)

// CommunityRun records one completed execution of the detection job.
type CommunityRun struct {
	ID          string    `json:"run_id"`
	Namespace   string    `json:"namespace"`
	Algorithm   string    `json:"algorithm"`
	Resolution  float64   `json:"resolution"`
	Communities int       `json:"communities"`
	Entities    int       `json:"entities"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ScoredChunk is a chunk with a retrieval score, as returned by every
// per-source retriever and by the fusion ranker.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	// Sources lists which retrievers contributed this chunk after fusion.
	Sources []string `json:"sources,omitempty"`
	// RunID is set on global graph results so callers can detect staleness.
	RunID string `json:"run_id,omitempty"`
}
