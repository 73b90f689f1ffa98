package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and retrievers. Callers match them
// with errors.Is after wrapping.
var (
	// ErrBackendUnavailable marks a transient store failure. The query path
	// degrades the affected source to an empty list instead of failing.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSchemaViolation is fatal at write time: a required field (most
	// importantly namespace) was missing. It is never coerced to a default.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrAlreadyRunning is returned when a community detection run is
	// triggered for a namespace that already has one in flight.
	ErrAlreadyRunning = errors.New("community detection already running")

	// ErrDetectionDisabled is returned when community detection is switched
	// off by configuration. Disabled means never run, manual triggers
	// included.
	ErrDetectionDisabled = errors.New("community detection disabled")

	// ErrAllSourcesUnavailable is returned only when every retrieval source
	// failed or timed out for a query.
	ErrAllSourcesUnavailable = errors.New("all retrieval sources unavailable")
)

// SchemaViolationf wraps ErrSchemaViolation with field context.
func SchemaViolationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, fmt.Sprintf(format, args...))
}

// ChunkCountMismatch reports differing chunk counts for one document across
// two stores. Non-fatal: retrieval degrades gracefully on the store with
// fewer entries, so this is surfaced to observability rather than raised.
type ChunkCountMismatch struct {
	DocumentID string         `json:"document_id"`
	Namespace  string         `json:"namespace"`
	Counts     map[string]int `json:"counts"` // store name -> chunk count
}

func (m ChunkCountMismatch) String() string {
	return fmt.Sprintf("chunk count mismatch for document %s (namespace %s): %v",
		m.DocumentID, m.Namespace, m.Counts)
}

// NamespaceDrift reports a chunk whose namespace tag differs between stores.
type NamespaceDrift struct {
	ChunkID    string            `json:"chunk_id"`
	Namespaces map[string]string `json:"namespaces"` // store name -> namespace seen
}

func (d NamespaceDrift) String() string {
	return fmt.Sprintf("namespace drift for chunk %s: %v", d.ChunkID, d.Namespaces)
}
