// Package vector adapts the Qdrant client to the typed chunk model. All
// payload (de)serialization happens here, at the adapter boundary, so every
// indexed point carries the same schema.
package vector

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store/qdrant"
)

// Payload field names shared with the consistency checker.
const (
	fieldNamespace      = "namespace"
	fieldDocumentID     = "document_id"
	fieldText           = "text"
	fieldPrimarySection = "primary_section_id"
	fieldSectionIDs     = "section_ids"
	fieldSectionHeading = "section_heading"
	fieldTokenCount     = "token_count"
)

// defaultSearchLimit bounds ANN search when the caller passes no limit.
const defaultSearchLimit = 10

type Store struct {
	client     *qdrant.Client
	collection string
	logger     *logrus.Logger
}

func NewStore(client *qdrant.Client, collection string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{client: client, collection: collection, logger: logger}
}

// EnsureCollection creates the chunk collection if missing.
func (s *Store) EnsureCollection(ctx context.Context, vectorSize int) error {
	return s.client.EnsureCollection(ctx, &qdrant.CollectionConfig{
		Name:       s.collection,
		VectorSize: vectorSize,
		Distance:   qdrant.DistanceCosine,
	})
}

// IndexChunks upserts chunks with embeddings. A chunk without a namespace or
// an embedding is a schema violation: the whole batch is rejected before any
// write so no partial state reaches the store.
func (s *Store) IndexChunks(ctx context.Context, chunks []model.Chunk) error {
	points := make([]qdrant.Point, 0, len(chunks))
	for _, c := range chunks {
		if c.Namespace == "" {
			return model.SchemaViolationf("chunk %s has no namespace", c.ID)
		}
		if c.ID == "" || c.DocumentID == "" {
			return model.SchemaViolationf("chunk missing identity fields (id=%q document=%q)", c.ID, c.DocumentID)
		}
		if len(c.Embedding) == 0 {
			return model.SchemaViolationf("chunk %s has no embedding", c.ID)
		}
		points = append(points, qdrant.Point{
			ID:      c.ID,
			Vector:  c.Embedding,
			Payload: chunkPayload(c),
		})
	}

	if err := s.client.UpsertPoints(ctx, s.collection, points); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	s.logger.WithField("count", len(points)).Debug("Chunks indexed in vector store")
	return nil
}

// Search runs an ANN search restricted to the namespace, optionally scoped to
// a section. Returns either a full ranked list or an error, never partials.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, namespace string, sectionID string, topK int) ([]model.ScoredChunk, error) {
	if namespace == "" {
		return nil, fmt.Errorf("vector store: namespace is required")
	}
	if topK <= 0 {
		topK = defaultSearchLimit
	}

	filter := qdrant.MatchFilter(qdrant.FieldMatch{Key: fieldNamespace, Value: namespace})
	if sectionID != "" {
		filter = qdrant.AnyFilter(filter, fieldSectionIDs, []string{sectionID})
	}

	hits, err := s.client.Search(ctx, s.collection, queryEmbedding, &qdrant.SearchParams{
		Limit:       topK,
		Filter:      filter,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	results := make([]model.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, model.ScoredChunk{
			Chunk: payloadChunk(hit.ID, hit.Payload),
			Score: float64(hit.Score),
		})
	}
	return results, nil
}

// CountChunks returns how many chunks of a document are indexed.
func (s *Store) CountChunks(ctx context.Context, documentID, namespace string) (int, error) {
	filter := qdrant.MatchFilter(
		qdrant.FieldMatch{Key: fieldDocumentID, Value: documentID},
		qdrant.FieldMatch{Key: fieldNamespace, Value: namespace},
	)
	count, err := s.client.CountPoints(ctx, s.collection, filter)
	if err != nil {
		return 0, fmt.Errorf("vector store: %w", err)
	}
	return int(count), nil
}

// ChunkIDs lists chunk IDs of a document, for consistency sampling.
func (s *Store) ChunkIDs(ctx context.Context, documentID, namespace string, limit int) ([]string, error) {
	filter := qdrant.MatchFilter(
		qdrant.FieldMatch{Key: fieldDocumentID, Value: documentID},
		qdrant.FieldMatch{Key: fieldNamespace, Value: namespace},
	)
	points, _, err := s.client.Scroll(ctx, s.collection, limit, nil, filter)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids, nil
}

// Namespaces returns the namespace tag stored for each of the given chunks.
func (s *Store) Namespaces(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	points, err := s.client.GetPoints(ctx, s.collection, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	out := make(map[string]string, len(points))
	for _, p := range points {
		ns, _ := p.Payload[fieldNamespace].(string)
		out[p.ID] = ns
	}
	return out, nil
}

// HealthCheck reports store reachability.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func chunkPayload(c model.Chunk) map[string]interface{} {
	sectionIDs := c.SectionIDs
	if c.PrimarySectionID != "" && !contains(sectionIDs, c.PrimarySectionID) {
		sectionIDs = append([]string{c.PrimarySectionID}, sectionIDs...)
	}
	return map[string]interface{}{
		fieldNamespace:      c.Namespace,
		fieldDocumentID:     c.DocumentID,
		fieldText:           c.Text,
		fieldPrimarySection: c.PrimarySectionID,
		fieldSectionIDs:     sectionIDs,
		fieldSectionHeading: c.SectionHeading,
		fieldTokenCount:     c.TokenCount,
	}
}

func payloadChunk(id string, payload map[string]interface{}) model.Chunk {
	c := model.Chunk{ID: id}
	if v, ok := payload[fieldNamespace].(string); ok {
		c.Namespace = v
	}
	if v, ok := payload[fieldDocumentID].(string); ok {
		c.DocumentID = v
	}
	if v, ok := payload[fieldText].(string); ok {
		c.Text = v
	}
	if v, ok := payload[fieldPrimarySection].(string); ok {
		c.PrimarySectionID = v
	}
	if v, ok := payload[fieldSectionHeading].(string); ok {
		c.SectionHeading = v
	}
	if v, ok := payload[fieldTokenCount].(float64); ok {
		c.TokenCount = int(v)
	}
	if raw, ok := payload[fieldSectionIDs].([]interface{}); ok {
		for _, item := range raw {
			if sid, ok := item.(string); ok {
				c.SectionIDs = append(c.SectionIDs, sid)
			}
		}
	}
	return c
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
