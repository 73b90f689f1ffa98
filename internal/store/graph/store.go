// Package graph adapts Neo4j to the entity/chunk model. Node labels:
// Entity, Chunk, Section, Community, CommunityRun. Relationships:
// MENTIONS (entity->chunk), RELATES (entity->entity), DEFINES
// (section->entity), HAS_SUBSECTION (section->section), MEMBER_OF
// (entity->community), LATEST (pointer->run).
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
)

type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

func NewStore(cfg Config, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Store{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// HealthCheck reports store reachability.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func backendErr(err error) error {
	return fmt.Errorf("graph store: %w: %v", model.ErrBackendUnavailable, err)
}

// UpsertEntities merges entities by ID. Entities without a namespace are a
// schema violation; the batch is validated before any write.
func (s *Store) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	for _, e := range entities {
		if e.ID == "" || e.Name == "" {
			return model.SchemaViolationf("entity missing identity fields (id=%q name=%q)", e.ID, e.Name)
		}
		if e.Namespace == "" {
			return model.SchemaViolationf("entity %s has no namespace", e.ID)
		}
	}

	rows := make([]map[string]interface{}, len(entities))
	for i, e := range entities {
		rows[i] = map[string]interface{}{
			"id":          e.ID,
			"name":        e.Name,
			"type":        e.Type,
			"namespace":   e.Namespace,
			"description": e.Description,
		}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (e:Entity {id: row.id})
			SET e.name = row.name,
			    e.type = row.type,
			    e.namespace = row.namespace,
			    e.description = row.description
		`, map[string]interface{}{"rows": rows})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// UpsertChunks mirrors chunk identity and text into the graph so mention
// edges resolve to retrievable chunks.
func (s *Store) UpsertChunks(ctx context.Context, chunks []model.Chunk) error {
	for _, c := range chunks {
		if c.ID == "" || c.DocumentID == "" {
			return model.SchemaViolationf("chunk missing identity fields (id=%q document=%q)", c.ID, c.DocumentID)
		}
		if c.Namespace == "" {
			return model.SchemaViolationf("chunk %s has no namespace", c.ID)
		}
	}

	rows := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]interface{}{
			"id":                 c.ID,
			"document_id":        c.DocumentID,
			"namespace":          c.Namespace,
			"text":               c.Text,
			"primary_section_id": c.PrimarySectionID,
			"section_ids":        c.SectionIDs,
			"section_heading":    c.SectionHeading,
		}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (c:Chunk {id: row.id})
			SET c.document_id = row.document_id,
			    c.namespace = row.namespace,
			    c.text = row.text,
			    c.primary_section_id = row.primary_section_id,
			    c.section_ids = row.section_ids,
			    c.section_heading = row.section_heading
		`, map[string]interface{}{"rows": rows})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// UpsertSections merges section nodes and their HAS_SUBSECTION hierarchy.
func (s *Store) UpsertSections(ctx context.Context, sections []model.Section) error {
	for _, sec := range sections {
		if sec.ID == "" || sec.DocumentID == "" {
			return model.SchemaViolationf("section missing identity fields (id=%q document=%q)", sec.ID, sec.DocumentID)
		}
		if sec.Namespace == "" {
			return model.SchemaViolationf("section %s has no namespace", sec.ID)
		}
	}

	rows := make([]map[string]interface{}, len(sections))
	for i, sec := range sections {
		rows[i] = map[string]interface{}{
			"id":          sec.ID,
			"document_id": sec.DocumentID,
			"namespace":   sec.Namespace,
			"heading":     sec.Heading,
			"level":       sec.Level,
			"page_number": sec.PageNumber,
			"order_index": sec.OrderIndex,
			"parent_id":   sec.ParentSectionID,
		}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (s:Section {id: row.id})
			SET s.document_id = row.document_id,
			    s.namespace = row.namespace,
			    s.heading = row.heading,
			    s.level = row.level,
			    s.page_number = row.page_number,
			    s.order_index = row.order_index
		`, map[string]interface{}{"rows": rows}); err != nil {
			return nil, err
		}
		return tx.Run(ctx, `
			UNWIND $rows AS row
			WITH row WHERE row.parent_id <> ''
			MATCH (parent:Section {id: row.parent_id})
			MATCH (child:Section {id: row.id})
			MERGE (parent)-[:HAS_SUBSECTION]->(child)
		`, map[string]interface{}{"rows": rows})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// AddMentions creates entity->chunk MENTIONS edges.
func (s *Store) AddMentions(ctx context.Context, mentions []model.MentionEdge) error {
	rows := make([]map[string]interface{}, len(mentions))
	for i, m := range mentions {
		rows[i] = map[string]interface{}{"entity_id": m.EntityID, "chunk_id": m.ChunkID}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (e:Entity {id: row.entity_id})
			MATCH (c:Chunk {id: row.chunk_id})
			MERGE (e)-[:MENTIONS]->(c)
		`, map[string]interface{}{"rows": rows})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// AddRelations creates typed entity->entity RELATES edges.
func (s *Store) AddRelations(ctx context.Context, relations []model.RelationEdge) error {
	rows := make([]map[string]interface{}, len(relations))
	for i, r := range relations {
		weight := r.Weight
		if weight == 0 {
			weight = 1.0
		}
		rows[i] = map[string]interface{}{
			"source_id":   r.SourceID,
			"target_id":   r.TargetID,
			"type":        r.Type,
			"description": r.Description,
			"weight":      weight,
		}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (a:Entity {id: row.source_id})
			MATCH (b:Entity {id: row.target_id})
			MERGE (a)-[r:RELATES {type: row.type}]->(b)
			SET r.description = row.description,
			    r.weight = row.weight
		`, map[string]interface{}{"rows": rows})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// AddDefines links sections to the entities they define.
func (s *Store) AddDefines(ctx context.Context, sectionID string, entityIDs []string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			MATCH (s:Section {id: $section_id})
			UNWIND $entity_ids AS eid
			MATCH (e:Entity {id: eid})
			MERGE (s)-[:DEFINES]->(e)
		`, map[string]interface{}{"section_id": sectionID, "entity_ids": entityIDs})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// FindEntitiesByTokens returns entities in the namespace whose lowercased
// name matches one of the query tokens. Used to seed local graph retrieval.
func (s *Store) FindEntitiesByTokens(ctx context.Context, namespace string, tokens []string, limit int) ([]model.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity {namespace: $namespace})
			WHERE any(tok IN $tokens WHERE toLower(e.name) CONTAINS tok)
			RETURN e.id AS id, e.name AS name, e.type AS type, e.namespace AS namespace, e.description AS description
			LIMIT $limit
		`, map[string]interface{}{"namespace": namespace, "tokens": tokens, "limit": limit})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return recordsToEntities(records), nil
}

// EntitiesForSection returns entities linked to a section via DEFINES.
func (s *Store) EntitiesForSection(ctx context.Context, namespace, sectionID string) ([]model.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (s:Section {id: $section_id})-[:DEFINES]->(e:Entity {namespace: $namespace})
			RETURN e.id AS id, e.name AS name, e.type AS type, e.namespace AS namespace, e.description AS description
		`, map[string]interface{}{"section_id": sectionID, "namespace": namespace})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return recordsToEntities(records), nil
}

// ChunksForEntities returns chunks mentioned by any of the given entities,
// restricted to the namespace.
func (s *Store) ChunksForEntities(ctx context.Context, namespace string, entityIDs []string) ([]model.Chunk, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity)-[:MENTIONS]->(c:Chunk {namespace: $namespace})
			WHERE e.id IN $entity_ids
			RETURN DISTINCT c.id AS id, c.document_id AS document_id, c.namespace AS namespace,
			       c.text AS text, c.primary_section_id AS primary_section_id,
			       c.section_ids AS section_ids, c.section_heading AS section_heading
		`, map[string]interface{}{"namespace": namespace, "entity_ids": entityIDs})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}
	return recordsToChunks(records), nil
}

// NeighborEntityIDs returns the one-hop RELATES neighborhood (both
// directions) of the given entities within the namespace.
func (s *Store) NeighborEntityIDs(ctx context.Context, namespace string, entityIDs []string) ([]string, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity)-[:RELATES]-(n:Entity {namespace: $namespace})
			WHERE e.id IN $entity_ids AND NOT n.id IN $entity_ids
			RETURN DISTINCT n.id AS id
		`, map[string]interface{}{"namespace": namespace, "entity_ids": entityIDs})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Get("id"); ok {
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// CountChunks returns how many chunks of a document the graph holds.
func (s *Store) CountChunks(ctx context.Context, documentID, namespace string) (int, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Chunk {document_id: $document_id, namespace: $namespace})
			RETURN count(c) AS count
		`, map[string]interface{}{"document_id": documentID, "namespace": namespace})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return 0, backendErr(err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	if v, ok := records[0].Get("count"); ok {
		if n, ok := v.(int64); ok {
			return int(n), nil
		}
	}
	return 0, nil
}

// Namespaces returns the namespace tag stored for each of the given chunks.
func (s *Store) Namespaces(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Chunk)
			WHERE c.id IN $ids
			RETURN c.id AS id, c.namespace AS namespace
		`, map[string]interface{}{"ids": chunkIDs})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}

	out := make(map[string]string, len(records))
	for _, rec := range records {
		id, _ := rec.Get("id")
		ns, _ := rec.Get("namespace")
		idStr, ok1 := id.(string)
		nsStr, ok2 := ns.(string)
		if ok1 && ok2 {
			out[idStr] = nsStr
		}
	}
	return out, nil
}

func recordsToEntities(records []*neo4j.Record) []model.Entity {
	entities := make([]model.Entity, 0, len(records))
	for _, rec := range records {
		e := model.Entity{}
		if v, ok := rec.Get("id"); ok {
			e.ID, _ = v.(string)
		}
		if v, ok := rec.Get("name"); ok {
			e.Name, _ = v.(string)
		}
		if v, ok := rec.Get("type"); ok {
			e.Type, _ = v.(string)
		}
		if v, ok := rec.Get("namespace"); ok {
			e.Namespace, _ = v.(string)
		}
		if v, ok := rec.Get("description"); ok {
			e.Description, _ = v.(string)
		}
		entities = append(entities, e)
	}
	return entities
}

func recordsToChunks(records []*neo4j.Record) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(records))
	for _, rec := range records {
		c := model.Chunk{}
		if v, ok := rec.Get("id"); ok {
			c.ID, _ = v.(string)
		}
		if v, ok := rec.Get("document_id"); ok {
			c.DocumentID, _ = v.(string)
		}
		if v, ok := rec.Get("namespace"); ok {
			c.Namespace, _ = v.(string)
		}
		if v, ok := rec.Get("text"); ok {
			c.Text, _ = v.(string)
		}
		if v, ok := rec.Get("primary_section_id"); ok {
			c.PrimarySectionID, _ = v.(string)
		}
		if v, ok := rec.Get("section_heading"); ok {
			c.SectionHeading, _ = v.(string)
		}
		if v, ok := rec.Get("section_ids"); ok {
			if raw, ok := v.([]interface{}); ok {
				for _, item := range raw {
					if sid, ok := item.(string); ok {
						c.SectionIDs = append(c.SectionIDs, sid)
					}
				}
			}
		}
		chunks = append(chunks, c)
	}
	return chunks
}
