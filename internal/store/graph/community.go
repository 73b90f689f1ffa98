package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
)

// EntityGraph is the weighted entity graph of one namespace, loaded for
// community detection.
type EntityGraph struct {
	Entities []model.Entity
	Edges    []model.RelationEdge
}

// LoadEntityGraph reads all entities and RELATES edges of a namespace.
func (s *Store) LoadEntityGraph(ctx context.Context, namespace string) (*EntityGraph, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	entityRecords, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity {namespace: $namespace})
			RETURN e.id AS id, e.name AS name, e.type AS type, e.namespace AS namespace, e.description AS description
		`, map[string]interface{}{"namespace": namespace})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}

	edgeRecords, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (a:Entity {namespace: $namespace})-[r:RELATES]->(b:Entity {namespace: $namespace})
			RETURN a.id AS source_id, b.id AS target_id, r.type AS type, r.weight AS weight
		`, map[string]interface{}{"namespace": namespace})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}

	g := &EntityGraph{Entities: recordsToEntities(entityRecords)}
	for _, rec := range edgeRecords {
		edge := model.RelationEdge{Weight: 1.0}
		if v, ok := rec.Get("source_id"); ok {
			edge.SourceID, _ = v.(string)
		}
		if v, ok := rec.Get("target_id"); ok {
			edge.TargetID, _ = v.(string)
		}
		if v, ok := rec.Get("type"); ok {
			edge.Type, _ = v.(string)
		}
		if v, ok := rec.Get("weight"); ok {
			if w, ok := v.(float64); ok && w > 0 {
				edge.Weight = w
			}
		}
		g.Edges = append(g.Edges, edge)
	}
	return g, nil
}

// WriteCommunityRun persists a completed run in a single transaction: the run
// node, all community nodes, MEMBER_OF edges, and the latest-pointer swap.
// Readers see either the previous run or the new one in full, never a mix.
func (s *Store) WriteCommunityRun(ctx context.Context, run model.CommunityRun, communities []model.Community) error {
	commRows := make([]map[string]interface{}, len(communities))
	for i, c := range communities {
		commRows[i] = map[string]interface{}{
			"id":             c.ID,
			"run_id":         c.RunID,
			"namespace":      c.Namespace,
			"member_ids":     c.MemberIDs,
			"size":           c.Size,
			"density":        c.Density,
			"keywords":       c.Keywords,
			"summary":        c.Summary,
			"summary_status": c.SummaryStatus,
		}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `
			CREATE (r:CommunityRun {
				id: $id, namespace: $namespace, algorithm: $algorithm,
				resolution: $resolution, communities: $communities,
				entities: $entities, started_at: $started_at, finished_at: $finished_at
			})
		`, map[string]interface{}{
			"id":          run.ID,
			"namespace":   run.Namespace,
			"algorithm":   run.Algorithm,
			"resolution":  run.Resolution,
			"communities": run.Communities,
			"entities":    run.Entities,
			"started_at":  run.StartedAt.UTC().Format(time.RFC3339Nano),
			"finished_at": run.FinishedAt.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (r:CommunityRun {id: row.run_id})
			CREATE (c:Community {
				id: row.id, run_id: row.run_id, namespace: row.namespace,
				size: row.size, density: row.density, keywords: row.keywords,
				summary: row.summary, summary_status: row.summary_status
			})
			CREATE (c)-[:OF_RUN]->(r)
			WITH c, row
			UNWIND row.member_ids AS member_id
			MATCH (e:Entity {id: member_id})
			CREATE (e)-[:MEMBER_OF]->(c)
		`, map[string]interface{}{"rows": commRows}); err != nil {
			return nil, err
		}

		// Pointer swap last, inside the same tx.
		return tx.Run(ctx, `
			MERGE (p:CommunityPointer {namespace: $namespace})
			WITH p
			OPTIONAL MATCH (p)-[old:LATEST]->()
			DELETE old
			WITH p
			MATCH (r:CommunityRun {id: $run_id})
			CREATE (p)-[:LATEST]->(r)
		`, map[string]interface{}{"namespace": run.Namespace, "run_id": run.ID})
	})
	if err != nil {
		return backendErr(err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"namespace":   run.Namespace,
		"communities": len(communities),
	}).Info("Community run persisted")
	return nil
}

// LatestRun returns the run the latest pointer references, or nil when the
// namespace has never had a completed run.
func (s *Store) LatestRun(ctx context.Context, namespace string) (*model.CommunityRun, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (:CommunityPointer {namespace: $namespace})-[:LATEST]->(r:CommunityRun)
			RETURN r.id AS id, r.namespace AS namespace, r.algorithm AS algorithm,
			       r.resolution AS resolution, r.communities AS communities,
			       r.entities AS entities, r.started_at AS started_at, r.finished_at AS finished_at
		`, map[string]interface{}{"namespace": namespace})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	run := &model.CommunityRun{}
	if v, ok := rec.Get("id"); ok {
		run.ID, _ = v.(string)
	}
	if v, ok := rec.Get("namespace"); ok {
		run.Namespace, _ = v.(string)
	}
	if v, ok := rec.Get("algorithm"); ok {
		run.Algorithm, _ = v.(string)
	}
	if v, ok := rec.Get("resolution"); ok {
		run.Resolution, _ = v.(float64)
	}
	if v, ok := rec.Get("communities"); ok {
		if n, ok := v.(int64); ok {
			run.Communities = int(n)
		}
	}
	if v, ok := rec.Get("entities"); ok {
		if n, ok := v.(int64); ok {
			run.Entities = int(n)
		}
	}
	if v, ok := rec.Get("started_at"); ok {
		if ts, ok := v.(string); ok {
			run.StartedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
	}
	if v, ok := rec.Get("finished_at"); ok {
		if ts, ok := v.(string); ok {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
	}
	return run, nil
}

// CommunitiesForRun returns all communities of a run with their member IDs.
func (s *Store) CommunitiesForRun(ctx context.Context, runID string) ([]model.Community, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Community {run_id: $run_id})
			OPTIONAL MATCH (e:Entity)-[:MEMBER_OF]->(c)
			RETURN c.id AS id, c.run_id AS run_id, c.namespace AS namespace,
			       c.size AS size, c.density AS density, c.keywords AS keywords,
			       c.summary AS summary, c.summary_status AS summary_status,
			       collect(e.id) AS member_ids
		`, map[string]interface{}{"run_id": runID})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, backendErr(err)
	}

	communities := make([]model.Community, 0, len(records))
	for _, rec := range records {
		communities = append(communities, recordToCommunity(rec))
	}
	return communities, nil
}

// ChunksForCommunities returns the chunks mentioned by member entities of the
// given communities, deduplicated.
func (s *Store) ChunksForCommunities(ctx context.Context, namespace string, communityIDs []string) ([]model.Chunk, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity)-[:MEMBER_OF]->(c:Community)
			WHERE c.id IN $community_ids
			MATCH (e)-[:MENTIONS]->(ch:Chunk {namespace: $namespace})
			RETURN DISTINCT ch.id AS id, ch.document_id AS document_id, ch.namespace AS namespace,
			       ch.text AS text, ch.primary_section_id AS primary_section_id,
			       ch.section_ids AS section_ids, ch.section_heading AS section_heading
		`, map[string]interface{}{"namespace": namespace, "community_ids": communityIDs})
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

// UpdateCommunitySummary replaces a community's summary and status. Used by
// the asynchronous summarizer after the run is already visible.
func (s *Store) UpdateCommunitySummary(ctx context.Context, communityID, summary, status string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			MATCH (c:Community {id: $id})
			SET c.summary = $summary, c.summary_status = $status
		`, map[string]interface{}{"id": communityID, "summary": summary, "status": status})
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

func recordToCommunity(rec *neo4j.Record) model.Community {
	c := model.Community{}
	if v, ok := rec.Get("id"); ok {
		c.ID, _ = v.(string)
	}
	if v, ok := rec.Get("run_id"); ok {
		c.RunID, _ = v.(string)
	}
	if v, ok := rec.Get("namespace"); ok {
		c.Namespace, _ = v.(string)
	}
	if v, ok := rec.Get("size"); ok {
		if n, ok := v.(int64); ok {
			c.Size = int(n)
		}
	}
	if v, ok := rec.Get("density"); ok {
		c.Density, _ = v.(float64)
	}
	if v, ok := rec.Get("summary"); ok {
		c.Summary, _ = v.(string)
	}
	if v, ok := rec.Get("summary_status"); ok {
		c.SummaryStatus, _ = v.(string)
	}
	if v, ok := rec.Get("keywords"); ok {
		if raw, ok := v.([]interface{}); ok {
			for _, item := range raw {
				if kw, ok := item.(string); ok {
					c.Keywords = append(c.Keywords, kw)
				}
			}
		}
	}
	if v, ok := rec.Get("member_ids"); ok {
		if raw, ok := v.([]interface{}); ok {
			for _, item := range raw {
				if id, ok := item.(string); ok && id != "" {
					c.MemberIDs = append(c.MemberIDs, id)
				}
			}
		}
	}
	return c
}
