package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum/internal/model"
)

// mockGraphStore is an in-memory GraphQuerier.
type mockGraphStore struct {
	entities    []model.Entity
	mentions    map[string][]model.Chunk // entity ID -> chunks
	neighbors   map[string][]string      // entity ID -> neighbor entity IDs
	latestRun   *model.CommunityRun
	communities []model.Community
	chunks      map[string][]model.Chunk // community ID -> chunks
	err         error
}

func (m *mockGraphStore) FindEntitiesByTokens(_ context.Context, namespace string, tokens []string, limit int) ([]model.Entity, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Entity
	for _, e := range m.entities {
		if e.Namespace != namespace {
			continue
		}
		for _, tok := range tokens {
			if tok == e.Name {
				out = append(out, e)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockGraphStore) EntitiesForSection(_ context.Context, namespace, sectionID string) ([]model.Entity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entities, nil
}

func (m *mockGraphStore) ChunksForEntities(_ context.Context, namespace string, entityIDs []string) ([]model.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Chunk
	for _, id := range entityIDs {
		out = append(out, m.mentions[id]...)
	}
	return out, nil
}

func (m *mockGraphStore) NeighborEntityIDs(_ context.Context, namespace string, entityIDs []string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for _, id := range entityIDs {
		out = append(out, m.neighbors[id]...)
	}
	return out, nil
}

func (m *mockGraphStore) LatestRun(_ context.Context, namespace string) (*model.CommunityRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.latestRun, nil
}

func (m *mockGraphStore) CommunitiesForRun(_ context.Context, runID string) ([]model.Community, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.communities, nil
}

func (m *mockGraphStore) ChunksForCommunities(_ context.Context, namespace string, communityIDs []string) ([]model.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Chunk
	for _, id := range communityIDs {
		out = append(out, m.chunks[id]...)
	}
	return out, nil
}

func TestGraphRetrieverLocalMode(t *testing.T) {
	store := &mockGraphStore{
		entities: []model.Entity{
			{ID: "e1", Name: "kafka", Namespace: "default"},
		},
		mentions: map[string][]model.Chunk{
			"e1": {{ID: "c1", DocumentID: "d1", Namespace: "default", Text: "kafka basics"}},
			"e2": {{ID: "c2", DocumentID: "d1", Namespace: "default", Text: "zookeeper"}},
		},
		neighbors: map[string][]string{"e1": {"e2"}},
	}
	retriever := NewGraphRetriever(store, 1, nil)

	list, err := retriever.Retrieve(context.Background(), Query{
		Text: "kafka", Namespace: "default", TopK: 10,
	})

	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	// Seed-mention chunk scores above the one-hop neighbor chunk.
	assert.Equal(t, "c1", list.Items[0].ChunkID)
	assert.InDelta(t, 1.0, list.Items[0].Score, 1e-12)
	assert.Equal(t, "c2", list.Items[1].ChunkID)
	assert.InDelta(t, 0.8, list.Items[1].Score, 1e-12)
}

func TestGraphRetrieverLocalModeNoSeeds(t *testing.T) {
	retriever := NewGraphRetriever(&mockGraphStore{}, 1, nil)

	list, err := retriever.Retrieve(context.Background(), Query{
		Text: "nothing matches", Namespace: "default", TopK: 10,
	})

	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestGraphRetrieverLocalModeCyclicGraph(t *testing.T) {
	// e1 <-> e2 cycle must terminate via the visited set.
	store := &mockGraphStore{
		entities: []model.Entity{{ID: "e1", Name: "kafka", Namespace: "default"}},
		mentions: map[string][]model.Chunk{
			"e1": {{ID: "c1", Namespace: "default", DocumentID: "d1"}},
			"e2": {{ID: "c2", Namespace: "default", DocumentID: "d1"}},
		},
		neighbors: map[string][]string{"e1": {"e2"}, "e2": {"e1"}},
	}
	retriever := NewGraphRetriever(store, 3, nil)

	list, err := retriever.Retrieve(context.Background(), Query{
		Text: "kafka", Namespace: "default", TopK: 10,
	})

	require.NoError(t, err)
	assert.Len(t, list.Items, 2)
}

func TestGraphRetrieverGlobalMode(t *testing.T) {
	t.Run("no completed run yields empty", func(t *testing.T) {
		retriever := NewGraphRetriever(&mockGraphStore{}, 1, nil)

		list, err := retriever.Retrieve(context.Background(), Query{
			Text: "kafka", Namespace: "default", GlobalGraph: true,
		})

		require.NoError(t, err)
		assert.Empty(t, list.Items)
		assert.Empty(t, list.RunID)
	})

	t.Run("labels results with run id", func(t *testing.T) {
		store := &mockGraphStore{
			latestRun: &model.CommunityRun{ID: "run-1", Namespace: "default"},
			communities: []model.Community{
				{ID: "comm-1", RunID: "run-1", Size: 3, Keywords: []string{"kafka", "streaming"}},
				{ID: "comm-2", RunID: "run-1", Size: 2, Keywords: []string{"billing"}},
			},
			chunks: map[string][]model.Chunk{
				"comm-1": {{ID: "c1", Namespace: "default", Text: "kafka streaming guide"}},
			},
		}
		retriever := NewGraphRetriever(store, 1, nil)

		list, err := retriever.Retrieve(context.Background(), Query{
			Text: "kafka streaming", Namespace: "default", GlobalGraph: true, TopK: 10,
		})

		require.NoError(t, err)
		assert.Equal(t, "run-1", list.RunID)
		require.Len(t, list.Items, 1)
		assert.Equal(t, "c1", list.Items[0].ChunkID)
	})

	t.Run("no matching community yields empty", func(t *testing.T) {
		store := &mockGraphStore{
			latestRun:   &model.CommunityRun{ID: "run-1", Namespace: "default"},
			communities: []model.Community{{ID: "comm-1", Keywords: []string{"billing"}}},
		}
		retriever := NewGraphRetriever(store, 1, nil)

		list, err := retriever.Retrieve(context.Background(), Query{
			Text: "kafka", Namespace: "default", GlobalGraph: true,
		})

		require.NoError(t, err)
		assert.Empty(t, list.Items)
		assert.Equal(t, "run-1", list.RunID)
	})
}
