package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChunkStore answers with canned counts and namespace tags.
type mockChunkStore struct {
	count      int
	countErr   error
	namespaces map[string]string
}

func (m *mockChunkStore) CountChunks(context.Context, string, string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}

func (m *mockChunkStore) Namespaces(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if ns, ok := m.namespaces[id]; ok {
			out[id] = ns
		}
	}
	return out, nil
}

type mockSampler struct {
	ids []string
	err error
}

func (m *mockSampler) ChunkIDs(context.Context, string, string, int) ([]string, error) {
	return m.ids, m.err
}

func consistentStores(count int, ids []string) map[string]ChunkStore {
	tags := make(map[string]string, len(ids))
	for _, id := range ids {
		tags[id] = "default"
	}
	return map[string]ChunkStore{
		"vector":  &mockChunkStore{count: count, namespaces: tags},
		"keyword": &mockChunkStore{count: count, namespaces: tags},
		"graph":   &mockChunkStore{count: count, namespaces: tags},
	}
}

func TestCheckerConsistentDocument(t *testing.T) {
	ids := []string{"c1", "c2", "c3"}
	checker := NewChecker(consistentStores(3, ids), &mockSampler{ids: ids}, 10, nil, nil)

	report, err := checker.Verify(context.Background(), "d1", "default")

	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, map[string]int{"vector": 3, "keyword": 3, "graph": 3}, report.Counts)
}

func TestCheckerChunkCountMismatch(t *testing.T) {
	// The historically observed shape: graph store holds fewer chunks than
	// the vector store for the same batch.
	stores := consistentStores(17, nil)
	stores["graph"] = &mockChunkStore{count: 14}
	checker := NewChecker(stores, &mockSampler{}, 10, nil, nil)

	report, err := checker.Verify(context.Background(), "d1", "default")

	require.NoError(t, err)
	assert.False(t, report.Consistent())
	require.Len(t, report.CountMismatches, 1)
	assert.Equal(t, "d1", report.CountMismatches[0].DocumentID)
	assert.Equal(t, 17, report.CountMismatches[0].Counts["vector"])
	assert.Equal(t, 14, report.CountMismatches[0].Counts["graph"])
}

func TestCheckerNamespaceDrift(t *testing.T) {
	ids := []string{"c1", "c2"}
	stores := consistentStores(2, ids)
	stores["keyword"] = &mockChunkStore{
		count:      2,
		namespaces: map[string]string{"c1": "default", "c2": "other"},
	}
	checker := NewChecker(stores, &mockSampler{ids: ids}, 10, nil, nil)

	report, err := checker.Verify(context.Background(), "d1", "default")

	require.NoError(t, err)
	assert.False(t, report.Consistent())
	require.Len(t, report.NamespaceDrift, 1)
	assert.Equal(t, "c2", report.NamespaceDrift[0].ChunkID)
	assert.Equal(t, "other", report.NamespaceDrift[0].Namespaces["keyword"])
	assert.Equal(t, "default", report.NamespaceDrift[0].Namespaces["vector"])
}

func TestCheckerMissingChunkIsNotDrift(t *testing.T) {
	ids := []string{"c1"}
	stores := consistentStores(1, ids)
	// Graph store has the chunk missing entirely; only counts should flag it.
	stores["graph"] = &mockChunkStore{count: 0, namespaces: map[string]string{}}
	checker := NewChecker(stores, &mockSampler{ids: ids}, 10, nil, nil)

	report, err := checker.Verify(context.Background(), "d1", "default")

	require.NoError(t, err)
	assert.Len(t, report.CountMismatches, 1)
	assert.Empty(t, report.NamespaceDrift)
}

func TestCheckerStoreFailure(t *testing.T) {
	stores := consistentStores(3, nil)
	stores["graph"] = &mockChunkStore{countErr: errors.New("connection refused")}
	checker := NewChecker(stores, &mockSampler{}, 10, nil, nil)

	_, err := checker.Verify(context.Background(), "d1", "default")

	assert.Error(t, err)
}
