package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store/graph"
)

// twoClusterGraph builds two dense triangles joined by a single weak edge.
func twoClusterGraph() *graph.EntityGraph {
	entities := []model.Entity{
		{ID: "a1", Name: "alpha one", Namespace: "default"},
		{ID: "a2", Name: "alpha two", Namespace: "default"},
		{ID: "a3", Name: "alpha three", Namespace: "default"},
		{ID: "b1", Name: "beta one", Namespace: "default"},
		{ID: "b2", Name: "beta two", Namespace: "default"},
		{ID: "b3", Name: "beta three", Namespace: "default"},
		{ID: "lonely", Name: "isolated", Namespace: "default"},
	}
	edges := []model.RelationEdge{
		{SourceID: "a1", TargetID: "a2", Weight: 5},
		{SourceID: "a2", TargetID: "a3", Weight: 5},
		{SourceID: "a1", TargetID: "a3", Weight: 5},
		{SourceID: "b1", TargetID: "b2", Weight: 5},
		{SourceID: "b2", TargetID: "b3", Weight: 5},
		{SourceID: "b1", TargetID: "b3", Weight: 5},
		{SourceID: "a1", TargetID: "b1", Weight: 0.1},
	}
	return &graph.EntityGraph{Entities: entities, Edges: edges}
}

func allMembers(partitions []Partition) []string {
	var out []string
	for _, p := range partitions {
		out = append(out, p.MemberIDs...)
	}
	return out
}

func TestDetectorSeparatesClusters(t *testing.T) {
	detector, err := NewDetector(AlgorithmLouvain, 1.0, nil)
	require.NoError(t, err)

	partitions, err := detector.Detect(twoClusterGraph())

	require.NoError(t, err)
	require.Len(t, partitions, 2)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, partitions[0].MemberIDs)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, partitions[1].MemberIDs)
}

func TestDetectorHardPartition(t *testing.T) {
	detector, err := NewDetector(AlgorithmLouvain, 1.0, nil)
	require.NoError(t, err)

	partitions, err := detector.Detect(twoClusterGraph())
	require.NoError(t, err)

	// No entity in two communities; sizes sum to assigned entity count.
	members := allMembers(partitions)
	seen := make(map[string]bool)
	for _, id := range members {
		assert.False(t, seen[id], "entity %s assigned twice", id)
		seen[id] = true
	}
	total := 0
	for _, p := range partitions {
		total += len(p.MemberIDs)
	}
	assert.Equal(t, len(members), total)

	// Isolated entities stay unassigned.
	assert.NotContains(t, members, "lonely")
}

func TestDetectorIdempotentRerun(t *testing.T) {
	detector, err := NewDetector(AlgorithmLouvain, 1.0, nil)
	require.NoError(t, err)

	first, err := detector.Detect(twoClusterGraph())
	require.NoError(t, err)
	second, err := detector.Detect(twoClusterGraph())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].MemberIDs, second[i].MemberIDs)
	}
}

func TestDetectorDensity(t *testing.T) {
	detector, err := NewDetector(AlgorithmLouvain, 1.0, nil)
	require.NoError(t, err)

	partitions, err := detector.Detect(twoClusterGraph())
	require.NoError(t, err)

	for _, p := range partitions {
		// Each triangle has all 3 of 3 possible edges.
		assert.InDelta(t, 1.0, p.Density, 1e-12)
	}
}

func TestDetectorEmptyGraph(t *testing.T) {
	detector, err := NewDetector(AlgorithmLeiden, 1.0, nil)
	require.NoError(t, err)

	partitions, err := detector.Detect(&graph.EntityGraph{})

	require.NoError(t, err)
	assert.Empty(t, partitions)
}

func TestDetectorRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewDetector("girvan-newman", 1.0, nil)
	assert.Error(t, err)
}

func TestRefineConnectivitySplitsDisconnected(t *testing.T) {
	// One "community" containing two disconnected pairs must split in two.
	adjacency := map[int64]map[int64]float64{
		0: {1: 1}, 1: {0: 1},
		2: {3: 1}, 3: {2: 1},
	}
	groups := [][]int64{{0, 1, 2, 3}}

	refined := refineConnectivity(groups, adjacency)

	require.Len(t, refined, 2)
	assert.ElementsMatch(t, []int64{0, 1}, refined[0])
	assert.ElementsMatch(t, []int64{2, 3}, refined[1])
}
