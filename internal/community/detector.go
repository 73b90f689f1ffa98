// Package community implements the graph clustering batch job: a Louvain (or
// Leiden-refined) detector over the namespace entity graph, a state-machine
// job with per-namespace locking, a daily scheduler and asynchronous summary
// enrichment.
package community

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	gonumcommunity "gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"golang.org/x/exp/rand"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store/graph"
)

// Supported clustering algorithms.
const (
	AlgorithmLouvain = "louvain"
	AlgorithmLeiden  = "leiden"
)

// detectorSeed fixes the modularization source so re-running over an
// unchanged graph yields the same partition.
const detectorSeed = 1

// Detector partitions an entity graph into communities by modularity
// maximization. Entities without any relation edge stay unassigned.
type Detector struct {
	algorithm  string
	resolution float64
	logger     *logrus.Logger
}

func NewDetector(algorithm string, resolution float64, logger *logrus.Logger) (*Detector, error) {
	switch algorithm {
	case AlgorithmLouvain, AlgorithmLeiden:
	default:
		return nil, fmt.Errorf("unknown clustering algorithm %q", algorithm)
	}
	if resolution <= 0 {
		resolution = 1.0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Detector{algorithm: algorithm, resolution: resolution, logger: logger}, nil
}

// Partition is one detected community: its member entity IDs and the density
// of its induced subgraph.
type Partition struct {
	MemberIDs []string
	Density   float64
}

// Detect clusters the graph. The result is a hard partition: every connected
// entity appears in exactly one partition.
func (d *Detector) Detect(eg *graph.EntityGraph) ([]Partition, error) {
	adjacency, ids := buildAdjacency(eg)
	if len(ids) == 0 {
		return nil, nil
	}

	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := range ids {
		g.AddNode(simple.Node(i))
	}
	for from, neighbors := range adjacency {
		for to, weight := range neighbors {
			if from < to {
				g.SetWeightedEdge(simple.WeightedEdge{
					F: simple.Node(from),
					T: simple.Node(to),
					W: weight,
				})
			}
		}
	}

	reduced := gonumcommunity.Modularize(g, d.resolution, rand.NewSource(detectorSeed))

	var groups [][]int64
	for _, nodes := range reduced.Communities() {
		group := make([]int64, len(nodes))
		for i, n := range nodes {
			group[i] = n.ID()
		}
		groups = append(groups, group)
	}

	if d.algorithm == AlgorithmLeiden {
		groups = refineConnectivity(groups, adjacency)
	}

	partitions := make([]Partition, 0, len(groups))
	for _, group := range groups {
		members := make([]string, len(group))
		for i, id := range group {
			members[i] = ids[id]
		}
		sort.Strings(members)
		partitions = append(partitions, Partition{
			MemberIDs: members,
			Density:   density(group, adjacency),
		})
	}

	// Stable output order for idempotent re-runs.
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].MemberIDs[0] < partitions[j].MemberIDs[0]
	})

	if err := verifyPartition(partitions, len(ids)); err != nil {
		return nil, err
	}
	return partitions, nil
}

// buildAdjacency maps entity IDs to dense indices and merges parallel edges
// by summing weights. Isolated entities are excluded.
func buildAdjacency(eg *graph.EntityGraph) (map[int64]map[int64]float64, map[int64]string) {
	index := make(map[string]int64)
	ids := make(map[int64]string)
	next := int64(0)
	lookup := func(entityID string) int64 {
		if i, ok := index[entityID]; ok {
			return i
		}
		i := next
		next++
		index[entityID] = i
		ids[i] = entityID
		return i
	}

	known := make(map[string]bool, len(eg.Entities))
	for _, e := range eg.Entities {
		known[e.ID] = true
	}

	adjacency := make(map[int64]map[int64]float64)
	addEdge := func(a, b int64, w float64) {
		if adjacency[a] == nil {
			adjacency[a] = make(map[int64]float64)
		}
		adjacency[a][b] += w
	}

	for _, edge := range eg.Edges {
		if !known[edge.SourceID] || !known[edge.TargetID] || edge.SourceID == edge.TargetID {
			continue
		}
		weight := edge.Weight
		if weight <= 0 {
			weight = 1.0
		}
		a, b := lookup(edge.SourceID), lookup(edge.TargetID)
		addEdge(a, b, weight)
		addEdge(b, a, weight)
	}
	return adjacency, ids
}

// refineConnectivity splits any community whose induced subgraph is
// disconnected into its connected components.
func refineConnectivity(groups [][]int64, adjacency map[int64]map[int64]float64) [][]int64 {
	var refined [][]int64
	for _, group := range groups {
		inGroup := make(map[int64]bool, len(group))
		for _, id := range group {
			inGroup[id] = true
		}

		seen := make(map[int64]bool, len(group))
		for _, start := range group {
			if seen[start] {
				continue
			}
			component := []int64{start}
			seen[start] = true
			queue := []int64{start}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for neighbor := range adjacency[cur] {
					if inGroup[neighbor] && !seen[neighbor] {
						seen[neighbor] = true
						component = append(component, neighbor)
						queue = append(queue, neighbor)
					}
				}
			}
			refined = append(refined, component)
		}
	}
	return refined
}

// density is the ratio of present to possible edges within the community.
// Singleton communities have density 1.
func density(group []int64, adjacency map[int64]map[int64]float64) float64 {
	n := len(group)
	if n <= 1 {
		return 1.0
	}
	inGroup := make(map[int64]bool, n)
	for _, id := range group {
		inGroup[id] = true
	}
	edges := 0
	for _, id := range group {
		for neighbor := range adjacency[id] {
			if inGroup[neighbor] && id < neighbor {
				edges++
			}
		}
	}
	possible := n * (n - 1) / 2
	return float64(edges) / float64(possible)
}

// verifyPartition enforces the hard-partition invariant before anything is
// written: no entity in two communities, all connected entities assigned.
func verifyPartition(partitions []Partition, connected int) error {
	assigned := make(map[string]bool)
	total := 0
	for _, p := range partitions {
		for _, id := range p.MemberIDs {
			if assigned[id] {
				return fmt.Errorf("%w: entity %s assigned to multiple communities", model.ErrSchemaViolation, id)
			}
			assigned[id] = true
		}
		total += len(p.MemberIDs)
	}
	if total != connected {
		return fmt.Errorf("%w: partition covers %d of %d connected entities", model.ErrSchemaViolation, total, connected)
	}
	return nil
}
