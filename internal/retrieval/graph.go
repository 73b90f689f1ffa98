package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/text"
)

// seedLimit caps how many seed entities a query can match.
const seedLimit = 10

// hopDecay reduces the score contribution per hop away from a seed entity.
const hopDecay = 0.2

// GraphQuerier is the slice of the graph store the retriever needs.
type GraphQuerier interface {
	FindEntitiesByTokens(ctx context.Context, namespace string, tokens []string, limit int) ([]model.Entity, error)
	EntitiesForSection(ctx context.Context, namespace, sectionID string) ([]model.Entity, error)
	ChunksForEntities(ctx context.Context, namespace string, entityIDs []string) ([]model.Chunk, error)
	NeighborEntityIDs(ctx context.Context, namespace string, entityIDs []string) ([]string, error)
	LatestRun(ctx context.Context, namespace string) (*model.CommunityRun, error)
	CommunitiesForRun(ctx context.Context, runID string) ([]model.Community, error)
	ChunksForCommunities(ctx context.Context, namespace string, communityIDs []string) ([]model.Chunk, error)
}

// GraphRetriever retrieves chunks through the entity graph. Local mode
// expands a seed entity set through mention and relation edges with a score
// that decays per hop. Global mode resolves the best-matching community of
// the latest completed detection run.
type GraphRetriever struct {
	store   GraphQuerier
	maxHops int
	logger  *logrus.Logger
}

func NewGraphRetriever(store GraphQuerier, maxHops int, logger *logrus.Logger) *GraphRetriever {
	if maxHops < 0 {
		maxHops = 0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &GraphRetriever{store: store, maxHops: maxHops, logger: logger}
}

func (r *GraphRetriever) Name() string { return SourceGraph }

func (r *GraphRetriever) Retrieve(ctx context.Context, q Query) (RankedList, error) {
	if q.GlobalGraph {
		return r.retrieveGlobal(ctx, q)
	}
	return r.retrieveLocal(ctx, q)
}

// retrieveLocal expands from seed entities matched by query tokens. No seeds
// is an empty result, not an error.
func (r *GraphRetriever) retrieveLocal(ctx context.Context, q Query) (RankedList, error) {
	list := RankedList{Source: SourceGraph}

	tokens := text.Tokenize(q.Text)
	if len(tokens) == 0 {
		return list, nil
	}

	seeds, err := r.seedEntities(ctx, q, tokens)
	if err != nil {
		return list, fmt.Errorf("graph retriever: %w", err)
	}
	if len(seeds) == 0 {
		return list, nil
	}

	visited := mapset.NewThreadUnsafeSet[string]()
	frontier := make([]string, 0, len(seeds))
	for _, e := range seeds {
		visited.Add(e.ID)
		frontier = append(frontier, e.ID)
	}

	// chunk ID -> best score across hops.
	best := make(map[string]float64)
	chunks := make(map[string]model.Chunk)

	for depth := 0; depth <= r.maxHops && len(frontier) > 0; depth++ {
		score := 1.0 - float64(depth)*hopDecay
		if score <= 0 {
			break
		}

		reached, err := r.store.ChunksForEntities(ctx, q.Namespace, frontier)
		if err != nil {
			return list, fmt.Errorf("graph retriever: %w", err)
		}
		for _, c := range reached {
			if q.SectionID != "" && !chunkInSection(c, q.SectionID) {
				continue
			}
			if score > best[c.ID] {
				best[c.ID] = score
				chunks[c.ID] = c
			}
		}

		if depth == r.maxHops {
			break
		}
		neighbors, err := r.store.NeighborEntityIDs(ctx, q.Namespace, frontier)
		if err != nil {
			return list, fmt.Errorf("graph retriever: %w", err)
		}
		frontier = frontier[:0]
		for _, id := range neighbors {
			if visited.Contains(id) {
				continue
			}
			visited.Add(id)
			frontier = append(frontier, id)
		}
	}

	list.Items = rankChunkScores(chunks, best, q.TopK)
	return list, nil
}

// seedEntities resolves the initial entity set. With a section filter the
// seeds are restricted to entities the section defines.
func (r *GraphRetriever) seedEntities(ctx context.Context, q Query, tokens []string) ([]model.Entity, error) {
	if q.SectionID == "" {
		return r.store.FindEntitiesByTokens(ctx, q.Namespace, tokens, seedLimit)
	}

	defined, err := r.store.EntitiesForSection(ctx, q.Namespace, q.SectionID)
	if err != nil {
		return nil, err
	}
	var seeds []model.Entity
	for _, e := range defined {
		name := strings.ToLower(e.Name)
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				seeds = append(seeds, e)
				break
			}
		}
		if len(seeds) == seedLimit {
			break
		}
	}
	return seeds, nil
}

// retrieveGlobal resolves the community of the latest run whose keywords best
// match the query. No completed run, or no matching community, is an empty
// result.
func (r *GraphRetriever) retrieveGlobal(ctx context.Context, q Query) (RankedList, error) {
	list := RankedList{Source: SourceGraph}

	run, err := r.store.LatestRun(ctx, q.Namespace)
	if err != nil {
		return list, fmt.Errorf("graph retriever: %w", err)
	}
	if run == nil {
		return list, nil
	}
	list.RunID = run.ID

	communities, err := r.store.CommunitiesForRun(ctx, run.ID)
	if err != nil {
		return list, fmt.Errorf("graph retriever: %w", err)
	}

	queryTokens := text.TokenSet(q.Text)
	bestID := ""
	bestOverlap := 0
	bestSize := 0
	for _, c := range communities {
		keywordTokens := mapset.NewThreadUnsafeSet[string]()
		for _, kw := range c.Keywords {
			keywordTokens.Add(strings.ToLower(kw))
		}
		for _, tok := range text.Tokenize(c.Summary) {
			keywordTokens.Add(tok)
		}
		overlap := queryTokens.Intersect(keywordTokens).Cardinality()
		if overlap == 0 {
			continue
		}
		if overlap > bestOverlap ||
			(overlap == bestOverlap && c.Size > bestSize) ||
			(overlap == bestOverlap && c.Size == bestSize && c.ID < bestID) {
			bestID = c.ID
			bestOverlap = overlap
			bestSize = c.Size
		}
	}
	if bestID == "" {
		return list, nil
	}

	reached, err := r.store.ChunksForCommunities(ctx, q.Namespace, []string{bestID})
	if err != nil {
		return list, fmt.Errorf("graph retriever: %w", err)
	}

	// Order community chunks by lexical affinity to the query.
	scores := make(map[string]float64, len(reached))
	chunks := make(map[string]model.Chunk, len(reached))
	denom := float64(queryTokens.Cardinality())
	for _, c := range reached {
		chunkTokens := text.TokenSet(c.Text)
		score := 0.0
		if denom > 0 {
			score = float64(queryTokens.Intersect(chunkTokens).Cardinality()) / denom
		}
		scores[c.ID] = score
		chunks[c.ID] = c
	}

	list.Items = rankChunkScores(chunks, scores, q.TopK)
	return list, nil
}

func chunkInSection(c model.Chunk, sectionID string) bool {
	if c.PrimarySectionID == sectionID {
		return true
	}
	for _, sid := range c.SectionIDs {
		if sid == sectionID {
			return true
		}
	}
	return false
}

func rankChunkScores(chunks map[string]model.Chunk, scores map[string]float64, topK int) []ScoredItem {
	items := make([]ScoredItem, 0, len(chunks))
	for id, c := range chunks {
		items = append(items, ScoredItem{
			ChunkID:        id,
			DocumentID:     c.DocumentID,
			Namespace:      c.Namespace,
			Text:           c.Text,
			SectionID:      c.PrimarySectionID,
			SectionHeading: c.SectionHeading,
			Score:          scores[id],
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ChunkID < items[j].ChunkID
	})
	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}
	return items
}
