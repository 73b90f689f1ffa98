package retrieval

import (
	"math"
	"sort"
)

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// scoreEpsilon bounds float comparison when deciding a tie.
const scoreEpsilon = 1e-9

// FusedResult is one chunk after fusion, annotated with the sources that
// ranked it.
type FusedResult struct {
	ChunkID        string   `json:"chunk_id"`
	DocumentID     string   `json:"document_id"`
	Namespace      string   `json:"namespace"`
	Text           string   `json:"text"`
	SectionID      string   `json:"section_id,omitempty"`
	SectionHeading string   `json:"section_heading,omitempty"`
	Score          float64  `json:"score"`
	Sources        []string `json:"sources"`
	RunID          string   `json:"run_id,omitempty"`
}

// Fuse merges ranked lists with reciprocal rank fusion:
//
//	score(c) = sum over lists of 1 / (k + rank(c))
//
// using 1-based ranks, deduplicating by chunk ID. Equal scores (within
// epsilon) are broken by the lower minimum rank across lists, then by
// lexicographic chunk ID, so the output order is deterministic for any
// permutation of equally-ranked input.
func Fuse(lists []RankedList, k int) []FusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		result  FusedResult
		minRank int
	}
	byID := make(map[string]*fused)

	for _, list := range lists {
		// A chunk listed twice by one source counts once, at its best rank.
		seen := make(map[string]bool, len(list.Items))
		for i, item := range list.Items {
			if seen[item.ChunkID] {
				continue
			}
			seen[item.ChunkID] = true
			rank := i + 1
			f, ok := byID[item.ChunkID]
			if !ok {
				f = &fused{
					result: FusedResult{
						ChunkID:        item.ChunkID,
						DocumentID:     item.DocumentID,
						Namespace:      item.Namespace,
						Text:           item.Text,
						SectionID:      item.SectionID,
						SectionHeading: item.SectionHeading,
					},
					minRank: rank,
				}
				byID[item.ChunkID] = f
			}
			f.result.Score += 1.0 / float64(k+rank)
			f.result.Sources = append(f.result.Sources, list.Source)
			if rank < f.minRank {
				f.minRank = rank
			}
			if list.RunID != "" && f.result.RunID == "" {
				f.result.RunID = list.RunID
			}
		}
	}

	results := make([]*fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, f)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if math.Abs(a.result.Score-b.result.Score) > scoreEpsilon {
			return a.result.Score > b.result.Score
		}
		if a.minRank != b.minRank {
			return a.minRank < b.minRank
		}
		return a.result.ChunkID < b.result.ChunkID
	})

	out := make([]FusedResult, len(results))
	for i, f := range results {
		out[i] = f.result
	}
	return out
}
