package retrieval

import (
	"sort"

	"github.com/stratumhq/stratum/internal/text"
)

// DefaultSectionBoost is applied when a result's section heading shares a
// token with the query.
const DefaultSectionBoost = 1.2

// RerankBySection boosts results whose primary section heading overlaps the
// query tokens, then re-sorts. Pure transform: an empty query (or one that
// tokenizes to nothing) returns the input order unchanged.
func RerankBySection(results []FusedResult, query string, boost float64) []FusedResult {
	if boost <= 0 {
		boost = DefaultSectionBoost
	}

	queryTokens := text.TokenSet(query)
	if queryTokens.Cardinality() == 0 {
		return results
	}

	boosted := false
	for i := range results {
		if results[i].SectionHeading == "" {
			continue
		}
		headingTokens := text.TokenSet(results[i].SectionHeading)
		if queryTokens.Intersect(headingTokens).Cardinality() > 0 {
			results[i].Score *= boost
			boosted = true
		}
	}
	if !boosted {
		return results
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
