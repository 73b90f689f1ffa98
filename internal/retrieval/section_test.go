package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankBySection(t *testing.T) {
	t.Run("boosts heading overlap", func(t *testing.T) {
		results := []FusedResult{
			{ChunkID: "c1", Score: 0.5, SectionHeading: "Payment Processing"},
			{ChunkID: "c2", Score: 0.48, SectionHeading: "Installation Guide"},
		}

		out := RerankBySection(results, "how does installation work", 1.2)

		require.Len(t, out, 2)
		assert.Equal(t, "c2", out[0].ChunkID)
		assert.InDelta(t, 0.48*1.2, out[0].Score, 1e-12)
		assert.InDelta(t, 0.5, out[1].Score, 1e-12)
	})

	t.Run("empty query is a no-op", func(t *testing.T) {
		results := []FusedResult{
			{ChunkID: "c1", Score: 0.5, SectionHeading: "Installation"},
			{ChunkID: "c2", Score: 0.4, SectionHeading: "Installation"},
		}

		out := RerankBySection(results, "", 1.2)

		assert.Equal(t, "c1", out[0].ChunkID)
		assert.InDelta(t, 0.5, out[0].Score, 1e-12)
		assert.InDelta(t, 0.4, out[1].Score, 1e-12)
	})

	t.Run("stop word only query is a no-op", func(t *testing.T) {
		results := []FusedResult{{ChunkID: "c1", Score: 0.5, SectionHeading: "The Guide"}}
		out := RerankBySection(results, "the and of", 1.2)
		assert.InDelta(t, 0.5, out[0].Score, 1e-12)
	})

	t.Run("no overlap leaves order unchanged", func(t *testing.T) {
		results := []FusedResult{
			{ChunkID: "c1", Score: 0.5, SectionHeading: "Alpha"},
			{ChunkID: "c2", Score: 0.4, SectionHeading: "Beta"},
		}
		out := RerankBySection(results, "gamma delta", 1.2)
		assert.Equal(t, []string{"c1", "c2"}, fusedIDs(out))
	})

	t.Run("invalid boost falls back to default", func(t *testing.T) {
		results := []FusedResult{{ChunkID: "c1", Score: 1.0, SectionHeading: "Billing"}}
		out := RerankBySection(results, "billing question", 0)
		assert.InDelta(t, DefaultSectionBoost, out[0].Score, 1e-12)
	})
}
