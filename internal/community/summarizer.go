package community

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratumhq/stratum/internal/model"
)

// Summarizer produces a readable summary for one community. The production
// implementation is an external LLM collaborator; this package defines the
// boundary and a deterministic fallback.
type Summarizer interface {
	Summarize(ctx context.Context, c model.Community) (string, error)
}

// KeywordSummarizer renders a summary from the community's statistical
// keywords. Used when no LLM collaborator is configured, so summary status
// still progresses past "statistical" in development setups.
type KeywordSummarizer struct{}

func (KeywordSummarizer) Summarize(_ context.Context, c model.Community) (string, error) {
	if len(c.Keywords) == 0 {
		return fmt.Sprintf("Community of %d entities.", c.Size), nil
	}
	return fmt.Sprintf("Community of %d entities centered on %s.",
		c.Size, strings.Join(c.Keywords, ", ")), nil
}
