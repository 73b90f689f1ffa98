// Package consistency verifies cross-store invariants after ingestion: every
// chunk of a document must be present with the same namespace tag in the
// vector, keyword and graph stores. Discrepancies are reported, never
// repaired; repair requires re-ingestion.
package consistency

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/observability"
)

// defaultSampleSize bounds the namespace drift sample per verification.
const defaultSampleSize = 25

// ChunkStore is the slice of a store the checker needs.
type ChunkStore interface {
	CountChunks(ctx context.Context, documentID, namespace string) (int, error)
	Namespaces(ctx context.Context, chunkIDs []string) (map[string]string, error)
}

// Sampler lists chunk IDs of a document for drift sampling. The vector store
// serves this role.
type Sampler interface {
	ChunkIDs(ctx context.Context, documentID, namespace string, limit int) ([]string, error)
}

// Report is the outcome of one verification.
type Report struct {
	DocumentID      string                     `json:"document_id"`
	Namespace       string                     `json:"namespace"`
	Counts          map[string]int             `json:"counts"`
	CountMismatches []model.ChunkCountMismatch `json:"count_mismatches,omitempty"`
	NamespaceDrift  []model.NamespaceDrift     `json:"namespace_drift,omitempty"`
}

// Consistent reports whether the verification found no anomalies.
func (r *Report) Consistent() bool {
	return len(r.CountMismatches) == 0 && len(r.NamespaceDrift) == 0
}

type Checker struct {
	stores     map[string]ChunkStore
	sampler    Sampler
	sampleSize int
	metrics    *observability.Metrics
	logger     *logrus.Logger
}

// NewChecker builds a checker over named stores. Store names appear verbatim
// in reports.
func NewChecker(stores map[string]ChunkStore, sampler Sampler, sampleSize int, metrics *observability.Metrics, logger *logrus.Logger) *Checker {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{
		stores:     stores,
		sampler:    sampler,
		sampleSize: sampleSize,
		metrics:    metrics,
		logger:     logger,
	}
}

// Verify checks chunk counts and namespace tags for one document across all
// stores. Anomalies are returned in the report and logged; only store access
// failures are errors.
func (c *Checker) Verify(ctx context.Context, documentID, namespace string) (*Report, error) {
	report := &Report{
		DocumentID: documentID,
		Namespace:  namespace,
		Counts:     make(map[string]int, len(c.stores)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, store := range c.stores {
		g.Go(func() error {
			count, err := store.CountChunks(gctx, documentID, namespace)
			if err != nil {
				return fmt.Errorf("count in %s store: %w", name, err)
			}
			mu.Lock()
			report.Counts[name] = count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if mismatched(report.Counts) {
		report.CountMismatches = append(report.CountMismatches, model.ChunkCountMismatch{
			DocumentID: documentID,
			Namespace:  namespace,
			Counts:     report.Counts,
		})
	}

	drift, err := c.sampleNamespaces(ctx, documentID, namespace)
	if err != nil {
		return nil, err
	}
	report.NamespaceDrift = drift

	c.record(report)
	return report, nil
}

// sampleNamespaces compares the namespace tag of sampled chunks across all
// stores. A chunk absent from a store is not drift here; absence shows up as
// a count mismatch instead.
func (c *Checker) sampleNamespaces(ctx context.Context, documentID, namespace string) ([]model.NamespaceDrift, error) {
	ids, err := c.sampler.ChunkIDs(ctx, documentID, namespace, c.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample chunk ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	perStore := make(map[string]map[string]string, len(c.stores))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, store := range c.stores {
		g.Go(func() error {
			tags, err := store.Namespaces(gctx, ids)
			if err != nil {
				return fmt.Errorf("namespaces in %s store: %w", name, err)
			}
			mu.Lock()
			perStore[name] = tags
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var drift []model.NamespaceDrift
	for _, id := range ids {
		seen := make(map[string]string)
		distinct := make(map[string]bool)
		for name, tags := range perStore {
			if ns, ok := tags[id]; ok {
				seen[name] = ns
				distinct[ns] = true
			}
		}
		if len(distinct) > 1 {
			drift = append(drift, model.NamespaceDrift{ChunkID: id, Namespaces: seen})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].ChunkID < drift[j].ChunkID })
	return drift, nil
}

func (c *Checker) record(report *Report) {
	for _, m := range report.CountMismatches {
		c.logger.WithFields(logrus.Fields{
			"document_id": m.DocumentID,
			"namespace":   m.Namespace,
			"counts":      m.Counts,
		}).Warn("Chunk count mismatch across stores")
		if c.metrics != nil {
			c.metrics.ConsistencyErrs.WithLabelValues("chunk_count_mismatch").Inc()
		}
	}
	for _, d := range report.NamespaceDrift {
		c.logger.WithFields(logrus.Fields{
			"chunk_id":   d.ChunkID,
			"namespaces": d.Namespaces,
		}).Warn("Namespace drift across stores")
		if c.metrics != nil {
			c.metrics.ConsistencyErrs.WithLabelValues("namespace_drift").Inc()
		}
	}
}

func mismatched(counts map[string]int) bool {
	first := -1
	for _, n := range counts {
		if first == -1 {
			first = n
			continue
		}
		if n != first {
			return true
		}
	}
	return false
}
