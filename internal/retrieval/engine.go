package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/observability"
)

var tracer = otel.Tracer("stratum/retrieval")

// Timeouts bounds each source individually. A source that exceeds its budget
// is degraded, not fatal.
type Timeouts struct {
	Vector  time.Duration
	Keyword time.Duration
	Graph   time.Duration
	Memory  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Vector:  2 * time.Second,
		Keyword: 2 * time.Second,
		Graph:   3 * time.Second,
		Memory:  500 * time.Millisecond,
	}
}

// DefaultTopK is the result count used when a query does not ask for one.
const DefaultTopK = 10

// Options tunes fusion and re-ranking.
type Options struct {
	TopK         int
	RRFK         int
	SectionBoost float64
	Timeouts     Timeouts
}

// Result is the engine's answer for one query.
type Result struct {
	Results []FusedResult `json:"results"`
	// DegradedSources lists sources that errored or timed out and therefore
	// contributed nothing to fusion.
	DegradedSources []string `json:"degraded_sources,omitempty"`
}

// Engine fans a query out to all configured sources concurrently, waits for
// each to finish or hit its own deadline, fuses the ranked lists and applies
// the section re-ranker. One failed source degrades; only all sources failing
// fails the query.
type Engine struct {
	retrievers []Retriever
	opts       Options
	metrics    *observability.Metrics
	logger     *logrus.Logger
}

func NewEngine(retrievers []Retriever, opts Options, metrics *observability.Metrics, logger *logrus.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.RRFK <= 0 {
		opts.RRFK = DefaultRRFK
	}
	if opts.SectionBoost <= 0 {
		opts.SectionBoost = DefaultSectionBoost
	}
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = DefaultTimeouts()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{retrievers: retrievers, opts: opts, metrics: metrics, logger: logger}
}

func (e *Engine) sourceTimeout(name string) time.Duration {
	switch name {
	case SourceVector:
		return e.opts.Timeouts.Vector
	case SourceKeyword:
		return e.opts.Timeouts.Keyword
	case SourceGraph:
		return e.opts.Timeouts.Graph
	case SourceMemory:
		return e.opts.Timeouts.Memory
	default:
		return 2 * time.Second
	}
}

type sourceResult struct {
	source string
	list   RankedList
	err    error
}

// Search runs the full hybrid query path.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	if q.TopK <= 0 {
		q.TopK = e.opts.TopK
	}

	ctx, span := tracer.Start(ctx, "retrieval.search",
		trace.WithAttributes(
			attribute.String("retrieval.namespace", q.Namespace),
			attribute.Int("retrieval.top_k", q.TopK),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	results := make(chan sourceResult, len(e.retrievers))
	for _, r := range e.retrievers {
		go func(r Retriever) {
			srcStart := time.Now()
			srcCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout(r.Name()))
			defer cancel()

			srcCtx, srcSpan := tracer.Start(srcCtx, "retrieval."+r.Name(),
				trace.WithSpanKind(trace.SpanKindInternal))

			list, err := r.Retrieve(srcCtx, q)
			if err == nil && srcCtx.Err() != nil {
				err = srcCtx.Err()
			}
			if err != nil {
				srcSpan.RecordError(err)
				srcSpan.SetStatus(codes.Error, err.Error())
			} else {
				srcSpan.SetAttributes(attribute.Int("retrieval.result_count", len(list.Items)))
			}
			srcSpan.End()
			if e.metrics != nil {
				e.metrics.SourceDuration.WithLabelValues(r.Name()).Observe(time.Since(srcStart).Seconds())
			}
			results <- sourceResult{source: r.Name(), list: list, err: err}
		}(r)
	}

	var lists []RankedList
	var degraded []string
	for range e.retrievers {
		res := <-results
		if res.err != nil {
			degraded = append(degraded, res.source)
			e.recordFailure(res.source, res.err)
			e.logger.WithFields(logrus.Fields{
				"source":    res.source,
				"namespace": q.Namespace,
			}).WithError(res.err).Warn("Retrieval source degraded")
			continue
		}
		lists = append(lists, res.list)
	}
	sort.Strings(degraded)

	if len(lists) == 0 {
		if e.metrics != nil {
			e.metrics.QueriesTotal.WithLabelValues("failed").Inc()
		}
		span.RecordError(model.ErrAllSourcesUnavailable)
		span.SetStatus(codes.Error, model.ErrAllSourcesUnavailable.Error())
		return nil, model.ErrAllSourcesUnavailable
	}

	fused := Fuse(lists, e.opts.RRFK)
	fused = RerankBySection(fused, q.Text, e.opts.SectionBoost)
	if len(fused) > q.TopK {
		fused = fused[:q.TopK]
	}

	if e.metrics != nil {
		outcome := "ok"
		if len(degraded) > 0 {
			outcome = "degraded"
		}
		e.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
		e.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}

	span.SetAttributes(
		attribute.Int("retrieval.result_count", len(fused)),
		attribute.StringSlice("retrieval.degraded_sources", degraded),
	)

	e.logger.WithFields(logrus.Fields{
		"namespace": q.Namespace,
		"results":   len(fused),
		"degraded":  degraded,
		"elapsed":   time.Since(start),
	}).Debug("Hybrid query completed")

	return &Result{Results: fused, DegradedSources: degraded}, nil
}

func (e *Engine) recordFailure(source string, err error) {
	if e.metrics == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, model.ErrBackendUnavailable):
		reason = "unavailable"
	}
	e.metrics.SourceFailures.WithLabelValues(source, reason).Inc()
}
