package community

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/observability"
	"github.com/stratumhq/stratum/internal/store/graph"
	"github.com/stratumhq/stratum/internal/text"
)

// Job states, per namespace.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// keywordCount is how many statistical keywords each community gets.
const keywordCount = 10

// summaryTimeout bounds the asynchronous enrichment pass per run.
const summaryTimeout = 10 * time.Minute

var tracer = otel.Tracer("stratum/community")

// GraphStore is the slice of the graph store the job needs.
type GraphStore interface {
	LoadEntityGraph(ctx context.Context, namespace string) (*graph.EntityGraph, error)
	WriteCommunityRun(ctx context.Context, run model.CommunityRun, communities []model.Community) error
	LatestRun(ctx context.Context, namespace string) (*model.CommunityRun, error)
	CommunitiesForRun(ctx context.Context, runID string) ([]model.Community, error)
	UpdateCommunitySummary(ctx context.Context, communityID, summary, status string) error
}

// nsState tracks one namespace's job state. running doubles as the advisory
// lock: a trigger while running is rejected, never queued.
type nsState struct {
	state      string
	runID      string
	startedAt  time.Time
	finishedAt time.Time
	lastErr    string
}

// Job executes community detection runs, one at a time per namespace. Runs
// across different namespaces proceed concurrently.
type Job struct {
	store      GraphStore
	detector   *Detector
	summarizer Summarizer
	disabled   bool
	metrics    *observability.Metrics
	logger     *logrus.Logger

	mu     sync.Mutex
	states map[string]*nsState
}

// NewJob builds the detection job. A disabled job rejects every run, manual
// triggers included, with ErrDetectionDisabled.
func NewJob(store GraphStore, detector *Detector, summarizer Summarizer, disabled bool, metrics *observability.Metrics, logger *logrus.Logger) *Job {
	if logger == nil {
		logger = logrus.New()
	}
	return &Job{
		store:      store,
		detector:   detector,
		summarizer: summarizer,
		disabled:   disabled,
		metrics:    metrics,
		logger:     logger,
		states:     make(map[string]*nsState),
	}
}

// Status is the externally visible job state for one namespace.
type Status struct {
	Namespace  string    `json:"namespace"`
	State      string    `json:"state"`
	Running    bool      `json:"running"`
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

func (j *Job) Status(namespace string) Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st, ok := j.states[namespace]
	if !ok {
		return Status{Namespace: namespace, State: StateIdle}
	}
	return Status{
		Namespace:  namespace,
		State:      st.state,
		Running:    st.state == StateRunning,
		RunID:      st.runID,
		StartedAt:  st.startedAt,
		FinishedAt: st.finishedAt,
		LastError:  st.lastErr,
	}
}

// acquire transitions the namespace to Running or reports ErrAlreadyRunning.
func (j *Job) acquire(namespace, runID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	st, ok := j.states[namespace]
	if !ok {
		st = &nsState{state: StateIdle}
		j.states[namespace] = st
	}
	if st.state == StateRunning {
		return fmt.Errorf("%w: namespace %s run %s in flight", model.ErrAlreadyRunning, namespace, st.runID)
	}
	st.state = StateRunning
	st.runID = runID
	st.startedAt = time.Now().UTC()
	st.finishedAt = time.Time{}
	st.lastErr = ""
	return nil
}

func (j *Job) release(namespace string, runErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.states[namespace]
	st.finishedAt = time.Now().UTC()
	if runErr != nil {
		st.state = StateFailed
		st.lastErr = runErr.Error()
		return
	}
	st.state = StateCompleted
}

// Trigger starts a run asynchronously and returns its run ID. A run already
// in flight for the namespace is rejected with ErrAlreadyRunning.
func (j *Job) Trigger(namespace string) (string, time.Time, error) {
	if j.disabled {
		j.recordOutcome("disabled")
		return "", time.Time{}, model.ErrDetectionDisabled
	}
	runID := uuid.New().String()
	if err := j.acquire(namespace, runID); err != nil {
		if j.metrics != nil {
			j.metrics.CommunityRuns.WithLabelValues("rejected").Inc()
		}
		return "", time.Time{}, err
	}
	started := j.Status(namespace).StartedAt

	go func() {
		err := j.execute(context.Background(), namespace, runID)
		j.release(namespace, err)
	}()
	return runID, started, nil
}

// Run executes a detection run synchronously. Used by the scheduler and by
// sync-mode ingestion.
func (j *Job) Run(ctx context.Context, namespace string) (string, error) {
	if j.disabled {
		j.recordOutcome("disabled")
		return "", model.ErrDetectionDisabled
	}
	runID := uuid.New().String()
	if err := j.acquire(namespace, runID); err != nil {
		if j.metrics != nil {
			j.metrics.CommunityRuns.WithLabelValues("rejected").Inc()
		}
		return "", err
	}
	err := j.execute(ctx, namespace, runID)
	j.release(namespace, err)
	if err != nil {
		return "", err
	}
	return runID, nil
}

// execute clusters the namespace graph and commits the run. Any error leaves
// the previous run authoritative.
func (j *Job) execute(ctx context.Context, namespace, runID string) (err error) {
	start := time.Now().UTC()
	log := j.logger.WithFields(logrus.Fields{"namespace": namespace, "run_id": runID})
	log.Info("Community detection run started")

	ctx, span := tracer.Start(ctx, "community.detect",
		trace.WithAttributes(
			attribute.String("community.namespace", namespace),
			attribute.String("community.run_id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	eg, err := j.store.LoadEntityGraph(ctx, namespace)
	if err != nil {
		j.recordOutcome("failed")
		return fmt.Errorf("load entity graph: %w", err)
	}

	partitions, err := j.detector.Detect(eg)
	if err != nil {
		j.recordOutcome("failed")
		return fmt.Errorf("detect communities: %w", err)
	}

	entityText := make(map[string]string, len(eg.Entities))
	for _, e := range eg.Entities {
		entityText[e.ID] = e.Name + " " + e.Description
	}

	communities := make([]model.Community, len(partitions))
	for i, p := range partitions {
		communities[i] = model.Community{
			ID:            uuid.New().String(),
			RunID:         runID,
			Namespace:     namespace,
			MemberIDs:     p.MemberIDs,
			Size:          len(p.MemberIDs),
			Density:       p.Density,
			Keywords:      statisticalKeywords(p.MemberIDs, entityText),
			SummaryStatus: model.SummaryStatistical,
		}
	}

	run := model.CommunityRun{
		ID:          runID,
		Namespace:   namespace,
		Algorithm:   j.detector.algorithm,
		Resolution:  j.detector.resolution,
		Communities: len(communities),
		Entities:    assignedEntityCount(communities),
		StartedAt:   start,
		FinishedAt:  time.Now().UTC(),
	}

	if err := j.store.WriteCommunityRun(ctx, run, communities); err != nil {
		j.recordOutcome("failed")
		return fmt.Errorf("write community run: %w", err)
	}
	j.recordOutcome("completed")
	span.SetAttributes(attribute.Int("community.count", len(communities)))
	log.WithField("communities", len(communities)).Info("Community detection run completed")

	if j.summarizer != nil {
		go j.enrichSummaries(namespace, runID, communities)
	}
	return nil
}

// enrichSummaries asks the summarizer for a readable summary per community
// after the run is already committed and visible. Failures mark the community
// but never fail the run.
func (j *Job) enrichSummaries(namespace, runID string, communities []model.Community) {
	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	for _, c := range communities {
		summary, err := j.summarizer.Summarize(ctx, c)
		if err != nil {
			j.logger.WithFields(logrus.Fields{
				"namespace":    namespace,
				"run_id":       runID,
				"community_id": c.ID,
			}).WithError(err).Warn("Community summary generation failed")
			if updateErr := j.store.UpdateCommunitySummary(ctx, c.ID, "", model.SummaryLLMFailed); updateErr != nil {
				j.logger.WithError(updateErr).Warn("Failed to record summary failure")
			}
			continue
		}
		if err := j.store.UpdateCommunitySummary(ctx, c.ID, summary, model.SummaryLLM); err != nil {
			j.logger.WithError(err).Warn("Failed to store community summary")
		}
	}
}

func (j *Job) recordOutcome(outcome string) {
	if j.metrics != nil {
		j.metrics.CommunityRuns.WithLabelValues(outcome).Inc()
	}
}

// statisticalKeywords ranks member entity terms by frequency.
func statisticalKeywords(memberIDs []string, entityText map[string]string) []string {
	freq := make(map[string]int)
	for _, id := range memberIDs {
		for _, tok := range text.Tokenize(entityText[id]) {
			freq[tok]++
		}
	}
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > keywordCount {
		terms = terms[:keywordCount]
	}
	return terms
}

func assignedEntityCount(communities []model.Community) int {
	total := 0
	for _, c := range communities {
		total += c.Size
	}
	return total
}
