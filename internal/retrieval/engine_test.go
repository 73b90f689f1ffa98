package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stratumhq/stratum/internal/model"
)

// mockRetriever is a canned per-source retriever.
type mockRetriever struct {
	name  string
	list  RankedList
	err   error
	delay time.Duration

	gotTopK int
}

func (m *mockRetriever) Name() string { return m.name }

func (m *mockRetriever) Retrieve(ctx context.Context, q Query) (RankedList, error) {
	m.gotTopK = q.TopK
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return RankedList{Source: m.name}, ctx.Err()
		}
	}
	if m.err != nil {
		return RankedList{Source: m.name}, m.err
	}
	return m.list, nil
}

func testOptions() Options {
	return Options{
		RRFK:         60,
		SectionBoost: 1.2,
		Timeouts: Timeouts{
			Vector:  200 * time.Millisecond,
			Keyword: 200 * time.Millisecond,
			Graph:   100 * time.Millisecond,
			Memory:  50 * time.Millisecond,
		},
	}
}

func TestEngineSearchFusesAllSources(t *testing.T) {
	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, list: rankedList(SourceVector, "c1", "c2", "c3")},
		&mockRetriever{name: SourceKeyword, list: rankedList(SourceKeyword, "c2", "c1")},
		&mockRetriever{name: SourceGraph, list: rankedList(SourceGraph, "c3", "c1")},
		&mockRetriever{name: SourceMemory, list: RankedList{Source: SourceMemory}},
	}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default", TopK: 10})

	require.NoError(t, err)
	assert.Empty(t, result.DegradedSources)
	assert.Equal(t, []string{"c1", "c2", "c3"}, fusedIDs(result.Results))
}

func TestEngineGracefulDegradation(t *testing.T) {
	// Graph and memory hang past their budgets; vector and keyword answer.
	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, list: rankedList(SourceVector, "c1", "c2")},
		&mockRetriever{name: SourceKeyword, list: rankedList(SourceKeyword, "c2")},
		&mockRetriever{name: SourceGraph, delay: time.Second},
		&mockRetriever{name: SourceMemory, delay: time.Second},
	}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default", TopK: 10})

	require.NoError(t, err)
	assert.Equal(t, []string{SourceGraph, SourceMemory}, result.DegradedSources)
	assert.Equal(t, []string{"c2", "c1"}, fusedIDs(result.Results))
}

func TestEngineAllSourcesUnavailable(t *testing.T) {
	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, err: model.ErrBackendUnavailable},
		&mockRetriever{name: SourceKeyword, err: errors.New("index corrupt")},
		&mockRetriever{name: SourceGraph, delay: time.Second},
		&mockRetriever{name: SourceMemory, err: model.ErrBackendUnavailable},
	}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAllSourcesUnavailable))
	assert.Nil(t, result)
}

func TestEngineSingleSourceStillAnswers(t *testing.T) {
	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, err: model.ErrBackendUnavailable},
		&mockRetriever{name: SourceKeyword, list: rankedList(SourceKeyword, "c1")},
		&mockRetriever{name: SourceGraph, err: model.ErrBackendUnavailable},
		&mockRetriever{name: SourceMemory, err: model.ErrBackendUnavailable},
	}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default"})

	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, fusedIDs(result.Results))
	assert.Equal(t, []string{SourceGraph, SourceMemory, SourceVector}, result.DegradedSources)
}

func TestEngineAppliesTopK(t *testing.T) {
	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, list: rankedList(SourceVector, "c1", "c2", "c3", "c4")},
	}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default", TopK: 2})

	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}

func TestEngineDefaultsTopKWhenOmitted(t *testing.T) {
	// A query without an explicit limit uses the configured default and must
	// still return results, with every source seeing a positive limit.
	vector := &mockRetriever{name: SourceVector, list: rankedList(SourceVector, "c1", "c2")}
	keyword := &mockRetriever{name: SourceKeyword, list: rankedList(SourceKeyword, "c2")}
	engine := NewEngine([]Retriever{vector, keyword}, testOptions(), nil, nil)

	result, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default"})

	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, fusedIDs(result.Results))
	assert.Equal(t, DefaultTopK, vector.gotTopK)
	assert.Equal(t, DefaultTopK, keyword.gotTopK)
}

func TestEngineSearchEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, list: rankedList(SourceVector, "c1")},
		&mockRetriever{name: SourceKeyword, err: model.ErrBackendUnavailable},
	}, testOptions(), nil, nil)

	_, err := engine.Search(context.Background(), Query{Text: "query", Namespace: "default"})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "retrieval.search")
	assert.Contains(t, names, "retrieval."+SourceVector)
	assert.Contains(t, names, "retrieval."+SourceKeyword)
}

func TestEngineParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine([]Retriever{
		&mockRetriever{name: SourceVector, delay: time.Second},
		&mockRetriever{name: SourceKeyword, delay: time.Second},
	}, testOptions(), nil, nil)

	start := time.Now()
	_, err := engine.Search(ctx, Query{Text: "query", Namespace: "default"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
