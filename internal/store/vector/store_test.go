package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store/qdrant"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) (*Store, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:    parsed.Hostname(),
		Port:    port,
		Timeout: 2 * time.Second,
	}, nil)
	require.NoError(t, err)

	return NewStore(client, "chunks", nil), server
}

func TestIndexChunksSchemaViolation(t *testing.T) {
	requests := 0
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	})

	chunks := []model.Chunk{
		{ID: "c1", DocumentID: "d1", Namespace: "default", Embedding: []float32{0.1}},
		{ID: "c2", DocumentID: "d1", Embedding: []float32{0.2}},
	}

	err := store.IndexChunks(context.Background(), chunks)

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSchemaViolation))
	// The batch must be rejected before anything reaches the backend.
	assert.Equal(t, 0, requests)
}

func TestIndexChunksMissingEmbedding(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := store.IndexChunks(context.Background(), []model.Chunk{
		{ID: "c1", DocumentID: "d1", Namespace: "default"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSchemaViolation))
}

func TestSearchSendsNamespaceFilter(t *testing.T) {
	var captured map[string]interface{}
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"id":    "c1",
					"score": 0.92,
					"payload": map[string]interface{}{
						"namespace":       "default",
						"document_id":     "d1",
						"text":            "hello",
						"section_heading": "Intro",
					},
				},
			},
		})
	})

	hits, err := store.Search(context.Background(), []float32{0.1, 0.2}, "default", "", 5)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.Equal(t, "default", hits[0].Chunk.Namespace)
	assert.Equal(t, "Intro", hits[0].Chunk.SectionHeading)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-6)

	filter, ok := captured["filter"].(map[string]interface{})
	require.True(t, ok, "search request must carry a filter")
	must := filter["must"].([]interface{})
	require.Len(t, must, 1)
	cond := must[0].(map[string]interface{})
	assert.Equal(t, "namespace", cond["key"])
}

func TestSearchWithoutLimitSendsDefault(t *testing.T) {
	// A zero limit must never reach Qdrant, which treats it as "no results".
	var captured map[string]interface{}
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": []map[string]interface{}{}})
	})

	_, err := store.Search(context.Background(), []float32{0.1}, "default", "", 0)

	require.NoError(t, err)
	limit, ok := captured["limit"].(float64)
	require.True(t, ok, "search request must carry a limit")
	assert.Equal(t, float64(defaultSearchLimit), limit)
}

func TestSearchRequiresNamespace(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := store.Search(context.Background(), []float32{0.1}, "", "", 5)

	assert.Error(t, err)
}

func TestSearchBackendUnavailable(t *testing.T) {
	store, server := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server.Close()

	_, err := store.Search(context.Background(), []float32{0.1}, "default", "", 5)

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackendUnavailable))
}

func TestNamespaces(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "c1", "payload": map[string]interface{}{"namespace": "default"}},
				{"id": "c2", "payload": map[string]interface{}{"namespace": "other"}},
			},
		})
	})

	namespaces, err := store.Namespaces(context.Background(), []string{"c1", "c2"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c1": "default", "c2": "other"}, namespaces)
}
