package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, status int, handler func(req embeddingRequest) embeddingResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(handler(req))
		}
	}))
}

func TestClientEmbedBatch(t *testing.T) {
	server := embeddingServer(t, http.StatusOK, func(req embeddingRequest) embeddingResponse {
		var resp embeddingResponse
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingVector{Index: i, Embedding: []float32{0.1, 0.2, 0.3}})
		}
		return resp
	})
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model", Dimension: 3}, server.Client(), nil)

	vectors, err := client.EmbedBatch(context.Background(), []string{"one", "two"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
}

func TestClientEmbedSingle(t *testing.T) {
	server := embeddingServer(t, http.StatusOK, func(req embeddingRequest) embeddingResponse {
		return embeddingResponse{Data: []embeddingVector{{Index: 0, Embedding: []float32{1, 2}}}}
	})
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model"}, server.Client(), nil)

	vector, err := client.Embed(context.Background(), "query")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vector)
}

func TestClientDimensionMismatch(t *testing.T) {
	server := embeddingServer(t, http.StatusOK, func(req embeddingRequest) embeddingResponse {
		return embeddingResponse{Data: []embeddingVector{{Index: 0, Embedding: []float32{1, 2}}}}
	})
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model", Dimension: 1536}, server.Client(), nil)

	_, err := client.Embed(context.Background(), "query")

	assert.Error(t, err)
}

func TestClientServerError(t *testing.T) {
	server := embeddingServer(t, http.StatusInternalServerError, nil)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model"}, server.Client(), nil)

	_, err := client.Embed(context.Background(), "query")

	assert.Error(t, err)
}

func TestClientEmptyBatch(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:0", Model: "test-model"}, nil, nil)
	vectors, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
