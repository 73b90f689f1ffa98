package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 6333, cfg.Qdrant.Port)
	assert.Equal(t, "chunks", cfg.Qdrant.Collection)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 60, cfg.Retrieval.RRFK)
	assert.Equal(t, 1.2, cfg.Retrieval.SectionBoostFactor)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.VectorTimeout)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.KeywordTimeout)
	assert.Equal(t, 3*time.Second, cfg.Retrieval.GraphTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Retrieval.MemoryTimeout)
	assert.Equal(t, CommunityModeScheduled, cfg.Community.Mode)
	assert.Equal(t, "louvain", cfg.Community.Algorithm)
	assert.Equal(t, 1.0, cfg.Community.Resolution)
	assert.Equal(t, "05:00", cfg.Community.Schedule)
	assert.Equal(t, []string{"default"}, cfg.Community.Namespaces)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RRF_K", "30")
	t.Setenv("SECTION_BOOST_FACTOR", "1.5")
	t.Setenv("COMMUNITY_DETECTION_MODE", "sync")
	t.Setenv("COMMUNITY_NAMESPACES", "tenant-a, tenant-b")
	t.Setenv("GRAPH_TIMEOUT", "5s")
	t.Setenv("QDRANT_PORT", "7333")

	cfg := Load()

	assert.Equal(t, 30, cfg.Retrieval.RRFK)
	assert.Equal(t, 1.5, cfg.Retrieval.SectionBoostFactor)
	assert.Equal(t, CommunityModeSync, cfg.Community.Mode)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, cfg.Community.Namespaces)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.GraphTimeout)
	assert.Equal(t, 7333, cfg.Qdrant.Port)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("RRF_K", "not-a-number")
	t.Setenv("VECTOR_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 60, cfg.Retrieval.RRFK)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.VectorTimeout)
}
