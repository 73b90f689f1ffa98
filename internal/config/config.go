// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Qdrant    QdrantConfig
	Neo4j     Neo4jConfig
	Redis     RedisConfig
	Keyword   KeywordConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Community CommunityConfig
	Tracing   TracingConfig
	LogLevel  string
}

type ServerConfig struct {
	Host         string
	Port         string
	Mode         string // "debug" or "release"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Timeout    time.Duration
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// TurnTTL bounds how long session memory entries live.
	TurnTTL time.Duration
}

type KeywordConfig struct {
	// IndexPath is where the BM25 index snapshot is persisted.
	IndexPath string
}

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type RetrievalConfig struct {
	TopK               int
	RRFK               int
	SectionBoostFactor float64
	VectorTimeout      time.Duration
	KeywordTimeout     time.Duration
	GraphTimeout       time.Duration
	MemoryTimeout      time.Duration
	// MaxHops bounds local-mode graph expansion.
	MaxHops int
}

// Community detection execution modes. The mode is read once per ingestion
// request and fully determines whether ingestion blocks on clustering.
const (
	CommunityModeScheduled = "scheduled"
	CommunityModeSync      = "sync"
	CommunityModeDisabled  = "disabled"
)

type CommunityConfig struct {
	Mode       string
	Algorithm  string // "louvain" or "leiden"
	Resolution float64
	// Schedule is the local time of day ("HH:MM") the daily run starts.
	Schedule         string
	SummariesEnabled bool
	// Namespaces lists the tenants the scheduled job covers.
	Namespaces []string
}

type TracingConfig struct {
	// Exporter is "otlp", "console" or "none".
	Exporter    string
	Endpoint    string
	Insecure    bool
	Environment string
}

// Load reads configuration from environment variables with defaults suitable
// for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			Mode:         getEnv("SERVER_MODE", "release"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getIntEnv("QDRANT_PORT", 6333),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			UseTLS:     getBoolEnv("QDRANT_USE_TLS", false),
			Collection: getEnv("QDRANT_COLLECTION", "chunks"),
			Timeout:    getDurationEnv("QDRANT_TIMEOUT", 10*time.Second),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USERNAME", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			TurnTTL:  getDurationEnv("MEMORY_TURN_TTL", 2*time.Hour),
		},
		Keyword: KeywordConfig{
			IndexPath: getEnv("KEYWORD_INDEX_PATH", "data/keyword.idx"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8001/v1"),
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getIntEnv("EMBEDDING_DIMENSION", 1536),
			Timeout:   getDurationEnv("EMBEDDING_TIMEOUT", 15*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:               getIntEnv("RETRIEVAL_TOP_K", 10),
			RRFK:               getIntEnv("RRF_K", 60),
			SectionBoostFactor: getFloatEnv("SECTION_BOOST_FACTOR", 1.2),
			VectorTimeout:      getDurationEnv("VECTOR_TIMEOUT", 2*time.Second),
			KeywordTimeout:     getDurationEnv("KEYWORD_TIMEOUT", 2*time.Second),
			GraphTimeout:       getDurationEnv("GRAPH_TIMEOUT", 3*time.Second),
			MemoryTimeout:      getDurationEnv("MEMORY_TIMEOUT", 500*time.Millisecond),
			MaxHops:            getIntEnv("GRAPH_MAX_HOPS", 1),
		},
		Community: CommunityConfig{
			Mode:             getEnv("COMMUNITY_DETECTION_MODE", CommunityModeScheduled),
			Algorithm:        getEnv("COMMUNITY_ALGORITHM", "louvain"),
			Resolution:       getFloatEnv("COMMUNITY_RESOLUTION", 1.0),
			Schedule:         getEnv("COMMUNITY_SCHEDULE", "05:00"),
			SummariesEnabled: getBoolEnv("COMMUNITY_SUMMARIES_ENABLED", true),
			Namespaces:       getSliceEnv("COMMUNITY_NAMESPACES", []string{"default"}),
		},
		Tracing: TracingConfig{
			Exporter:    getEnv("TRACING_EXPORTER", "none"),
			Endpoint:    getEnv("TRACING_ENDPOINT", "localhost:4318"),
			Insecure:    getBoolEnv("TRACING_INSECURE", true),
			Environment: getEnv("TRACING_ENVIRONMENT", "development"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
