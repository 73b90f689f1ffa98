package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/community"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/consistency"
	"github.com/stratumhq/stratum/internal/embedding"
	"github.com/stratumhq/stratum/internal/handlers"
	"github.com/stratumhq/stratum/internal/observability"
	"github.com/stratumhq/stratum/internal/retrieval"
	"github.com/stratumhq/stratum/internal/store/graph"
	"github.com/stratumhq/stratum/internal/store/keyword"
	"github.com/stratumhq/stratum/internal/store/memory"
	"github.com/stratumhq/stratum/internal/store/qdrant"
	"github.com/stratumhq/stratum/internal/store/vector"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.JSONFormatter{})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	tracerProvider, err := observability.SetupTracing(context.Background(), observability.TracingConfig{
		Exporter:    observability.ExporterType(cfg.Tracing.Exporter),
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: "stratum",
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up tracing")
	}

	// Stores.
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:    cfg.Qdrant.Host,
		Port:    cfg.Qdrant.Port,
		APIKey:  cfg.Qdrant.APIKey,
		UseTLS:  cfg.Qdrant.UseTLS,
		Timeout: cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create qdrant client")
	}
	vectorStore := vector.NewStore(qdrantClient, cfg.Qdrant.Collection, logger)

	ctx := context.Background()
	if err := vectorStore.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
		logger.WithError(err).Warn("Could not ensure vector collection, continuing")
	}

	keywordIndex := keyword.NewIndex(logger)
	if err := keywordIndex.Load(cfg.Keyword.IndexPath); err != nil {
		logger.WithError(err).Warn("Could not load keyword index snapshot, starting empty")
	}

	graphStore, err := graph.NewStore(graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create graph store")
	}
	defer func() { _ = graphStore.Close(ctx) }()

	memoryStore := memory.NewStore(memory.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TurnTTL:  cfg.Redis.TurnTTL,
	}, logger)
	defer func() { _ = memoryStore.Close() }()

	embedder := embedding.NewClient(embedding.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}, &http.Client{Timeout: cfg.Embedding.Timeout}, logger)

	// Query path.
	engine := retrieval.NewEngine([]retrieval.Retriever{
		retrieval.NewVectorRetriever(embedder, vectorStore, logger),
		retrieval.NewKeywordRetriever(keywordIndex, logger),
		retrieval.NewGraphRetriever(graphStore, cfg.Retrieval.MaxHops, logger),
		retrieval.NewMemoryRetriever(memoryStore, logger),
	}, retrieval.Options{
		TopK:         cfg.Retrieval.TopK,
		RRFK:         cfg.Retrieval.RRFK,
		SectionBoost: cfg.Retrieval.SectionBoostFactor,
		Timeouts: retrieval.Timeouts{
			Vector:  cfg.Retrieval.VectorTimeout,
			Keyword: cfg.Retrieval.KeywordTimeout,
			Graph:   cfg.Retrieval.GraphTimeout,
			Memory:  cfg.Retrieval.MemoryTimeout,
		},
	}, metrics, logger)

	checker := consistency.NewChecker(map[string]consistency.ChunkStore{
		"vector":  vectorStore,
		"keyword": keywordIndex,
		"graph":   graphStore,
	}, vectorStore, 0, metrics, logger)

	// Community detection.
	detector, err := community.NewDetector(cfg.Community.Algorithm, cfg.Community.Resolution, logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid community detection configuration")
	}
	var summarizer community.Summarizer
	if cfg.Community.SummariesEnabled {
		summarizer = community.KeywordSummarizer{}
	}
	detectionDisabled := cfg.Community.Mode == config.CommunityModeDisabled
	job := community.NewJob(graphStore, detector, summarizer, detectionDisabled, metrics, logger)

	var scheduler *community.Scheduler
	if cfg.Community.Mode == config.CommunityModeScheduled {
		scheduler, err = community.NewScheduler(job, cfg.Community.Namespaces, cfg.Community.Schedule, logger)
		if err != nil {
			logger.WithError(err).Fatal("Invalid community detection schedule")
		}
		scheduler.Start()
	}

	// HTTP server.
	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.New(engine, job, scheduler, checker, map[string]handlers.HealthChecker{
		"vector": vectorStore,
		"graph":  graphStore,
		"memory": memoryStore,
	}, cfg.Community.Mode, logger)
	handler.RegisterRoutes(router, registry)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if err := observability.ShutdownTracing(shutdownCtx, tracerProvider); err != nil {
		logger.WithError(err).Error("Tracing shutdown failed")
	}

	if err := keywordIndex.Save(cfg.Keyword.IndexPath); err != nil {
		logger.WithError(err).Error("Failed to persist keyword index")
	}
	logger.Info("Shutdown complete")
}

func ginMode(mode string) string {
	if mode == "debug" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
