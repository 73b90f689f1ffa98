// Package handlers exposes the HTTP surface: the query API, the community
// detection admin endpoints, the consistency verification endpoint, health
// and metrics.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/community"
	"github.com/stratumhq/stratum/internal/consistency"
	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/retrieval"
)

// HealthChecker is any store that can report reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	engine    *retrieval.Engine
	job       *community.Job
	scheduler *community.Scheduler
	checker   *consistency.Checker
	stores    map[string]HealthChecker
	mode      string
	logger    *logrus.Logger
}

// New builds the handler set. scheduler may be nil when the community mode is
// sync or disabled.
func New(engine *retrieval.Engine, job *community.Job, scheduler *community.Scheduler, checker *consistency.Checker, stores map[string]HealthChecker, mode string, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		engine:    engine,
		job:       job,
		scheduler: scheduler,
		checker:   checker,
		stores:    stores,
		mode:      mode,
		logger:    logger,
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (h *Handler) RegisterRoutes(r *gin.Engine, registry *prometheus.Registry) {
	r.POST("/search", h.Search)
	r.POST("/community-detection/trigger", h.TriggerCommunityDetection)
	r.GET("/community-detection/status", h.CommunityDetectionStatus)
	r.POST("/consistency/verify", h.VerifyConsistency)
	r.GET("/health", h.Health)
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}

type searchRequest struct {
	Query         string `json:"query" binding:"required"`
	Namespace     string `json:"namespace" binding:"required"`
	TopK          int    `json:"top_k"`
	SectionFilter string `json:"section_filter"`
	SessionID     string `json:"session_id"`
	GlobalGraph   bool   `json:"global_graph"`
}

// Search runs the hybrid query path.
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Search(c.Request.Context(), retrieval.Query{
		Text:        req.Query,
		Namespace:   req.Namespace,
		SectionID:   req.SectionFilter,
		SessionID:   req.SessionID,
		TopK:        req.TopK,
		GlobalGraph: req.GlobalGraph,
	})
	if err != nil {
		if errors.Is(err, model.ErrAllSourcesUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "all retrieval sources unavailable"})
			return
		}
		h.logger.WithError(err).Error("Search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type triggerRequest struct {
	Namespace string `json:"namespace"`
}

// TriggerCommunityDetection starts a run for the namespace. An in-flight run
// is a conflict, not a queue.
func (h *Handler) TriggerCommunityDetection(c *gin.Context) {
	// Body is optional; namespace may also arrive as a query parameter.
	var req triggerRequest
	_ = c.ShouldBindJSON(&req)
	if req.Namespace == "" {
		req.Namespace = c.DefaultQuery("namespace", "default")
	}

	runID, startedAt, err := h.job.Trigger(req.Namespace)
	if err != nil {
		if errors.Is(err, model.ErrDetectionDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "community detection disabled"})
			return
		}
		if errors.Is(err, model.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "already running",
				"namespace": req.Namespace,
			})
			return
		}
		h.logger.WithError(err).Error("Community detection trigger failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     runID,
		"namespace":  req.Namespace,
		"started_at": startedAt.Format(time.RFC3339),
	})
}

// CommunityDetectionStatus reports the job state for a namespace.
func (h *Handler) CommunityDetectionStatus(c *gin.Context) {
	namespace := c.DefaultQuery("namespace", "default")
	status := h.job.Status(namespace)

	resp := gin.H{
		"namespace": namespace,
		"running":   status.Running,
		"state":     status.State,
		"mode":      h.mode,
	}
	if status.RunID != "" {
		resp["last_run"] = gin.H{
			"run_id":      status.RunID,
			"started_at":  status.StartedAt,
			"finished_at": status.FinishedAt,
		}
	}
	if status.LastError != "" {
		resp["last_error"] = status.LastError
	}
	if h.scheduler != nil {
		resp["next_run"] = h.scheduler.NextRun()
	}

	c.JSON(http.StatusOK, resp)
}

type verifyRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Namespace  string `json:"namespace" binding:"required"`
}

// VerifyConsistency runs the cross-store invariant checker for one document.
func (h *Handler) VerifyConsistency(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.checker.Verify(c.Request.Context(), req.DocumentID, req.Namespace)
	if err != nil {
		h.logger.WithError(err).Error("Consistency verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consistent": report.Consistent(),
		"report":     report,
	})
}

// Health reports per-store reachability. Degraded stores turn the overall
// status to 503 but each store is reported individually.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	stores := make(gin.H, len(h.stores))
	healthy := true
	for name, store := range h.stores {
		if err := store.HealthCheck(ctx); err != nil {
			stores[name] = gin.H{"status": "unavailable", "error": err.Error()}
			healthy = false
			continue
		}
		stores[name] = gin.H{"status": "ok"}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "stores": stores})
}
