package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/monitoring"
	"github.com/scriptbox/scriptbox/internal/sandbox"
)

// ExecuteRequest is the POST /execute body.
type ExecuteRequest struct {
	Source              string                 `json:"source" binding:"required"`
	DeadlineMs          int64                  `json:"deadline_ms"`
	Bindings            map[string]interface{} `json:"bindings"`
	IncludeCapabilities *bool                  `json:"include_capabilities"`
	Namespace           string                 `json:"namespace"`
}

// TerminateRequest is the optional POST /executions/:id/terminate body.
type TerminateRequest struct {
	Reason string `json:"reason"`
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	pool     *sandbox.Pool
	registry *capability.Registry
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	version  string
}

// NewHandlers creates a new handler set.
func NewHandlers(
	pool *sandbox.Pool,
	registry *capability.Registry,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
	version string,
) *Handlers {
	return &Handlers{
		pool:     pool,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		version:  version,
	}
}

// Root handles the basic liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "scriptbox",
		"version": h.version,
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"engine":       h.pool.Stats(),
		"capabilities": h.registry.Stats(),
	})
}

// Status returns the JSON metrics snapshot.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": h.metrics.GetSnapshot(),
		"engine":  h.pool.Stats(),
	})
}

// ListCapabilities lists every registered capability table with its
// operations.
func (h *Handlers) ListCapabilities(c *gin.Context) {
	caps := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"capabilities": caps,
		"count":        len(caps),
	})
}

// Execute runs a script and blocks for its outcome.
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.pool.Execute(c.Request.Context(), req.Source, sandbox.Options{
		DeadlineMs:          req.DeadlineMs,
		InitialBindings:     req.Bindings,
		IncludeCapabilities: req.IncludeCapabilities,
		Namespace:           req.Namespace,
	})
	if err != nil {
		h.logger.Warn("execution rejected",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// Terminate cancels an in-flight execution. Idempotent: terminating an
// unknown or settled execution still returns success.
func (h *Handlers) Terminate(c *gin.Context) {
	execID := c.Param("id")
	if execID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution id required"})
		return
	}

	var req TerminateRequest
	_ = c.ShouldBindJSON(&req)

	reason := sandbox.TerminateReason(req.Reason)
	if !reason.Valid() {
		reason = sandbox.ReasonManual
	}

	h.pool.Terminate(execID, reason)
	c.JSON(http.StatusOK, gin.H{
		"terminated": true,
		"id":         execID,
		"reason":     string(reason),
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrEmptySource),
		errors.Is(err, sandbox.ErrNotPlainData):
		return http.StatusBadRequest
	case errors.Is(err, sandbox.ErrPoolTimeout):
		return http.StatusTooManyRequests
	case errors.Is(err, sandbox.ErrPoolClosed),
		errors.Is(err, sandbox.ErrDestroyed),
		errors.Is(err, sandbox.ErrEngineFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
