// Package api exposes the pipeline over HTTP: query handling, feedback
// capture, and health. Auth and rate limiting live in front of this
// service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/musicofhel/enterprise-pipeline/pkg/audit"
	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/database"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// QueryHandler is the pipeline entry point the server fronts. Satisfied
// by orchestrator.Orchestrator.
type QueryHandler interface {
	Handle(ctx context.Context, query models.Query) models.Response
}

// Server wires the HTTP surface to the orchestrator.
type Server struct {
	cfg      *config.Config
	handler  QueryHandler
	dbClient *database.Client
	auditRec *audit.Recorder
	metrics  metrics.Sink
}

// NewServer creates the server. dbClient may be nil when running against
// in-memory sinks.
func NewServer(cfg *config.Config, handler QueryHandler, dbClient *database.Client, auditRec *audit.Recorder, sink metrics.Sink) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		dbClient: dbClient,
		auditRec: auditRec,
		metrics:  sink,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	router.POST("/v1/query", s.handleQuery)
	router.POST("/v1/feedback", s.handleFeedback)
	router.GET("/health", s.handleHealth)

	return router
}

func (s *Server) handleQuery(c *gin.Context) {
	var query models.Query
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := query.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := s.handler.Handle(c.Request.Context(), query)
	c.JSON(http.StatusOK, resp)
}

// feedbackRequest is the body of POST /v1/feedback.
type feedbackRequest struct {
	TraceID  string `json:"trace_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	TenantID string `json:"tenant_id" binding:"required"`
	Rating   string `json:"rating" binding:"required"`
	Comment  string `json:"comment"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Rating != "up" && req.Rating != "down" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be 'up' or 'down'"})
		return
	}

	if err := s.auditRec.FeedbackWrite(c.Request.Context(), req.TraceID, req.UserID, req.TenantID, req.Rating); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
		return
	}
	s.metrics.Inc(c.Request.Context(), metrics.FeedbackTotal,
		map[string]string{"rating": req.Rating}, 1)

	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (s *Server) handleHealth(c *gin.Context) {
	payload := gin.H{
		"status":           "healthy",
		"pipeline_version": s.cfg.PipelineVersion,
		"config_hash":      s.cfg.Hash(),
	}

	if s.dbClient != nil {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(reqCtx, s.dbClient.Pool())
		payload["database"] = dbHealth
		if err != nil {
			payload["status"] = "unhealthy"
			payload["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, payload)
			return
		}
	}

	c.JSON(http.StatusOK, payload)
}
