// Package api is the inbound HTTP surface of the judge worker: the judge
// intake, the test-data pull trigger and the health and metrics endpoints.
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cpjudge/internal/datapack"
	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/taskinfo"
	"cpjudge/internal/metrics"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

const authHeader = "X-Auth-Token"

// Server wires the HTTP handlers to the judge internals.
type Server struct {
	secret   string
	cache    *taskinfo.Manager
	puller   datapack.Puller
	metrics  *metrics.Metrics
	draining atomic.Bool
}

// NewServer creates the HTTP surface.
func NewServer(secret string, cache *taskinfo.Manager, puller datapack.Puller, m *metrics.Metrics) *Server {
	return &Server{secret: secret, cache: cache, puller: puller, metrics: m}
}

// BeginDrain makes the intake refuse new submissions while shutdown
// drains the queues.
func (s *Server) BeginDrain() {
	s.draining.Store(true)
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/ping", s.handlePing)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	authed := r.Group("/", s.requireAuth)
	authed.POST("/judge", s.handleJudge)
	authed.POST("/pull_test_cases", s.handlePullTestCases)
	return r
}

// requestLogger logs one line per request. Metrics scrapes are skipped to
// keep the log readable.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireAuth checks the shared secret. Failures answer 200 with
// success=false so the frontend treats them as a protocol-level refusal
// rather than a transport fault to retry.
func (s *Server) requireAuth(c *gin.Context) {
	if c.GetHeader(authHeader) != s.secret {
		logger.Warn(c.Request.Context(), "rejected request with bad auth token",
			zap.String("path", c.FullPath()), zap.String("remote", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.Next()
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleJudge admits one submission. The task-info cache decides whether
// it goes straight to the judge queue or waits for a snapshot refresh.
func (s *Server) handleJudge(c *gin.Context) {
	if s.draining.Load() {
		c.JSON(appErr.ShutdownActive.HTTPStatus(), gin.H{
			"success": false,
			"message": appErr.ShutdownActive.Message(),
		})
		return
	}

	var req model.JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "malformed judge request"})
		return
	}
	if err := validateJudgeRequest(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := s.cache.Submit(c.Request.Context(), req); err != nil {
		code := appErr.GetCode(err)
		logger.Error(c.Request.Context(), "submission admission failed",
			zap.Int64("submission_id", req.Submission.ID), zap.Error(err))
		c.JSON(code.HTTPStatus(), gin.H{"success": false, "message": code.Message()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handlePullTestCases refreshes the local test-case tree from upstream.
func (s *Server) handlePullTestCases(c *gin.Context) {
	if err := s.puller.Pull(c.Request.Context()); err != nil {
		code := appErr.GetCode(err)
		logger.Error(c.Request.Context(), "test case pull failed", zap.Error(err))
		c.JSON(code.HTTPStatus(), gin.H{"success": false, "message": code.Message()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func validateJudgeRequest(req model.JudgeRequest) error {
	if !model.ValidTaskID(req.TaskInfo.TaskID) {
		return appErr.New(appErr.InvalidParams).WithMessage("task_id must be a plain identifier")
	}
	if req.Submission.ID == 0 {
		return appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}
	if !req.Submission.Language.Valid() {
		return appErr.Newf(appErr.LanguageNotSupported, "unsupported language %q", req.Submission.Language)
	}
	if req.TaskInfo.Grader && !req.TaskInfo.GraderLanguage.Valid() {
		return appErr.New(appErr.InvalidParams).WithMessage("grader_language is required for grader tasks")
	}
	return nil
}
