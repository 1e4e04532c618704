// Package server provides the HTTP API for skilld.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/reflection"
	"github.com/fyrsmithlabs/skilld/internal/skillbook"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the skillbook service over HTTP.
type Server struct {
	echo    *echo.Echo
	svc     *skillbook.Service
	metrics *Metrics
	logger  *zap.Logger
	config  *Config
	topK    int
}

// NewServer creates a new HTTP server around the skillbook service.
func NewServer(svc *skillbook.Service, logger *zap.Logger, cfg *Config, topK int) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("skillbook service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9290,
		}
	}
	if topK <= 0 {
		topK = 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	m := NewMetrics()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			m.ObserveRequest(c.Request().Method, c.Path(),
				strconv.Itoa(c.Response().Status), duration.Seconds())

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		svc:     svc,
		metrics: m,
		logger:  logger,
		config:  cfg,
		topK:    topK,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.GET("/skills", s.handleSkills)
	v1.GET("/stats", s.handleStats)
	v1.POST("/updates", s.handleUpdates)
	v1.POST("/learn", s.handleLearn)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// SkillsResponse is the response body for GET /api/v1/skills.
type SkillsResponse struct {
	Skills []*SkillView `json:"skills"`
	Total  int          `json:"total"`
}

// SkillView is one skill as returned by the read API.
type SkillView struct {
	ID       string `json:"id"`
	Section  string `json:"section"`
	Content  string `json:"content"`
	Helpful  int    `json:"helpful"`
	Harmful  int    `json:"harmful"`
	Neutral  int    `json:"neutral"`
	NetScore int    `json:"netScore"`
	Level    string `json:"hierarchyLevel"`
}

// handleSkills returns the top-ranked skills matching the loaded context.
func (s *Server) handleSkills(c echo.Context) error {
	limit := s.topK
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	ranked := s.svc.TopSkills(limit)
	views := make([]*SkillView, 0, len(ranked))
	for _, sk := range ranked {
		views = append(views, &SkillView{
			ID:       sk.ID,
			Section:  sk.Section,
			Content:  sk.Content,
			Helpful:  sk.Helpful,
			Harmful:  sk.Harmful,
			Neutral:  sk.Neutral,
			NetScore: sk.NetScore(),
			Level:    string(sk.HierarchyLevel),
		})
	}

	s.metrics.SetSkillsLoaded(s.svc.Len())

	return c.JSON(http.StatusOK, SkillsResponse{Skills: views, Total: s.svc.Len()})
}

// handleStats returns aggregate counts for the loaded skillbook.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Stats())
}

// UpdatesResponse is the response body for POST /api/v1/updates.
type UpdatesResponse struct {
	Results []skillbook.OpResult   `json:"results"`
	Summary skillbook.BatchSummary `json:"summary"`
}

// handleUpdates applies a batch of skillbook operations.
func (s *Server) handleUpdates(c echo.Context) error {
	var batch skillbook.UpdateBatch
	if err := c.Bind(&batch); err != nil {
		s.logger.Warn("invalid updates request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(batch.Operations) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "operations field is required")
	}

	results := s.svc.ApplyUpdate(batch)
	for _, r := range results {
		s.metrics.ObserveUpdateOp(string(r.Op.Type), r.Failed())
	}
	s.metrics.SetSkillsLoaded(s.svc.Len())

	return c.JSON(http.StatusOK, UpdatesResponse{
		Results: results,
		Summary: skillbook.Summarize(results),
	})
}

// LearnRequest is the request body for POST /api/v1/learn.
type LearnRequest struct {
	Report  string `json:"report"`
	Success bool   `json:"success"`
}

// LearnResponse is the response body for POST /api/v1/learn.
type LearnResponse struct {
	ReportID string                 `json:"reportId"`
	Results  []skillbook.OpResult   `json:"results"`
	Summary  skillbook.BatchSummary `json:"summary"`
}

// handleLearn parses a reflection report and applies the derived update.
func (s *Server) handleLearn(c echo.Context) error {
	var req LearnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid learn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Report == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "report field is required")
	}

	report, err := reflection.ParseReport(req.Report)
	if err != nil {
		s.logger.Warn("failed to parse reflection report", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	batch := reflection.BuildUpdate(report, req.Success, s.svc.Context())
	results := s.svc.ApplyUpdate(batch)
	for _, r := range results {
		s.metrics.ObserveUpdateOp(string(r.Op.Type), r.Failed())
	}
	s.metrics.SetSkillsLoaded(s.svc.Len())

	s.logger.Debug("applied reflection report",
		zap.String("report_id", report.ID),
		zap.Int("operations", len(results)),
	)

	return c.JSON(http.StatusOK, LearnResponse{
		ReportID: report.ID,
		Results:  results,
		Summary:  skillbook.Summarize(results),
	})
}

// ServeHTTP dispatches to the underlying echo instance.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
