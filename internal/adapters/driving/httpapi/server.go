// Package httpapi exposes search and sync over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// Server provides the HTTP endpoints for searchlight.
type Server struct {
	echo   *echo.Echo
	search driving.SearchService
	sync   driving.SyncOrchestrator
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(search driving.SearchService, sync driving.SyncOrchestrator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if search == nil {
		return nil, fmt.Errorf("search service cannot be nil")
	}
	if sync == nil {
		return nil, fmt.Errorf("sync orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

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
		echo:   e,
		search: search,
		sync:   sync,
		logger: logger,
		config: cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/sync", s.handleSync)
	v1.GET("/status", s.handleStatus)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSearch runs a hybrid search for the requester.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	set, err := s.search.Search(c.Request().Context(), domain.Query{
		Text:  req.Query,
		Limit: req.Limit,
		Filters: domain.Filters{
			Space:          req.Space,
			Scopes:         req.Scopes,
			ModifiedAfter:  req.After,
			ModifiedBefore: req.Before,
		},
	})
	if err != nil {
		return domainHTTPError(err)
	}

	resp := SearchResponse{
		Results: make([]SearchResult, 0, len(set.Results)),
		Partial: set.Partial,
	}
	for _, r := range set.Results {
		resp.Results = append(resp.Results, searchResult(r))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSync triggers one sync cycle and reports what it did. The cycle
// runs to completion before the response is written; a failed cycle is
// still a 200 with the failure recorded in the run.
func (s *Server) handleSync(c echo.Context) error {
	run, err := s.sync.RunCycle(c.Request().Context(), domain.TriggerManual)
	if err != nil && run == nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, syncRun(run))
}

// handleStatus reports the sync engine's state, and recent runs when
// ?history=N is given.
func (s *Server) handleStatus(c echo.Context) error {
	status, err := s.sync.Status(c.Request().Context())
	if err != nil {
		return domainHTTPError(err)
	}

	resp := StatusResponse{
		Phase:          string(status.Phase),
		Watermark:      status.Watermark,
		LastSync:       status.LastSync,
		Documents:      status.Documents,
		Chunks:         status.Chunks,
		PendingRetries: status.PendingRetries,
	}

	if raw := c.QueryParam("history"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "history must be a non-negative integer")
		}
		runs, err := s.sync.History(c.Request().Context(), n)
		if err != nil {
			return domainHTTPError(err)
		}
		resp.History = make([]SyncRunSummary, 0, len(runs))
		for i := range runs {
			resp.History = append(resp.History, syncRun(&runs[i]))
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// domainHTTPError maps domain error classes onto HTTP statuses. Anything
// unclassified falls through to echo's default 500 handling.
func domainHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case domain.IsTransient(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return err
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
