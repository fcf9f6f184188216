// Package server exposes the shell's HTTP surface: health, Prometheus
// metrics, and a small JSON API for inspecting the manifest and driving
// navigation.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/mfeshell/internal/config"
	"github.com/fyrsmithlabs/mfeshell/internal/loader"
	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
)

// Orchestrator is the slice of the shell controller the API needs.
type Orchestrator interface {
	Navigate(ctx context.Context, path string) error
	CurrentPath() string
	ActiveModule() (string, bool)
	Routes(moduleID string) []routes.Entry
	ModuleStatuses() []loader.Status
}

// Server is the HTTP server for the shell daemon.
type Server struct {
	config    *config.Config
	echo      *echo.Echo
	shell     Orchestrator
	manifests *manifest.Store
	limiter   *rate.Limiter
	logger    *logging.Logger
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	ActiveModule string `json:"active_module,omitempty"`
	CurrentPath  string `json:"current_path,omitempty"`
}

// NavigateRequest is the JSON body for POST /api/v1/navigate.
type NavigateRequest struct {
	Path string `json:"path"`
}

// NavigateResponse reports the outcome of a navigation.
type NavigateResponse struct {
	Path         string `json:"path"`
	ActiveModule string `json:"active_module,omitempty"`
}

// New creates the HTTP server. Navigation requests are rate limited so a
// misbehaving client cannot thrash module swaps.
func New(cfg *config.Config, sh Orchestrator, manifests *manifest.Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	s := &Server{
		config:    cfg,
		echo:      e,
		shell:     sh,
		manifests: manifests,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Server.NavigateRate), cfg.Server.NavigateBurst),
		logger:    logger.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api/v1")
	api.GET("/manifest", s.handleManifest)
	api.GET("/modules", s.handleModules)
	api.GET("/routes", s.handleRoutes)
	api.POST("/navigate", s.handleNavigate)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:      "ok",
		Service:     s.config.Observability.ServiceName,
		CurrentPath: s.shell.CurrentPath(),
	}
	if id, ok := s.shell.ActiveModule(); ok {
		resp.ActiveModule = id
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleManifest(c echo.Context) error {
	m := s.manifests.Current()
	if m == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no manifest loaded")
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleModules(c echo.Context) error {
	statuses := s.shell.ModuleStatuses()
	if statuses == nil {
		statuses = []loader.Status{}
	}
	return c.JSON(http.StatusOK, statuses)
}

func (s *Server) handleRoutes(c echo.Context) error {
	moduleID := c.QueryParam("module")
	if moduleID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "module query parameter is required")
	}
	entries := s.shell.Routes(moduleID)
	if entries == nil {
		entries = []routes.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleNavigate(c echo.Context) error {
	if !s.limiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "navigation rate limit exceeded")
	}

	var req NavigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	ctx := logging.WithRequestID(c.Request().Context(), requestID)
	if err := s.shell.Navigate(ctx, req.Path); err != nil {
		s.logger.Error(ctx, "navigation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("navigation failed: %v", err))
	}

	resp := NavigateResponse{Path: s.shell.CurrentPath()}
	if id, ok := s.shell.ActiveModule(); ok {
		resp.ActiveModule = id
	}
	return c.JSON(http.StatusOK, resp)
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout. Returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }
