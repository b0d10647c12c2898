// Package api exposes the search service over HTTP: pipeline search
// and stream resolution, service diagnostics, search history, and the
// websocket search channel.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/adapter"
	apimw "github.com/tonearm/tonearm/internal/api/middleware"
	"github.com/tonearm/tonearm/internal/advisor"
	"github.com/tonearm/tonearm/internal/config"
	"github.com/tonearm/tonearm/internal/engine"
	"github.com/tonearm/tonearm/internal/history"
	"github.com/tonearm/tonearm/internal/orchestrator"
	"github.com/tonearm/tonearm/internal/scheduler"
	"github.com/tonearm/tonearm/internal/websocket"
)

// Deps carries the assembled services the server exposes. Resolver,
// History, Scheduler, Tracker, Registry, and Stream may be nil; the
// matching routes degrade or are not registered.
type Deps struct {
	Config   *config.Config
	Version  string
	Pipeline *orchestrator.Pipeline
	// Workflow serves the guided search path: metadata lookup, release
	// grouping, candidate selection.
	Workflow *orchestrator.Orchestrator
	Engine   *engine.Service
	// Resolver answers POST /resolve when the active profile carries
	// no stream adapter of its own.
	Resolver     adapter.StreamResolver
	History      *history.Service
	Scheduler    *scheduler.Scheduler
	Tracker      *advisor.Tracker
	Registry     *prometheus.Registry
	Stream       *websocket.Handler
	ProfileName  string
	ProfileNames []string
}

// Server handles HTTP requests for the search API.
type Server struct {
	echo      *echo.Echo
	logger    zerolog.Logger
	cfg       *config.Config
	version   string
	startedAt time.Time

	pipeline  *orchestrator.Pipeline
	workflow  *orchestrator.Orchestrator
	engine    *engine.Service
	resolver  adapter.StreamResolver
	history   *history.Service
	scheduler *scheduler.Scheduler
	tracker   *advisor.Tracker
	registry  *prometheus.Registry
	stream    *websocket.Handler

	profileName  string
	profileNames []string
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:         e,
		logger:       logger,
		cfg:          deps.Config,
		version:      deps.Version,
		startedAt:    time.Now(),
		pipeline:     deps.Pipeline,
		workflow:     deps.Workflow,
		engine:       deps.Engine,
		resolver:     deps.Resolver,
		history:      deps.History,
		scheduler:    deps.Scheduler,
		tracker:      deps.Tracker,
		registry:     deps.Registry,
		stream:       deps.Stream,
		profileName:  deps.ProfileName,
		profileNames: deps.ProfileNames,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Security headers
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit (2MB)
	s.echo.Use(middleware.BodyLimit("2M"))

	// CORS - public API, any origin may call it
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	// Gzip compression
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/", s.banner)
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/status", s.getStatus)
	s.echo.GET("/profiles", s.getProfiles)

	s.echo.POST("/search", s.search)
	// Legacy path kept for clients that still post there.
	s.echo.POST("/api/search", s.search)

	s.echo.POST("/search/smart", s.smartSearch)

	s.echo.POST("/resolve", s.resolve)

	if s.history != nil {
		historyHandlers := history.NewHandlers(s.history)
		historyHandlers.RegisterRoutes(s.echo.Group("/history"))
	}

	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	if s.stream != nil {
		s.echo.GET("/ws/search", s.stream.Search)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// searchReady reports whether searches can be served.
func (s *Server) searchReady() bool {
	return s.pipeline != nil && s.engine != nil && len(s.engine.Adapters()) > 0
}

// streamResolver prefers the active profile's stream adapter and
// falls back to the standalone resolver.
func (s *Server) streamResolver() adapter.StreamResolver {
	if s.engine != nil {
		if r, ok := s.engine.Resolver(); ok {
			return r
		}
	}
	return s.resolver
}

// --- Handler implementations ---

func (s *Server) banner(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":         "tonearm",
		"version":      s.version,
		"status":       "running",
		"search_ready": s.searchReady(),
	})
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      s.version,
		"search_ready": s.searchReady(),
	})
}

func (s *Server) search(c echo.Context) error {
	var req orchestrator.PipelineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if !s.searchReady() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "search service not initialized"})
	}

	resp, err := s.pipeline.Search(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.recordHistory(c.Request().Context(), resp)

	return c.JSON(http.StatusOK, resp)
}

type smartSearchRequest struct {
	Query        string `json:"query"`
	FormatFilter string `json:"format_filter,omitempty"`
	MinSeeders   int    `json:"min_seeders"`
	Strict       bool   `json:"strict"`
}

// smartSearch runs the guided workflow end to end with the default
// release selection, returning the full outcome.
func (s *Server) smartSearch(c echo.Context) error {
	var req smartSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if s.workflow == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "search service not initialized"})
	}

	outcome, err := s.workflow.Search(c.Request().Context(), orchestrator.Request{
		Query:        req.Query,
		FormatFilter: req.FormatFilter,
		MinSeeders:   req.MinSeeders,
		Strict:       req.Strict,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, outcome)
}

type resolveRequest struct {
	VideoID string `json:"video_id"`
}

type resolveResponse struct {
	VideoID   string `json:"video_id"`
	StreamURL string `json:"stream_url,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.VideoID == "" {
		return c.JSON(http.StatusBadRequest, resolveResponse{Error: "video_id is required"})
	}

	resolver := s.streamResolver()
	if resolver == nil {
		return c.JSON(http.StatusServiceUnavailable, resolveResponse{
			VideoID: req.VideoID,
			Error:   "no stream resolver configured",
		})
	}

	streamURL, err := resolver.ResolveStream(c.Request().Context(), req.VideoID)
	if err != nil {
		s.logger.Warn().Err(err).Str("videoId", req.VideoID).Msg("Stream resolution failed")
		return c.JSON(http.StatusOK, resolveResponse{VideoID: req.VideoID, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, resolveResponse{
		VideoID:   req.VideoID,
		StreamURL: streamURL,
		Success:   true,
	})
}

func (s *Server) getStatus(c echo.Context) error {
	status := map[string]interface{}{
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"profile":        s.profileName,
		"search_ready":   s.searchReady(),
	}

	if s.engine != nil {
		adapters := make([]adapter.Health, 0, len(s.engine.Adapters()))
		for _, a := range s.engine.Adapters() {
			adapters = append(adapters, s.engine.Health().Snapshot(a.Name()))
		}
		status["adapters"] = adapters
	}

	if s.tracker != nil {
		status["advisor"] = s.tracker.Snapshot()
	}

	if s.scheduler != nil {
		status["tasks"] = s.scheduler.ListTasks()
	}

	return c.JSON(http.StatusOK, status)
}

type adapterSummary struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (s *Server) getProfiles(c echo.Context) error {
	adapters := make([]adapterSummary, 0)
	if s.engine != nil {
		for _, a := range s.engine.Adapters() {
			adapters = append(adapters, adapterSummary{
				Name: a.Name(),
				Kind: string(a.Kind()),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"active":   s.profileName,
		"profiles": s.profileNames,
		"adapters": adapters,
	})
}

// recordHistory logs a served search. Best-effort: failures only warn.
func (s *Server) recordHistory(ctx context.Context, resp *orchestrator.Response) {
	if s.history == nil {
		return
	}
	topFormat := ""
	if len(resp.Results) > 0 {
		topFormat = resp.Results[0].Source.Format
	}
	err := s.history.Record(ctx, history.RecordInput{
		Query:      resp.Query,
		SQLQuery:   resp.SQLQuery,
		TotalFound: resp.TotalFound,
		DurationMS: resp.SearchTimeMS,
		TopFormat:  topFormat,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record search history")
	}
}
