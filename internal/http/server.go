// Package http provides the HTTP API for TaskHarvester.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/store"
)

// List paging bounds for GET /api/v1/action-items.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Extractor runs extraction batches. *extraction.Orchestrator implements it.
type Extractor interface {
	ExtractBatch(ctx context.Context, docs []extraction.SourceDocument, opts extraction.Options) ([]extraction.DocumentResult, error)
	Defaults() extraction.Options
}

// StatusChecker reports inference endpoint status. inference.Client implements it.
type StatusChecker interface {
	Status(ctx context.Context) (inference.Status, error)
}

// ItemStore is the subset of *store.Store the API serves.
type ItemStore interface {
	List(ctx context.Context, f store.Filter) ([]store.Item, error)
	Get(ctx context.Context, id string) (store.Item, error)
	UpdateStatus(ctx context.Context, id string, status store.Status) (store.Item, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (store.Stats, error)
}

// HealthCheck reports a component problem as an error.
type HealthCheck func(ctx context.Context) error

// Server provides HTTP endpoints for TaskHarvester.
type Server struct {
	echo      *echo.Echo
	extractor Extractor
	inference StatusChecker
	items     ItemStore
	checks    map[string]HealthCheck
	metrics   *HTTPMetrics
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, in echo's size notation ("10M").
	BodyLimit string
	// MaxDocuments caps the documents accepted in one extract request.
	MaxDocuments int
}

// Option configures a Server.
type Option func(*Server)

// WithInference enables GET /api/v1/inference/status.
func WithInference(sc StatusChecker) Option {
	return func(s *Server) { s.inference = sc }
}

// WithItemStore enables the /api/v1/action-items routes.
func WithItemStore(items ItemStore) Option {
	return func(s *Server) { s.items = items }
}

// WithHealthCheck adds a named check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithHTTPMetrics records OpenTelemetry request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(extractor Extractor, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 100
	}

	s := &Server{
		extractor: extractor,
		checks:    make(map[string]HealthCheck),
		logger:    logger,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
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

	s.echo = e
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
	v1.GET("/inference/status", s.handleInferenceStatus)

	if s.items != nil {
		items := v1.Group("/action-items")
		items.GET("", s.handleListItems)
		items.GET("/stats", s.handleItemStats)
		items.GET("/:id", s.handleGetItem)
		items.PATCH("/:id", s.handleUpdateItem)
		items.DELETE("/:id", s.handleDeleteItem)
	}
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleHealth runs the registered checks. A failing check reports
// "degraded" with a 200.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check(c.Request().Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extract request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}
	if len(req.Documents) > s.config.MaxDocuments {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("too many documents: %d (max %d)", len(req.Documents), s.config.MaxDocuments))
	}

	docs := make([]extraction.SourceDocument, 0, len(req.Documents))
	for i, in := range req.Documents {
		doc, err := toSourceDocument(in)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("documents[%d]: %v", i, err))
		}
		docs = append(docs, doc)
	}

	opts := applyOptions(s.extractor.Defaults(), req.Options)
	if err := opts.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := s.extractor.ExtractBatch(c.Request().Context(), docs, opts)
	if err != nil {
		var cfgErr *extraction.ConfigError
		if errors.As(err, &cfgErr) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("extract batch failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "extraction failed")
	}
	if results == nil {
		results = []extraction.DocumentResult{}
	}

	summary := extraction.Summarize(results)
	s.metrics.RecordExtract(c.Request().Context(), summary)
	s.logger.Debug("extract batch served",
		zap.Int("documents", summary.Documents),
		zap.Int("failed", summary.Failed),
		zap.Int("items", summary.Items),
	)
	return c.JSON(http.StatusOK, ExtractResponse{Results: results, Summary: summary})
}

func toSourceDocument(in DocumentInput) (extraction.SourceDocument, error) {
	doc := extraction.SourceDocument{
		Ref:        strings.TrimSpace(in.Ref),
		SourceType: extraction.SourceEmail,
		Sender:     in.Sender,
		Subject:    in.Subject,
		Body:       in.Body,
	}
	if doc.Ref == "" {
		doc.Ref = uuid.NewString()
	}
	if in.SourceType != "" {
		st, err := extraction.ParseSourceType(in.SourceType)
		if err != nil {
			return doc, err
		}
		doc.SourceType = st
	}
	if in.ReceivedAt != nil {
		doc.ReceivedAt = *in.ReceivedAt
	}
	return doc, nil
}

func applyOptions(opts extraction.Options, in *OptionsInput) extraction.Options {
	if in == nil {
		return opts
	}
	if in.Model != nil {
		opts.Model = *in.Model
	}
	if in.AutoAcceptThreshold != nil {
		opts.AutoAcceptThreshold = *in.AutoAcceptThreshold
	}
	if in.ReviewThreshold != nil {
		opts.ReviewThreshold = *in.ReviewThreshold
	}
	if in.MaxItems != nil {
		opts.MaxItems = *in.MaxItems
	}
	if in.MaxBodyChars != nil {
		opts.MaxBodyChars = *in.MaxBodyChars
	}
	return opts
}

// handleInferenceStatus answers 503 when the endpoint cannot be reached.
// A reachable endpoint without the model is still a 200 with
// model_available false.
func (s *Server) handleInferenceStatus(c echo.Context) error {
	if s.inference == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "inference client not configured")
	}
	st, err := s.inference.Status(c.Request().Context())
	resp := InferenceStatusResponse{Status: st}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("inference status check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	if !st.Reachable {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListItems(c echo.Context) error {
	var f store.Filter

	if v := c.QueryParam("tier"); v != "" {
		tier, err := parseTier(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Tier = tier
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := store.ParseStatus(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = st
	}
	f.SourceRef = c.QueryParam("source_ref")

	limit, err := intParam(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	f.Limit = limit
	if f.Offset, err = intParam(c, "offset", 0); err != nil {
		return err
	}

	items, err := s.items.List(c.Request().Context(), f)
	if err != nil {
		s.logger.Error("list action items failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list action items")
	}
	if items == nil {
		items = []store.Item{}
	}
	return c.JSON(http.StatusOK, ListItemsResponse{Items: items, Count: len(items)})
}

func (s *Server) handleItemStats(c echo.Context) error {
	stats, err := s.items.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("action item stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count action items")
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetItem(c echo.Context) error {
	item, err := s.items.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.itemError(err, "get")
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleUpdateItem(c echo.Context) error {
	var req UpdateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	status, err := store.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	item, err := s.items.UpdateStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return s.itemError(err, "update")
	}
	s.metrics.RecordReview(c.Request().Context(), item.Status)
	s.logger.Info("action item status changed",
		zap.String("id", item.ID),
		zap.String("status", string(item.Status)),
	)
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleDeleteItem(c echo.Context) error {
	if err := s.items.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.itemError(err, "delete")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) itemError(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "action item not found")
	}
	s.logger.Error("action item "+op+" failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to "+op+" action item")
}

func parseTier(s string) (extraction.ReviewTier, error) {
	switch t := extraction.ReviewTier(strings.ToLower(strings.TrimSpace(s))); t {
	case extraction.TierAutoAccept, extraction.TierNeedsReview, extraction.TierRejected:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
