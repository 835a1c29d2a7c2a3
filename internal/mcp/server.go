package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

// Extractor runs extraction batches. *extraction.Orchestrator implements it.
type Extractor interface {
	ExtractBatch(ctx context.Context, docs []extraction.SourceDocument, opts extraction.Options) ([]extraction.DocumentResult, error)
	Defaults() extraction.Options
}

// Server is the TaskHarvester MCP server.
type Server struct {
	mcp       *mcp.Server
	extractor Extractor
	metrics   *Metrics
	maxDocs   int
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "taskharvester")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging. MCP owns stdout, so it must not write there.
	Logger *zap.Logger

	// MaxDocuments caps the documents accepted in one tool call (default: 100).
	MaxDocuments int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "taskharvester",
		Version:      "dev",
		Logger:       zap.NewNop(),
		MaxDocuments: 100,
	}
}

// NewServer creates an MCP server backed by extractor.
func NewServer(cfg *Config, extractor Extractor) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	defaults := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = defaults.MaxDocuments
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		extractor: extractor,
		metrics:   NewMetrics(cfg.Logger),
		maxDocs:   cfg.MaxDocuments,
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
