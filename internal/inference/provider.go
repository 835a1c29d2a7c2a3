package inference

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Stack is a configured client plus the resources it owns.
type Stack struct {
	Client  Client
	Breaker *BreakerClient
	Cache   *CachingClient

	closers []io.Closer
}

// Close releases resources such as the redis connection.
func (s *Stack) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewBackend creates the bare backend client for cfg.Provider.
func NewBackend(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllamaClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", cfg.Provider)
	}
}

// New builds the full client stack from cfg. From the outside in:
// response cache, rate limiter, circuit breaker, backend. Cache hits never
// wait on the limiter or count against the breaker.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inference config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	stack := &Stack{}
	var client Client = backend

	if cfg.Breaker.Enabled {
		stack.Breaker = NewBreakerClient(client, cfg.Breaker, logger)
		client = stack.Breaker
	}
	if cfg.RateLimit > 0 {
		client = NewLimitedClient(client, cfg.RateLimit, cfg.Burst)
	}
	if cfg.Cache.Enabled {
		store, err := OpenResponseStore(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
		if c, ok := store.(io.Closer); ok {
			stack.closers = append(stack.closers, c)
		}
		stack.Cache = NewCachingClient(client, store, cfg.Cache.TTL, logger)
		client = stack.Cache
	}

	stack.Client = client
	logger.Info("inference client configured",
		zap.String("provider", cfg.Provider),
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
		zap.Bool("breaker", cfg.Breaker.Enabled),
		zap.Float64("rate_limit", cfg.RateLimit),
		zap.Bool("cache", cfg.Cache.Enabled))
	return stack, nil
}
