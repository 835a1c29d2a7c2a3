package inference

import (
	"fmt"
	"time"
)

// Backend providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Default configuration values.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama3.1:8b"
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.1
	DefaultTopP        = 0.9
	DefaultMaxTokens   = 1000
	DefaultCacheTTL    = time.Hour
	DefaultCacheSize   = 1000
)

// Config selects and tunes the inference backend.
type Config struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string `json:"-"`
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	Breaker BreakerConfig
	Cache   CacheConfig
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	TTL        time.Duration
	MaxEntries int
	RedisURL   string `json:"-"`
}

// DefaultConfig returns a config for a local Ollama install.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOllama,
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Timeout:     DefaultTimeout,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
		Burst:       1,
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "memory",
			TTL:        DefaultCacheTTL,
			MaxEntries: DefaultCacheSize,
		},
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown inference provider %q", c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("inference base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("inference model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("inference rate_limit must be >= 0")
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
		}
		if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
			return fmt.Errorf("cache redis_url is required for the redis backend")
		}
	}
	return nil
}
