// Package config provides configuration loading for TaskHarvester.
//
// Configuration comes from a YAML file, a .env file and environment
// variables, in increasing order of precedence, on top of the defaults
// returned by Default.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Config holds the complete TaskHarvester configuration.
type Config struct {
	Inference  InferenceConfig  `koanf:"inference" json:"inference"`
	Extraction ExtractionConfig `koanf:"extraction" json:"extraction"`
	Gate       GateConfig       `koanf:"gate" json:"gate"`
	Cache      CacheConfig      `koanf:"cache" json:"cache"`
	Store      StoreConfig      `koanf:"store" json:"store"`
	Events     EventsConfig     `koanf:"events" json:"events"`
	Server     ServerConfig     `koanf:"server" json:"server"`
	Ingest     IngestConfig     `koanf:"ingest" json:"ingest"`
	Logging    LoggingConfig    `koanf:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry" json:"telemetry"`
}

// InferenceConfig selects the model endpoint.
type InferenceConfig struct {
	Provider    string        `koanf:"provider" json:"provider"`
	BaseURL     string        `koanf:"base_url" json:"base_url"`
	Model       string        `koanf:"model" json:"model"`
	APIKey      Secret        `koanf:"api_key" json:"api_key"`
	Timeout     time.Duration `koanf:"timeout" json:"timeout"`
	Temperature float64       `koanf:"temperature" json:"temperature"`
	TopP        float64       `koanf:"top_p" json:"top_p"`
	MaxTokens   int           `koanf:"max_tokens" json:"max_tokens"`
	RateLimit   float64       `koanf:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int           `koanf:"burst" json:"burst"`
	Breaker     BreakerConfig `koanf:"breaker" json:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the inference endpoint.
type BreakerConfig struct {
	Enabled     bool          `koanf:"enabled" json:"enabled"`
	MaxFailures uint32        `koanf:"max_failures" json:"max_failures"`
	OpenTimeout time.Duration `koanf:"open_timeout" json:"open_timeout"`
}

// ExtractionConfig tunes the extraction pipeline.
type ExtractionConfig struct {
	MaxBodyChars      int         `koanf:"max_body_chars" json:"max_body_chars"`
	MaxItems          int         `koanf:"max_items" json:"max_items"`
	Concurrency       int         `koanf:"concurrency" json:"concurrency"`
	RelevanceFilter   bool        `koanf:"relevance_filter" json:"relevance_filter"`
	RelevanceMinWords int         `koanf:"relevance_min_words" json:"relevance_min_words"`
	ScrubSecrets      bool        `koanf:"scrub_secrets" json:"scrub_secrets"`
	Retry             RetryConfig `koanf:"retry" json:"retry"`

	// ScrubEngine is "patterns" (built-in regexes) or "gitleaks" (the Gitleaks
	// rule set followed by the built-in regexes).
	ScrubEngine string `koanf:"scrub_engine" json:"scrub_engine"`
	// AllowlistPath names a Gitleaks style TOML allowlist for the gitleaks engine.
	AllowlistPath string `koanf:"allowlist_path" json:"allowlist_path"`
}

// RetryConfig controls per-document inference retries.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts" json:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval" json:"max_interval"`
}

// GateConfig holds the confidence thresholds.
type GateConfig struct {
	AutoAcceptThreshold float64 `koanf:"auto_accept_threshold" json:"auto_accept_threshold"`
	ReviewThreshold     float64 `koanf:"review_threshold" json:"review_threshold"`
}

// CacheConfig holds inference response cache settings.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled" json:"enabled"`
	Backend    string        `koanf:"backend" json:"backend"`
	TTL        time.Duration `koanf:"ttl" json:"ttl"`
	MaxEntries int           `koanf:"max_entries" json:"max_entries"`
	RedisURL   Secret        `koanf:"redis_url" json:"redis_url"`
}

// StoreConfig holds action item persistence settings.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Driver  string `koanf:"driver" json:"driver"`
	DSN     Secret `koanf:"dsn" json:"dsn"`
}

// EventsConfig holds NATS publishing settings.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled" json:"enabled"`
	NATSURL       string `koanf:"nats_url" json:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix" json:"subject_prefix"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"http_port" json:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// IngestConfig controls where documents come from.
type IngestConfig struct {
	WatchDir          string `koanf:"watch_dir" json:"watch_dir"`
	DefaultSourceType string `koanf:"default_source_type" json:"default_source_type"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
	Stream string `koanf:"stream" json:"stream"`
}

// TelemetryConfig holds the user-facing OpenTelemetry knobs.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled" json:"enabled"`
	Endpoint     string  `koanf:"endpoint" json:"endpoint"`
	Protocol     string  `koanf:"protocol" json:"protocol"`
	Insecure     bool    `koanf:"insecure" json:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate" json:"sampling_rate"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Inference: InferenceConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.1:8b",
			Timeout:     120 * time.Second,
			Temperature: 0.1,
			TopP:        0.9,
			MaxTokens:   1000,
			Burst:       1,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Extraction: ExtractionConfig{
			MaxBodyChars:      2000,
			MaxItems:          20,
			Concurrency:       2,
			RelevanceFilter:   true,
			RelevanceMinWords: 50,
			ScrubSecrets:      true,
			ScrubEngine:       "patterns",
			Retry: RetryConfig{
				MaxAttempts:     1,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
		},
		Gate: GateConfig{
			AutoAcceptThreshold: 0.9,
			ReviewThreshold:     0.7,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 1000,
		},
		Store: StoreConfig{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "taskharvester.db",
		},
		Events: EventsConfig{
			NATSURL:       "nats://localhost:4222",
			SubjectPrefix: "taskharvester",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			DefaultSourceType: "email",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Stream: "stderr",
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}

// ValidationError is returned by Validate. Field names use the YAML keys.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Inference.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, invalid("inference.provider", "must be ollama or openai, got %q", c.Inference.Provider))
	}
	if strings.TrimSpace(c.Inference.BaseURL) == "" {
		errs = append(errs, invalid("inference.base_url", "is required"))
	}
	if strings.TrimSpace(c.Inference.Model) == "" {
		errs = append(errs, invalid("inference.model", "is required"))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, invalid("inference.timeout", "must be positive"))
	}
	if c.Inference.RateLimit < 0 {
		errs = append(errs, invalid("inference.rate_limit", "must be >= 0"))
	}
	if c.Inference.Breaker.Enabled && c.Inference.Breaker.MaxFailures == 0 {
		errs = append(errs, invalid("inference.breaker.max_failures", "must be > 0"))
	}

	if c.Extraction.Concurrency < 1 {
		errs = append(errs, invalid("extraction.concurrency", "must be >= 1"))
	}
	if c.Extraction.MaxBodyChars < 0 {
		errs = append(errs, invalid("extraction.max_body_chars", "must be >= 0"))
	}
	if c.Extraction.MaxItems < 0 {
		errs = append(errs, invalid("extraction.max_items", "must be >= 0"))
	}
	if c.Extraction.ScrubSecrets {
		switch c.Extraction.ScrubEngine {
		case "patterns", "gitleaks":
		default:
			errs = append(errs, invalid("extraction.scrub_engine", "must be patterns or gitleaks, got %q", c.Extraction.ScrubEngine))
		}
	}
	if c.Extraction.Retry.MaxAttempts < 1 {
		errs = append(errs, invalid("extraction.retry.max_attempts", "must be >= 1"))
	}

	auto, review := c.Gate.AutoAcceptThreshold, c.Gate.ReviewThreshold
	switch {
	case math.IsNaN(auto) || auto < 0 || auto > 1:
		errs = append(errs, invalid("gate.auto_accept_threshold", "must be within [0, 1]"))
	case math.IsNaN(review) || review < 0 || review > 1:
		errs = append(errs, invalid("gate.review_threshold", "must be within [0, 1]"))
	case review > auto:
		errs = append(errs, invalid("gate.review_threshold", "must not exceed auto_accept_threshold"))
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
		case "redis":
			if !c.Cache.RedisURL.IsSet() {
				errs = append(errs, invalid("cache.redis_url", "is required for the redis backend"))
			}
		default:
			errs = append(errs, invalid("cache.backend", "must be memory or redis, got %q", c.Cache.Backend))
		}
	}

	if c.Store.Enabled {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, invalid("store.driver", "must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if !c.Store.DSN.IsSet() {
			errs = append(errs, invalid("store.dsn", "is required"))
		}
	}

	if c.Events.Enabled {
		if c.Events.NATSURL == "" {
			errs = append(errs, invalid("events.nats_url", "is required when events are enabled"))
		}
		if c.Events.SubjectPrefix == "" || strings.ContainsAny(c.Events.SubjectPrefix, " *>") {
			errs = append(errs, invalid("events.subject_prefix", "must be a plain subject token"))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, invalid("server.http_port", "must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, invalid("server.shutdown_timeout", "must be positive"))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, invalid("telemetry.endpoint", "is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}
