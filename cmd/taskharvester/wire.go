package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/config"
	"github.com/jking323/TaskHarvester/internal/events"
	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/logging"
	"github.com/jking323/TaskHarvester/internal/secrets"
	"github.com/jking323/TaskHarvester/internal/store"
	"github.com/jking323/TaskHarvester/internal/telemetry"
)

// app holds the components a command runs against.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	telemetry    *telemetry.Telemetry
	inference    *inference.Stack
	orchestrator *extraction.Orchestrator
	store        *store.Store
	nc           *nats.Conn
	publisher    *events.Publisher
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}
	return config.LoadWithFile(configPath)
}

func loggingConfig(cfg *config.Config, levelOverride string) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()

	level := cfg.Logging.Level
	if levelOverride != "" {
		level = levelOverride
	}
	lvl, err := logging.LevelFromString(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	lc.Level = lvl

	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	if cfg.Logging.Stream != "" {
		lc.Output.Stream = cfg.Logging.Stream
	}
	lc.Output.OTEL = cfg.Telemetry.Enabled
	lc.Fields["version"] = version
	return lc, nil
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Sampling.Rate = cfg.Telemetry.SamplingRate
	tc.ServiceVersion = version
	return tc
}

func inferenceConfig(cfg *config.Config) inference.Config {
	in := cfg.Inference
	return inference.Config{
		Provider:    in.Provider,
		BaseURL:     in.BaseURL,
		Model:       in.Model,
		APIKey:      in.APIKey.Value(),
		Timeout:     in.Timeout,
		Temperature: in.Temperature,
		TopP:        in.TopP,
		MaxTokens:   in.MaxTokens,
		RateLimit:   in.RateLimit,
		Burst:       in.Burst,
		Breaker: inference.BreakerConfig{
			Enabled:     in.Breaker.Enabled,
			MaxFailures: in.Breaker.MaxFailures,
			OpenTimeout: in.Breaker.OpenTimeout,
		},
		Cache: inference.CacheConfig{
			Enabled:    cfg.Cache.Enabled,
			Backend:    cfg.Cache.Backend,
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
			RedisURL:   cfg.Cache.RedisURL.Value(),
		},
	}
}

func extractionDefaults(cfg *config.Config) extraction.Options {
	return extraction.Options{
		Model:               cfg.Inference.Model,
		AutoAcceptThreshold: cfg.Gate.AutoAcceptThreshold,
		ReviewThreshold:     cfg.Gate.ReviewThreshold,
		MaxItems:            cfg.Extraction.MaxItems,
		MaxBodyChars:        cfg.Extraction.MaxBodyChars,
	}
}

// newScrubber builds the prompt scrubber for the configured engine.
func newScrubber(cfg *config.Config) (extraction.Scrubber, error) {
	patterns := extraction.NewPatternScrubber()
	if cfg.Extraction.ScrubEngine != "gitleaks" {
		return patterns, nil
	}
	allowlist, err := secrets.LoadAllowlist(cfg.Extraction.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}
	detector, err := secrets.NewDetector(allowlist)
	if err != nil {
		return nil, err
	}
	return secrets.NewScrubber(detector, patterns), nil
}

// orchestratorOptions maps the extraction section onto orchestrator options.
// Sinks, logger and tracing are added by newApp.
func orchestratorOptions(cfg *config.Config) ([]extraction.Option, error) {
	ex := cfg.Extraction
	opts := []extraction.Option{
		extraction.WithThresholds(cfg.Gate.AutoAcceptThreshold, cfg.Gate.ReviewThreshold),
		extraction.WithDefaults(extractionDefaults(cfg)),
		extraction.WithConcurrency(ex.Concurrency),
		extraction.WithRetryPolicy(extraction.RetryPolicy{
			MaxAttempts:     ex.Retry.MaxAttempts,
			InitialInterval: ex.Retry.InitialInterval,
			MaxInterval:     ex.Retry.MaxInterval,
		}),
	}
	if ex.RelevanceFilter {
		opts = append(opts, extraction.WithRelevanceFilter(extraction.NewRelevanceFilter(ex.RelevanceMinWords)))
	}
	if ex.ScrubSecrets {
		scrubber, err := newScrubber(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, extraction.WithScrubber(scrubber))
	}
	return opts, nil
}

// newApp builds the logger, telemetry, inference stack, sinks and the
// orchestrator. On error everything already opened is closed again.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	lc, err := loggingConfig(cfg, logLevel)
	if err != nil {
		return nil, err
	}
	// The OTEL bridge needs the telemetry providers, which need a logger.
	bootstrap := *lc
	bootstrap.Output.OTEL = false
	a.logger, err = logging.NewLogger(&bootstrap, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a.telemetry, err = telemetry.New(ctx, telemetryConfig(cfg), a.logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if lc.Output.OTEL {
		a.logger, err = logging.NewLogger(lc, a.telemetry.LoggerProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	zl := a.logger.Underlying()

	a.inference, err = inference.New(ctx, inferenceConfig(cfg), zl.Named("inference"))
	if err != nil {
		return nil, err
	}

	var sinks extraction.MultiSink
	if cfg.Store.Enabled {
		a.store, err = store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN.Value()})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.store)
	}
	if cfg.Events.Enabled {
		a.nc, err = events.Connect(cfg.Events.NATSURL, zl.Named("events"))
		if err != nil {
			return nil, err
		}
		a.publisher = events.NewPublisher(a.nc, cfg.Events.SubjectPrefix, zl.Named("events"))
		sinks = append(sinks, a.publisher)
	}

	opts, err := orchestratorOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		extraction.WithLogger(a.logger.Named("extraction")),
		extraction.WithMetrics(extraction.NewMetrics()),
		extraction.WithTracerProvider(a.telemetry.TracerProvider()),
	)
	if len(sinks) > 0 {
		opts = append(opts, extraction.WithSink(sinks))
	}
	a.orchestrator, err = extraction.NewOrchestrator(a.inference.Client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	a.logger.Debug(ctx, "application wired",
		zap.String("provider", cfg.Inference.Provider),
		zap.String("model", cfg.Inference.Model),
		zap.Bool("store", a.store != nil),
		zap.Bool("events", a.publisher != nil),
	)
	return a, nil
}

// Close flushes pending events and releases everything newApp opened.
func (a *app) Close(ctx context.Context) {
	warn := func(msg string, err error) {
		if err != nil && a.logger != nil {
			a.logger.Warn(ctx, msg, zap.Error(err))
		}
	}
	if a.publisher != nil {
		warn("failed to flush events", a.publisher.Flush(ctx))
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if a.store != nil {
		warn("failed to close store", a.store.Close())
	}
	if a.inference != nil {
		warn("failed to close inference client", a.inference.Close())
	}
	if a.telemetry != nil {
		warn("failed to shut down telemetry", a.telemetry.Shutdown(ctx))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
