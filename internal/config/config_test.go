package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.9, cfg.Gate.AutoAcceptThreshold)
	assert.Equal(t, 0.7, cfg.Gate.ReviewThreshold)
	assert.Equal(t, 1, cfg.Extraction.Retry.MaxAttempts)
	assert.Equal(t, 2000, cfg.Extraction.MaxBodyChars)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"provider", func(c *Config) { c.Inference.Provider = "bard" }, "inference.provider"},
		{"model", func(c *Config) { c.Inference.Model = " " }, "inference.model"},
		{"timeout", func(c *Config) { c.Inference.Timeout = 0 }, "inference.timeout"},
		{"breaker", func(c *Config) { c.Inference.Breaker.MaxFailures = 0 }, "inference.breaker.max_failures"},
		{"concurrency", func(c *Config) { c.Extraction.Concurrency = 0 }, "extraction.concurrency"},
		{"scrub engine", func(c *Config) { c.Extraction.ScrubEngine = "trufflehog" }, "extraction.scrub_engine"},
		{"retry", func(c *Config) { c.Extraction.Retry.MaxAttempts = 0 }, "extraction.retry.max_attempts"},
		{"auto above one", func(c *Config) { c.Gate.AutoAcceptThreshold = 1.5 }, "gate.auto_accept_threshold"},
		{"review above auto", func(c *Config) { c.Gate.ReviewThreshold = 0.95 }, "gate.review_threshold"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis url", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis_url"},
		{"store driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"store dsn", func(c *Config) { c.Store.DSN = "" }, "store.dsn"},
		{"subject prefix", func(c *Config) { c.Events.Enabled = true; c.Events.SubjectPrefix = "a.>" }, "events.subject_prefix"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.http_port"},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }, "telemetry.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_Validate_DisabledSectionsSkipped(t *testing.T) {
	cfg := Default()
	cfg.Store.Enabled = false
	cfg.Store.Driver = ""
	cfg.Cache.Enabled = false
	cfg.Cache.Backend = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Inference.Model = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference.model")
	assert.Contains(t, err.Error(), "server.http_port")
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	out, err := json.Marshal(struct{ DSN Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"DSN":"[REDACTED]"}`, string(out))

	assert.Empty(t, Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, "1m30s", d.Duration().String())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
