package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", appDirName)
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
inference:
  model: mistral:7b
  timeout: 45s
  breaker:
    max_failures: 3
extraction:
  concurrency: 4
  retry:
    max_attempts: 2
gate:
  auto_accept_threshold: 0.85
  review_threshold: 0.6
store:
  driver: postgres
  dsn: postgres://user:pw@localhost/tasks?sslmode=disable
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mistral:7b", cfg.Inference.Model)
	assert.Equal(t, 45*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, uint32(3), cfg.Inference.Breaker.MaxFailures)
	assert.True(t, cfg.Inference.Breaker.Enabled, "unset fields keep defaults")
	assert.Equal(t, 4, cfg.Extraction.Concurrency)
	assert.Equal(t, 2, cfg.Extraction.Retry.MaxAttempts)
	assert.Equal(t, 0.85, cfg.Gate.AutoAcceptThreshold)
	assert.Equal(t, 0.6, cfg.Gate.ReviewThreshold)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://user:pw@localhost/tasks?sslmode=disable", cfg.Store.DSN.Value())
	assert.Equal(t, "http://localhost:11434", cfg.Inference.BaseURL)
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "inference:\n  model: from-file\n", 0600)

	t.Setenv("INFERENCE_MODEL", "from-env")
	t.Setenv("INFERENCE_BREAKER_OPEN_TIMEOUT", "1m")
	t.Setenv("EXTRACTION_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("GATE_REVIEW_THRESHOLD", "0.5")
	t.Setenv("SERVER_HTTP_PORT", "9001")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Inference.Model)
	assert.Equal(t, time.Minute, cfg.Inference.Breaker.OpenTimeout)
	assert.Equal(t, 3, cfg.Extraction.Retry.MaxAttempts)
	assert.Equal(t, 0.5, cfg.Gate.ReviewThreshold)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadWithFile_InvalidThresholds(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "gate:\n  auto_accept_threshold: 0.6\n  review_threshold: 0.8\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate.review_threshold")
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "inference:\n  model: x\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_TooLarge(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "# "+strings.Repeat("x", maxConfigFileSize)+"\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadWithFile_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("/tmp/../var/taskharvester-elsewhere.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_ExplicitMissingFile(t *testing.T) {
	dir := setupTestHome(t)

	_, err := LoadWithFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("INFERENCE_MODEL=dotenv-model\nSTORE_DRIVER=postgres\n"), 0600))

	t.Setenv("STORE_DRIVER", "sqlite")
	// Registers cleanup so the variable set by LoadDotEnv does not leak.
	t.Setenv("INFERENCE_MODEL", "")
	require.NoError(t, os.Unsetenv("INFERENCE_MODEL"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "dotenv-model", os.Getenv("INFERENCE_MODEL"))
	assert.Equal(t, "sqlite", os.Getenv("STORE_DRIVER"), "existing variables win")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"INFERENCE_BASE_URL":             "inference.base_url",
		"INFERENCE_BREAKER_MAX_FAILURES": "inference.breaker.max_failures",
		"EXTRACTION_RETRY_MAX_ATTEMPTS":  "extraction.retry.max_attempts",
		"EXTRACTION_MAX_ITEMS":           "extraction.max_items",
		"SERVER_HTTP_PORT":               "server.http_port",
		"PATH":                           "",
		"HOME":                           "",
		"GOPATH_EXTRA":                   "",
		"STORE_":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", appDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
