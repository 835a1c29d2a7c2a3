package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/jking323/TaskHarvester/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestRedactor(t *testing.T, cfg RedactionConfig) *RedactingEncoder {
	t.Helper()
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), cfg)
	require.NoError(t, err)
	return enc
}

func encode(t *testing.T, enc zapcore.Encoder, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m", Time: time.Unix(0, 0)}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestSecret(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-123456"))
	assert.Equal(t, "[REDACTED:9]", f.String)
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	enc := newTestRedactor(t, NewDefaultConfig().Redaction)

	out := encode(t, enc,
		zap.String("API_KEY", "value"),
		zap.String("prompt", "Extract action items"),
		zap.ByteString("token", []byte("abc")),
		zap.Any("body", map[string]string{"text": "hello"}),
		zap.String("model", "llama3.1:8b"),
	)

	assert.Contains(t, out, `"API_KEY":"[REDACTED:5]"`)
	assert.Contains(t, out, `"prompt":"[REDACTED:20]"`)
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.Contains(t, out, `"body":"[REDACTED]"`)
	assert.Contains(t, out, `"model":"llama3.1:8b"`)
	assert.NotContains(t, out, "hello")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	enc := newTestRedactor(t, NewDefaultConfig().Redaction)

	out := encode(t, enc, zap.String("header", "Bearer eyJhbGciOi"))
	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.NotContains(t, out, "eyJhbGciOi")
}

func TestRedactingEncoder_WithFieldsRedacted(t *testing.T) {
	enc := newTestRedactor(t, NewDefaultConfig().Redaction)

	clone := enc.Clone()
	clone.AddString("password", "hunter2")

	out := encode(t, clone)
	assert.Contains(t, out, `"password":"[REDACTED:7]"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc := newTestRedactor(t, RedactionConfig{Enabled: false})

	out := encode(t, enc, zap.String("password", "hunter2"))
	assert.Contains(t, out, "hunter2")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	_, err := NewRedactingEncoder(base, RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)

	_, err = NewRedactingEncoder(base, RedactionConfig{Enabled: true, Patterns: []string{strings.Repeat("a", maxPatternLen+1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")
}
