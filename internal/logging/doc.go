// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Console output (stderr by default) and optional OpenTelemetry output
//   - Automatic context field injection (trace_id, batch.id, document.ref, request.id)
//   - Redaction of secrets and message content
//   - Sampling below error level
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithBatchID(ctx, batchID)
//	ctx = logging.WithDocumentRef(ctx, doc.Ref)
//	logger.Info(ctx, "document extracted", zap.Int("items", n))
//
// Output includes the correlation fields:
//
//	{"level":"info","ts":"2025-11-24T10:15:30Z","msg":"document extracted",
//	 "batch.id":"7f0c...","document.ref":"msg-42","items":2}
//
// # Redaction
//
// Field names such as api_key, token, body and prompt are replaced with a
// length marker at the encoder. Values matching bearer or api key patterns
// are replaced too. Document bodies should never be logged; log lengths and
// references instead.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
