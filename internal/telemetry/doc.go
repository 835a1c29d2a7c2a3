// Package telemetry wires OpenTelemetry tracing and metrics for TaskHarvester.
//
// Spans are exported over OTLP (gRPC or HTTP/protobuf) to a collector. The
// extraction orchestrator opens an extraction.batch span per batch and an
// extraction.document span per document; inference calls run inside the
// document span so backend latency is attributed to the right document.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	orch, err := extraction.NewOrchestrator(client,
//	    extraction.WithTracerProvider(tel.TracerProvider()))
//
// # Degraded Mode
//
// Exporter construction failures never stop the process. New logs the
// failure, marks the instance degraded and falls back to the global no-op
// providers. Health reports the state.
//
// # Testing
//
// NewTestTelemetry records spans in memory and collects metrics with a
// manual reader:
//
//	tt := telemetry.NewTestTelemetry()
//	// ... run code using tt.TracerProvider()
//	tt.AssertSpanExists(t, "extraction.document")
//	tt.AssertSpanAttribute(t, "extraction.document", "document.skipped", false)
package telemetry
