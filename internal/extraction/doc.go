// Package extraction turns raw communication text into validated,
// confidence-scored action items using a local language model.
//
// # Pipeline
//
// Each source document runs through the same stages:
//
//	BuildPrompt -> inference.Client.Generate -> ParseResponse -> NormalizeItem -> Gate.Classify
//
// The Orchestrator composes the stages for a batch of documents, running
// documents concurrently up to a configured bound. A failing document never
// aborts the batch: every finished document yields exactly one DocumentResult,
// carrying either its items or a typed Failure.
//
// # Usage
//
//	orch, err := extraction.NewOrchestrator(client,
//	    extraction.WithConcurrency(2),
//	    extraction.WithSink(store),
//	)
//	if err != nil {
//	    return err
//	}
//	results, err := orch.ExtractBatch(ctx, docs, orch.Defaults())
//	retry := extraction.Failed(results)
//
// # Failures
//
// Document level failures (FailureInferenceTimeout, FailureInferenceUnavailable,
// FailureInferenceError, FailureParse) are reported in DocumentResult.Failure.
// Item level normalization failures are dropped and counted in
// DocumentResult.Dropped. Invalid thresholds or concurrency are rejected with
// a *ConfigError before any document is processed.
package extraction
