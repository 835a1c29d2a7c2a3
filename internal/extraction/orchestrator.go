package extraction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/logging"
)

// DefaultConcurrency is the number of documents processed at once. Local
// model servers serialize generation, so a small bound keeps queues short.
const DefaultConcurrency = 2

const tracerName = "github.com/jking323/TaskHarvester/internal/extraction"

// Orchestrator runs the extraction pipeline over batches of documents.
// It holds no per-batch state and is safe for concurrent use.
type Orchestrator struct {
	client      inference.Client
	defaults    Options
	concurrency int
	retry       RetryPolicy
	relevance   *RelevanceFilter
	scrubber    Scrubber
	sink        Sink
	logger      *logging.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithGate sets the default thresholds from a gate.
func WithGate(g Gate) Option {
	return func(o *Orchestrator) error {
		o.defaults.AutoAcceptThreshold, o.defaults.ReviewThreshold = g.Thresholds()
		return nil
	}
}

// WithThresholds sets the default thresholds. Invalid values fail construction.
func WithThresholds(autoAccept, review float64) Option {
	return func(o *Orchestrator) error {
		g, err := NewGate(autoAccept, review)
		if err != nil {
			return err
		}
		return WithGate(g)(o)
	}
}

// WithDefaults replaces the options returned by Defaults.
func WithDefaults(opts Options) Option {
	return func(o *Orchestrator) error {
		o.defaults = opts
		return nil
	}
}

// WithConcurrency bounds the number of documents processed at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return &ConfigError{Field: "concurrency", Reason: "must be >= 1"}
		}
		o.concurrency = n
		return nil
	}
}

// WithRetryPolicy sets the per-document retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.retry = p
		return nil
	}
}

// WithRelevanceFilter skips irrelevant documents before inference. nil disables it.
func WithRelevanceFilter(f *RelevanceFilter) Option {
	return func(o *Orchestrator) error {
		o.relevance = f
		return nil
	}
}

// WithScrubber redacts document text before it is placed in the prompt.
func WithScrubber(s Scrubber) Option {
	return func(o *Orchestrator) error {
		o.scrubber = s
		return nil
	}
}

// WithSink delivers every completed document to s.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) error {
		o.sink = s
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// WithClock overrides the time source. Used for durations and for resolving
// relative due dates on documents without a received time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) error {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
		return nil
	}
}

// NewOrchestrator creates an orchestrator. Invalid configuration returns a
// *ConfigError before any document is processed.
func NewOrchestrator(client inference.Client, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Reason: "must not be nil"}
	}
	o := &Orchestrator{
		client:      client,
		defaults:    DefaultOptions(),
		concurrency: DefaultConcurrency,
		retry:       NoRetry(),
		logger:      logging.NewNop(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := o.defaults.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Defaults returns the options used when a caller supplies none.
func (o *Orchestrator) Defaults() Options {
	return o.defaults
}

// ExtractBatch processes docs and returns one result per finished document,
// in input order. Per-document failures are carried in the results; the
// error is non-nil only for invalid options.
//
// When ctx is cancelled, documents that have not finished are omitted and
// no new documents are started.
func (o *Orchestrator) ExtractBatch(ctx context.Context, docs []SourceDocument, opts Options) ([]DocumentResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	gate, _ := NewGate(opts.AutoAcceptThreshold, opts.ReviewThreshold)

	batchID := uuid.NewString()
	ctx = logging.WithBatchID(ctx, batchID)
	ctx, span := o.tracer.Start(ctx, "extraction.batch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.documents", len(docs)),
		attribute.String("inference.model", opts.Model),
	))
	defer span.End()

	start := o.now()
	o.logger.Info(ctx, "batch started",
		zap.Int("documents", len(docs)),
		zap.String("model", opts.Model),
		zap.Int("concurrency", o.concurrency),
	)

	results := make([]DocumentResult, len(docs))
	finished := make([]bool, len(docs))
	sem := semaphore.NewWeighted(int64(o.concurrency))
	var wg sync.WaitGroup

	for i, doc := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			// Each goroutine owns index i.
			results[i], finished[i] = o.run(ctx, doc, opts, gate)
		}()
	}
	wg.Wait()

	out := make([]DocumentResult, 0, len(docs))
	for i, ok := range finished {
		if ok {
			out = append(out, results[i])
		}
	}

	summary := Summarize(out)
	span.SetAttributes(
		attribute.Int("batch.succeeded", summary.Succeeded),
		attribute.Int("batch.failed", summary.Failed),
		attribute.Int("batch.skipped", summary.Skipped),
		attribute.Int("batch.items", summary.Items),
	)
	fields := []zap.Field{
		zap.Int("documents", len(docs)),
		zap.Int("completed", len(out)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("items", summary.Items),
		zap.Int("dropped", summary.Dropped),
		zap.Duration("duration", o.now().Sub(start)),
	}
	if ctx.Err() != nil && len(out) < len(docs) {
		o.logger.Warn(ctx, "batch cancelled", fields...)
	} else {
		o.logger.Info(ctx, "batch finished", fields...)
	}
	return out, nil
}

// Extract processes a single document. It returns an error for invalid
// options, or the context error if ctx ended before the document finished.
func (o *Orchestrator) Extract(ctx context.Context, doc SourceDocument, opts Options) (DocumentResult, error) {
	if err := opts.Validate(); err != nil {
		return DocumentResult{}, err
	}
	gate, _ := NewGate(opts.AutoAcceptThreshold, opts.ReviewThreshold)
	r, ok := o.run(ctx, doc, opts, gate)
	if !ok {
		return DocumentResult{}, ctx.Err()
	}
	return r, nil
}

// run executes the pipeline for one document. The bool is false when ctx
// was cancelled before a final result existed.
func (o *Orchestrator) run(ctx context.Context, doc SourceDocument, opts Options, gate Gate) (DocumentResult, bool) {
	if ctx.Err() != nil {
		return DocumentResult{}, false
	}
	start := o.now()
	ctx = logging.WithDocumentRef(ctx, doc.Ref)
	ctx, span := o.tracer.Start(ctx, "extraction.document", trace.WithAttributes(
		attribute.String("document.ref", doc.Ref),
		attribute.String("document.source_type", string(doc.SourceType)),
		attribute.Int("document.body_chars", len(doc.Body)),
	))
	defer span.End()

	if o.metrics != nil {
		o.metrics.InFlight.Inc()
		defer o.metrics.InFlight.Dec()
	}

	result := DocumentResult{Document: doc}

	if o.relevance != nil && !o.relevance.Relevant(doc) {
		result.Skipped = true
		o.logger.Debug(ctx, "document skipped by relevance filter")
		return o.finish(ctx, span, start, result), true
	}

	req, raw, attempts, err := o.generate(ctx, doc, opts)
	result.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return DocumentResult{}, false
		}
		result.Failure = &Failure{Kind: failureKind(err), DocumentRef: doc.Ref, Message: err.Error()}
		return o.finish(ctx, span, start, result), true
	}

	candidates, err := ParseResponse(raw)
	if err != nil {
		result.Failure = &Failure{Kind: FailureParse, DocumentRef: doc.Ref, Message: err.Error()}
		o.logger.Debug(ctx, "unparseable model reply", zap.Int("response_chars", len(raw)))
		if inv, ok := o.client.(inference.Invalidator); ok {
			if err := inv.Invalidate(context.WithoutCancel(ctx), req); err != nil {
				o.logger.Warn(ctx, "failed to drop cached reply", zap.Error(err))
			}
		}
		return o.finish(ctx, span, start, result), true
	}

	ref := doc.ReceivedAt
	if ref.IsZero() {
		ref = o.now()
	}
	result.Items = make([]ActionItem, 0, len(candidates))
	for i, c := range candidates {
		item, err := NormalizeItem(c, doc, ref)
		if err != nil {
			result.Dropped++
			var nerr *NormalizationError
			if errors.As(err, &nerr) {
				o.logger.Debug(ctx, "candidate dropped",
					zap.Int("index", i),
					zap.String("reason", string(nerr.Reason)),
				)
			}
			continue
		}
		if opts.MaxItems > 0 && len(result.Items) >= opts.MaxItems {
			result.Dropped++
			continue
		}
		gate.Apply(&item)
		result.Items = append(result.Items, item)
	}

	return o.finish(ctx, span, start, result), true
}

// generate builds the prompt and calls the model under the retry policy.
// The request is returned so an unusable reply can be dropped from the cache.
func (o *Orchestrator) generate(ctx context.Context, doc SourceDocument, opts Options) (inference.Request, string, int, error) {
	promptDoc := doc
	if o.scrubber != nil {
		promptDoc.Subject = o.scrubber.Scrub(doc.Subject)
		promptDoc.Body = o.scrubber.Scrub(doc.Body)
	}
	req := inference.Request{Model: opts.Model, Prompt: BuildPrompt(promptDoc, opts)}

	raw, attempts, err := o.retry.run(ctx, func() (string, error) {
		t := time.Now()
		out, err := o.client.Generate(ctx, req)
		if o.metrics != nil {
			o.metrics.RecordInference(inferenceOutcome(err), time.Since(t).Seconds())
		}
		if err != nil && ctx.Err() == nil {
			o.logger.Warn(ctx, "inference call failed",
				zap.String("kind", string(failureKind(err))),
				zap.Error(err),
			)
		}
		return out, err
	})
	return req, raw, attempts, err
}

// finish records the outcome and hands the result to the sink. The sink runs
// detached from cancellation so a completed document is always delivered.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, start time.Time, r DocumentResult) DocumentResult {
	r.Duration = o.now().Sub(start)

	span.SetAttributes(
		attribute.Int("document.items", len(r.Items)),
		attribute.Int("document.dropped", r.Dropped),
		attribute.Int("document.attempts", r.Attempts),
		attribute.Bool("document.skipped", r.Skipped),
	)
	if r.Failure != nil {
		span.SetAttributes(attribute.String("document.failure", string(r.Failure.Kind)))
		span.SetStatus(codes.Error, r.Failure.Message)
	}

	if o.metrics != nil {
		o.metrics.RecordDocument(r)
	}

	if r.Failure != nil {
		o.logger.Warn(ctx, "document failed",
			zap.String("failure", string(r.Failure.Kind)),
			zap.Int("attempts", r.Attempts),
			zap.Duration("duration", r.Duration),
		)
	} else {
		o.logger.Debug(ctx, "document extracted",
			zap.Int("items", len(r.Items)),
			zap.Int("dropped", r.Dropped),
			zap.Duration("duration", r.Duration),
		)
	}

	if o.sink != nil {
		if err := o.sink.Handle(context.WithoutCancel(ctx), r); err != nil {
			if o.metrics != nil {
				o.metrics.SinkErrorsTotal.Inc()
			}
			o.logger.Error(ctx, "result sink failed", zap.Error(err))
		}
	}
	return r
}

func failureKind(err error) FailureKind {
	switch inference.KindOf(err) {
	case inference.KindTimeout:
		return FailureInferenceTimeout
	case inference.KindUnavailable:
		return FailureInferenceUnavailable
	case inference.KindEndpoint:
		return FailureInferenceError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureInferenceTimeout
	}
	return FailureInferenceError
}

func inferenceOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(failureKind(err))
}
