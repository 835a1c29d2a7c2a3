package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/logging"
)

// fakeClient answers prompts by looking up the document body in replies.
type fakeClient struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string][]error
	prompts  []string
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{replies: map[string]string{}, errs: map[string][]error{}}
}

func (f *fakeClient) Generate(ctx context.Context, req inference.Request) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	content := promptContent(req.Prompt)

	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	var key string
	for body := range f.replies {
		if strings.Contains(content, body) {
			key = body
		}
	}
	for body := range f.errs {
		if strings.Contains(content, body) {
			key = body
		}
	}
	var err error
	if queue := f.errs[key]; len(queue) > 0 {
		err = queue[0]
		f.errs[key] = queue[1:]
	}
	reply := f.replies[key]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// promptContent returns the document section of a prompt.
func promptContent(prompt string) string {
	_, after, _ := strings.Cut(prompt, "CONTENT:\n")
	before, _, _ := strings.Cut(after, "\n\nExtract action items")
	return before
}

func (f *fakeClient) Status(context.Context) (inference.Status, error) {
	return inference.Status{Backend: "fake", Reachable: true}, nil
}

func doc(ref, body string) SourceDocument {
	return SourceDocument{
		Ref:        ref,
		SourceType: SourceEmail,
		Sender:     "alice@example.com",
		ReceivedAt: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		Body:       body,
	}
}

func TestNewOrchestrator_ConfigErrors(t *testing.T) {
	client := newFakeClient()

	tests := []struct {
		name string
		opts []Option
	}{
		{"concurrency zero", []Option{WithConcurrency(0)}},
		{"bad thresholds", []Option{WithThresholds(0.5, 0.8)}},
		{"bad retry", []Option{WithRetryPolicy(RetryPolicy{MaxAttempts: 0})}},
		{"bad defaults", []Option{WithDefaults(Options{Model: "", AutoAcceptThreshold: 0.9, ReviewThreshold: 0.7})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(client, tt.opts...)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %v", err)
		})
	}

	_, err := NewOrchestrator(nil)
	require.Error(t, err)
}

func TestExtractBatch_InvalidOptions(t *testing.T) {
	client := newFakeClient()
	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	opts := orch.Defaults()
	opts.ReviewThreshold = 0.95

	results, err := orch.ExtractBatch(context.Background(), []SourceDocument{doc("a", "x")}, opts)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Zero(t, client.calls.Load())
}

func TestExtractBatch_ReviewScenario(t *testing.T) {
	body := "Please review the Q4 report by Friday. John needs to update the budget."
	client := newFakeClient()
	client.replies[body] = `[{"title": "Review Q4 report", "confidence": 0.95, "priority": "high"}, {"title": "Update budget", "assignee": "John", "confidence": 0.6}]`

	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(), []SourceDocument{doc("msg-1", body)}, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.True(t, r.OK())
	require.Len(t, r.Items, 2)

	assert.Equal(t, "Review Q4 report", r.Items[0].Title)
	assert.Equal(t, PriorityHigh, r.Items[0].Priority)
	assert.Equal(t, TierAutoAccept, r.Items[0].Tier)

	assert.Equal(t, "Update budget", r.Items[1].Title)
	require.NotNil(t, r.Items[1].Assignee)
	assert.Equal(t, "John", *r.Items[1].Assignee)
	assert.Equal(t, PriorityMedium, r.Items[1].Priority)
	assert.Equal(t, TierRejected, r.Items[1].Tier)

	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, "msg-1", r.Items[0].SourceRef)
}

func TestExtractBatch_PartialFailure(t *testing.T) {
	client := newFakeClient()
	docs := make([]SourceDocument, 5)
	for i := range docs {
		body := fmt.Sprintf("document body %d", i+1)
		docs[i] = doc(fmt.Sprintf("doc-%d", i+1), body)
		client.replies[body] = fmt.Sprintf(`[{"title": "task %d", "confidence": 0.8}]`, i+1)
	}
	client.errs["document body 3"] = []error{&inference.Error{Kind: inference.KindTimeout, Err: context.DeadlineExceeded}}

	orch, err := NewOrchestrator(client, WithConcurrency(2))
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(), docs, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, docs[i].Ref, r.Document.Ref, "results keep input order")
		if i == 2 {
			require.NotNil(t, r.Failure)
			assert.Equal(t, FailureInferenceTimeout, r.Failure.Kind)
			assert.Equal(t, "doc-3", r.Failure.DocumentRef)
			assert.Empty(t, r.Items)
			continue
		}
		require.True(t, r.OK(), "doc %d: %v", i+1, r.Failure)
		require.Len(t, r.Items, 1)
		assert.Equal(t, fmt.Sprintf("task %d", i+1), r.Items[0].Title)
		assert.Equal(t, TierNeedsReview, r.Items[0].Tier)
	}

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, docs[2], failed[0])

	summary := Summarize(results)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, 1, summary.Failures[FailureInferenceTimeout])
}

func TestExtractBatch_FailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"timeout", &inference.Error{Kind: inference.KindTimeout, Err: errors.New("slow")}, FailureInferenceTimeout},
		{"unavailable", &inference.Error{Kind: inference.KindUnavailable, Err: errors.New("refused")}, FailureInferenceUnavailable},
		{"endpoint", &inference.Error{Kind: inference.KindEndpoint, StatusCode: 500, Err: errors.New("boom")}, FailureInferenceError},
		{"bare deadline", context.DeadlineExceeded, FailureInferenceTimeout},
		{"unknown", errors.New("odd"), FailureInferenceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.errs["body"] = []error{tt.err}

			orch, err := NewOrchestrator(client)
			require.NoError(t, err)

			r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
			require.NoError(t, err)
			require.NotNil(t, r.Failure)
			assert.Equal(t, tt.want, r.Failure.Kind)
			assert.Equal(t, tt.err.Error(), r.Failure.Message)
		})
	}
}

func TestExtractBatch_ProseReplyIsParseFailure(t *testing.T) {
	client := newFakeClient()
	client.replies["first"] = "There are no action items in this message."
	client.replies["second"] = `[{"title": "Ship it", "confidence": 0.91}]`

	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(),
		[]SourceDocument{doc("a", "first"), doc("b", "second")}, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NotNil(t, results[0].Failure)
	assert.Equal(t, FailureParse, results[0].Failure.Kind)
	assert.Empty(t, results[0].Items)

	require.True(t, results[1].OK())
	assert.Equal(t, TierAutoAccept, results[1].Items[0].Tier)
}

func TestExtractBatch_ResubmitParseFailureThroughCache(t *testing.T) {
	client := newFakeClient()
	client.replies["first"] = "Let me think about this email."
	client.replies["second"] = `[{"title": "Ship it", "confidence": 0.91}]`
	cached := inference.NewCachingClient(client, inference.NewMemoryStore(10, time.Minute), time.Minute, nil)

	orch, err := NewOrchestrator(cached)
	require.NoError(t, err)
	ctx := context.Background()
	docs := []SourceDocument{doc("a", "first"), doc("b", "second")}

	results, err := orch.ExtractBatch(ctx, docs, orch.Defaults())
	require.NoError(t, err)
	require.NotNil(t, results[0].Failure)
	assert.Equal(t, FailureParse, results[0].Failure.Kind)
	assert.Equal(t, int32(2), client.calls.Load())

	client.mu.Lock()
	client.replies["first"] = `[{"title": "Reply to Alice", "confidence": 0.8}]`
	client.mu.Unlock()

	retried, err := orch.ExtractBatch(ctx, Failed(results), orch.Defaults())
	require.NoError(t, err)
	require.Len(t, retried, 1)
	require.True(t, retried[0].OK(), "resubmitted document reaches the model again")
	assert.Equal(t, "Reply to Alice", retried[0].Items[0].Title)
	assert.Equal(t, int32(3), client.calls.Load())

	again, err := orch.ExtractBatch(ctx, docs[1:], orch.Defaults())
	require.NoError(t, err)
	require.True(t, again[0].OK())
	assert.Equal(t, int32(3), client.calls.Load(), "parsed replies stay cached")
}

func TestExtractBatch_NonNumericConfidence(t *testing.T) {
	client := newFakeClient()
	client.replies["body"] = `[{"title": "Call vendor", "confidence": "very high"}]`

	orch, err := NewOrchestrator(client, WithThresholds(0.9, 0.5))
	require.NoError(t, err)

	r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
	require.NoError(t, err)
	require.True(t, r.OK())
	require.Len(t, r.Items, 1)
	assert.Equal(t, DefaultConfidence, r.Items[0].Confidence)
	assert.Equal(t, TierNeedsReview, r.Items[0].Tier)
}

func TestExtractBatch_DroppedItems(t *testing.T) {
	client := newFakeClient()
	client.replies["body"] = `[{"title": "Keep me"}, {"description": "no title"}, {"title": "  "}, 7, {"title": "Keep me too"}]`

	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
	require.NoError(t, err)
	require.True(t, r.OK())
	assert.Equal(t, []string{"Keep me", "Keep me too"}, []string{r.Items[0].Title, r.Items[1].Title})
	assert.Equal(t, 3, r.Dropped)
}

func TestExtractBatch_MaxItems(t *testing.T) {
	client := newFakeClient()
	client.replies["body"] = `["one", "two", "three", "four"]`

	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	opts := orch.Defaults()
	opts.MaxItems = 2
	r, err := orch.Extract(context.Background(), doc("d", "body"), opts)
	require.NoError(t, err)
	require.Len(t, r.Items, 2)
	assert.Equal(t, "two", r.Items[1].Title)
	assert.Equal(t, 2, r.Dropped)
}

func TestExtractBatch_ConcurrencyBound(t *testing.T) {
	client := newFakeClient()
	client.delay = 20 * time.Millisecond
	docs := make([]SourceDocument, 8)
	for i := range docs {
		body := fmt.Sprintf("body-%d", i)
		docs[i] = doc(body, body)
		client.replies[body] = `[]`
	}

	orch, err := NewOrchestrator(client, WithConcurrency(3))
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(), docs, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 8)
	assert.LessOrEqual(t, client.maxSeen.Load(), int32(3))
	assert.Equal(t, int32(8), client.calls.Load())
}

func TestExtractBatch_Cancellation(t *testing.T) {
	client := newFakeClient()
	client.delay = time.Hour
	client.replies["slow"] = `[]`

	var delivered atomic.Int32
	sink := SinkFunc(func(context.Context, DocumentResult) error {
		delivered.Add(1)
		return nil
	})

	orch, err := NewOrchestrator(client, WithConcurrency(2), WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	docs := []SourceDocument{doc("1", "slow"), doc("2", "slow"), doc("3", "slow"), doc("4", "slow")}
	results, err := orch.ExtractBatch(ctx, docs, orch.Defaults())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, delivered.Load())
	assert.LessOrEqual(t, client.calls.Load(), int32(2))
}

func TestExtract_Cancelled(t *testing.T) {
	orch, err := NewOrchestrator(newFakeClient())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = orch.Extract(ctx, doc("d", "body"), orch.Defaults())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractBatch_RelevanceFilter(t *testing.T) {
	client := newFakeClient()
	client.replies["Please"] = `[{"title": "Send slides"}]`
	newsletter := strings.Repeat("weekly digest of industry headlines ", 20)

	orch, err := NewOrchestrator(client, WithRelevanceFilter(NewRelevanceFilter(50)))
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(), []SourceDocument{
		doc("news", newsletter),
		doc("ask", "Please send the slides."),
		doc("empty", "   "),
	}, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Skipped)
	assert.Empty(t, results[0].Items)
	assert.Zero(t, results[0].Attempts)
	assert.True(t, results[2].Skipped)
	assert.False(t, results[1].Skipped)
	assert.Len(t, results[1].Items, 1)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestExtractBatch_EmptyBodyStillPrompts(t *testing.T) {
	client := newFakeClient()

	orch, err := NewOrchestrator(client)
	require.NoError(t, err)

	r, err := orch.Extract(context.Background(), doc("empty", ""), orch.Defaults())
	require.NoError(t, err)
	assert.Equal(t, int32(1), client.calls.Load())
	// The fake replies with an empty string, which holds no JSON.
	require.NotNil(t, r.Failure)
	assert.Equal(t, FailureParse, r.Failure.Kind)
}

func TestExtractBatch_Scrubber(t *testing.T) {
	client := newFakeClient()
	body := "Deploy with api_key=supersecret123 please"
	client.replies["Deploy with"] = `[]`

	orch, err := NewOrchestrator(client, WithScrubber(NewPatternScrubber()))
	require.NoError(t, err)

	r, err := orch.Extract(context.Background(), doc("d", body), orch.Defaults())
	require.NoError(t, err)
	require.Len(t, client.prompts, 1)
	assert.NotContains(t, client.prompts[0], "supersecret123")
	assert.Equal(t, body, r.Document.Body, "the result keeps the original document")
}

func TestExtractBatch_RetryPolicy(t *testing.T) {
	unavailable := &inference.Error{Kind: inference.KindUnavailable, Err: errors.New("refused")}
	endpoint := &inference.Error{Kind: inference.KindEndpoint, StatusCode: 500, Err: errors.New("boom")}

	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("retries transient failures", func(t *testing.T) {
		client := newFakeClient()
		client.replies["body"] = `[{"title": "Recovered"}]`
		client.errs["body"] = []error{unavailable, unavailable}

		orch, err := NewOrchestrator(client, WithRetryPolicy(policy))
		require.NoError(t, err)

		r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
		require.NoError(t, err)
		require.True(t, r.OK())
		assert.Equal(t, 3, r.Attempts)
		assert.Equal(t, "Recovered", r.Items[0].Title)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		client := newFakeClient()
		client.errs["body"] = []error{unavailable, unavailable, unavailable, unavailable}

		orch, err := NewOrchestrator(client, WithRetryPolicy(policy))
		require.NoError(t, err)

		r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
		require.NoError(t, err)
		require.NotNil(t, r.Failure)
		assert.Equal(t, FailureInferenceUnavailable, r.Failure.Kind)
		assert.Equal(t, 3, r.Attempts)
	})

	t.Run("endpoint errors are not retried", func(t *testing.T) {
		client := newFakeClient()
		client.errs["body"] = []error{endpoint}

		orch, err := NewOrchestrator(client, WithRetryPolicy(policy))
		require.NoError(t, err)

		r, err := orch.Extract(context.Background(), doc("d", "body"), orch.Defaults())
		require.NoError(t, err)
		require.NotNil(t, r.Failure)
		assert.Equal(t, FailureInferenceError, r.Failure.Kind)
		assert.Equal(t, 1, r.Attempts)
	})
}

func TestExtractBatch_SinkErrorsDoNotFailDocuments(t *testing.T) {
	client := newFakeClient()
	client.replies["body"] = `[{"title": "x"}]`

	var seen []string
	var mu sync.Mutex
	record := SinkFunc(func(_ context.Context, r DocumentResult) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Document.Ref)
		return nil
	})
	failing := SinkFunc(func(context.Context, DocumentResult) error {
		return errors.New("disk full")
	})

	tl := logging.NewTestLogger()
	orch, err := NewOrchestrator(client,
		WithSink(MultiSink{failing, record}),
		WithLogger(tl.Logger),
	)
	require.NoError(t, err)

	results, err := orch.ExtractBatch(context.Background(), []SourceDocument{doc("a", "body"), doc("b", "body")}, orch.Defaults())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
	tl.AssertLogged(t, zapcore.ErrorLevel, "result sink failed")
}

func TestExtractBatch_LogsCorrelationWithoutContent(t *testing.T) {
	client := newFakeClient()
	body := "Confidential: please wire the payment to account 998877"
	client.errs[body] = []error{&inference.Error{Kind: inference.KindEndpoint, StatusCode: 500, Err: errors.New("boom")}}

	tl := logging.NewTestLogger()
	orch, err := NewOrchestrator(client, WithLogger(tl.Logger))
	require.NoError(t, err)

	_, err = orch.ExtractBatch(context.Background(), []SourceDocument{doc("msg-9", body)}, orch.Defaults())
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.WarnLevel, "document failed")
	tl.AssertField(t, "document failed", "document.ref", "msg-9")
	tl.AssertField(t, "document failed", "failure", string(FailureInferenceError))
	tl.AssertNoContent(t, "998877")
}

func TestExtractBatch_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	client := newFakeClient()
	client.replies["body"] = `[{"title": "x"}]`

	orch, err := NewOrchestrator(client, WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = orch.ExtractBatch(context.Background(), []SourceDocument{doc("a", "body"), doc("b", "body")}, orch.Defaults())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["extraction.batch"])
	assert.Equal(t, 2, names["extraction.document"])
}
