package extraction

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jking323/TaskHarvester/internal/inference"
)

// RetryPolicy decides how often a document's inference call is attempted.
// Only timeouts and unreachable endpoints are retried; endpoint errors and
// parse failures are returned on the first occurrence.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NoRetry makes a single attempt. It is the default.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Validate reports a *ConfigError for an unusable policy.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return &ConfigError{Field: "retry.max_attempts", Reason: "must be >= 1"}
	}
	if p.InitialInterval < 0 || p.MaxInterval < 0 {
		return &ConfigError{Field: "retry.interval", Reason: "must not be negative"}
	}
	return nil
}

// run calls fn under the policy and returns its output and the attempt count.
func (p RetryPolicy) run(ctx context.Context, fn func() (string, error)) (string, int, error) {
	if p.MaxAttempts <= 1 {
		out, err := fn()
		return out, 1, err
	}

	attempts := 0
	op := func() (string, error) {
		attempts++
		out, err := fn()
		if err != nil && !inference.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
	return out, attempts, err
}
