package inference

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerClient stops calling an endpoint that keeps timing out or refusing
// connections. While open, calls fail fast with KindUnavailable.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps next with a circuit breaker. Only timeouts and
// unreachable endpoints count as failures; endpoint errors and cancellations
// do not trip the breaker.
func NewBreakerClient(next Client, cfg BreakerConfig, logger *zap.Logger) *BreakerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Generate implements Client.
func (b *BreakerClient) Generate(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &Error{Kind: KindUnavailable, Err: errors.Join(ErrCircuitOpen, err)}
		}
		return "", err
	}
	return out.(string), nil
}

// Status implements Client. Status checks bypass the breaker so an operator
// can see whether the endpoint has recovered.
func (b *BreakerClient) Status(ctx context.Context) (Status, error) {
	return b.next.Status(ctx)
}

// State returns the breaker state name: "closed", "half-open" or "open".
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

var _ Client = (*BreakerClient)(nil)
