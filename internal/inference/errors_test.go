package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTransport(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   Kind
	}{
		{"deadline", live, fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", live, &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, KindTimeout},
		{"refused", live, &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindUnavailable},
		{"dns", live, &net.DNSError{Err: "no such host", Name: "ollama.invalid"}, KindUnavailable},
		{"other dial", live, &net.OpError{Op: "dial", Err: errors.New("boom")}, KindUnavailable},
		{"unknown", live, errors.New("unexpected EOF"), KindEndpoint},
		{"typed passthrough", live, &Error{Kind: KindUnavailable, Err: ErrCircuitOpen}, KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(classifyTransport(tt.parent, tt.err)))
		})
	}

	t.Run("cancelled parent", func(t *testing.T) {
		err := classifyTransport(cancelled, context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, Kind(""), KindOf(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyTransport(live, nil))
	})
}

func TestError(t *testing.T) {
	err := endpointError(503, "model %s is loading", "llama3.1:8b")
	assert.Equal(t, "inference endpoint (status 503): model llama3.1:8b is loading", err.Error())

	wrapped := fmt.Errorf("document msg-1: %w", &Error{Kind: KindTimeout, Err: context.DeadlineExceeded})
	assert.Equal(t, KindTimeout, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Equal(t, "inference timeout: context deadline exceeded", errors.Unwrap(wrapped).Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Kind: KindTimeout}))
	assert.True(t, IsRetryable(&Error{Kind: KindUnavailable}))
	assert.False(t, IsRetryable(&Error{Kind: KindEndpoint}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}
