package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedClient_Burst(t *testing.T) {
	next := &stubClient{}
	l := NewLimitedClient(next, 100, 3)

	for i := 0; i < 3; i++ {
		_, err := l.Generate(context.Background(), Request{Prompt: "p"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestLimitedClient_DeadlineTooShort(t *testing.T) {
	next := &stubClient{}
	l := NewLimitedClient(next, 0.1, 1)

	_, err := l.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Generate(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestLimitedClient_Cancelled(t *testing.T) {
	l := NewLimitedClient(&stubClient{}, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Generate(ctx, Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}
