package inference

import (
	"context"
	"sync/atomic"
)

// stubClient is a scripted Client for decorator tests.
type stubClient struct {
	calls    atomic.Int32
	generate func(ctx context.Context, req Request) (string, error)
}

func (s *stubClient) Generate(ctx context.Context, req Request) (string, error) {
	s.calls.Add(1)
	if s.generate == nil {
		return "[]", nil
	}
	return s.generate(ctx, req)
}

func (s *stubClient) Status(context.Context) (Status, error) {
	return Status{Backend: "stub", Reachable: true}, nil
}

func failWith(kind Kind) func(context.Context, Request) (string, error) {
	return func(context.Context, Request) (string, error) {
		return "", &Error{Kind: kind, Err: context.DeadlineExceeded}
	}
}
