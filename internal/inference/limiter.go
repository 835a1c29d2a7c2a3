package inference

import (
	"context"

	"golang.org/x/time/rate"
)

// LimitedClient spaces out calls to a shared endpoint.
type LimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimitedClient allows perSecond calls with the given burst.
func NewLimitedClient(next Client, perSecond float64, burst int) *LimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &LimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Generate implements Client.
func (l *LimitedClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// The caller's deadline would pass before a token frees up.
		return "", &Error{Kind: KindTimeout, Err: err}
	}
	return l.next.Generate(ctx, req)
}

// Status implements Client without consuming a token.
func (l *LimitedClient) Status(ctx context.Context) (Status, error) {
	return l.next.Status(ctx)
}

var _ Client = (*LimitedClient)(nil)
