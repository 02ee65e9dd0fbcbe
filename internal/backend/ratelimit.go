package backend

import (
	"context"

	"golang.org/x/time/rate"
)

// limitedClient wraps a Client with a token-bucket limiter so parallel
// episodes cannot overrun a shared endpoint.
type limitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// Limited returns c wrapped with a limiter of rps requests per second.
// A non-positive rps returns c unchanged.
func Limited(c Client, rps float64) Client {
	if rps <= 0 {
		return c
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &limitedClient{inner: c, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limitedClient) Name() string { return l.inner.Name() }

func (l *limitedClient) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Completion{}, &TransportError{Backend: l.inner.Name(), Err: err}
	}
	return l.inner.Complete(ctx, req)
}

func (l *limitedClient) CountTokens(ctx context.Context, msgs []Message) (int, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, &TransportError{Backend: l.inner.Name(), Err: err}
	}
	return l.inner.CountTokens(ctx, msgs)
}
