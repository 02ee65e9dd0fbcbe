package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for a request. Static API keys and
// minted gateway JWTs both satisfy it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource wrapping a literal bearer key.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// httpCore is the shared HTTP plumbing for both backend families: bearer
// auth, per-call timeout, and a bounded retry loop with exponential backoff
// on transport failures.
type httpCore struct {
	name    string
	baseURL string
	tokens  TokenSource
	client  *http.Client
	sleep   func(time.Duration) // overridable in tests
}

func newHTTPCore(name, baseURL string, tokens TokenSource, timeout time.Duration) httpCore {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return httpCore{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		sleep:   time.Sleep,
	}
}

func (c *httpCore) endpoint(path string) string {
	return c.baseURL + path
}

// postJSON posts body to path and decodes the response into out. Transport
// failures and retryable statuses are retried up to the attempt budget;
// anything else is a ModelError returned immediately.
func (c *httpCore) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ModelError{Backend: c.name, Err: fmt.Errorf("encode request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(Backoff(attempt - 1))
		}
		if err := ctx.Err(); err != nil {
			return &TransportError{Backend: c.name, Err: err}
		}

		err := c.doOnce(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		if !IsTransport(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *httpCore) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return &ModelError{Backend: c.name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &ModelError{Backend: c.name, Err: fmt.Errorf("resolve credential: %w", err)}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Backend: c.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if retryableStatus(resp.StatusCode) {
			return &TransportError{
				Backend: c.name,
				Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			}
		}
		return &ModelError{Backend: c.name, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ModelError{Backend: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
