// Package backend provides a uniform completion interface over the two
// generation backend families: causal chat-completion servers and
// diffusion-LLM servers. Callers never branch on the backend kind; the only
// variant-specific surface is Name(), which exists for logging.
package backend

import (
	"context"
	"time"
)

// Message is one chat message in OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries a prompt and generation options for one completion call.
// Zero values defer to the client's configured defaults.
type Request struct {
	Messages []Message

	Temperature   float64
	MaxTokens     int
	StopSequences []string

	// ReturnTokenLogprobs requests token-level metadata when the endpoint
	// supports it. Clients that cannot honor it ignore the flag.
	ReturnTokenLogprobs bool
}

// Completion is the result of one generation call.
type Completion struct {
	Text string

	// CompletionTokens is the token count reported by the endpoint, zero
	// when the endpoint does not report usage.
	CompletionTokens int

	// Logprobs holds token-level log probabilities when requested and
	// available.
	Logprobs []float64
}

// Client is the uniform interface over both backend families.
type Client interface {
	// Name identifies the backend for logging only.
	Name() string

	// Complete generates text for the request. Failures are *TransportError
	// (endpoint unreachable, retried internally with bounded backoff) or
	// *ModelError (error payload or malformed response, never retried).
	Complete(ctx context.Context, req Request) (Completion, error)

	// CountTokens returns the token count of the messages using the
	// endpoint's tokenizer.
	CountTokens(ctx context.Context, msgs []Message) (int, error)
}

// Backoff returns the delay before retry attempt i (0-indexed).
func Backoff(i int) time.Duration {
	return time.Duration(500*(1<<i)) * time.Millisecond
}

// maxAttempts is the bounded retry budget for transport failures.
const maxAttempts = 3
