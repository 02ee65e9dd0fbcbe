package backend

import (
	"context"
	"fmt"
	"time"
)

// CausalClient talks to an OpenAI-format chat-completion server (vLLM and
// compatible). Autoregressive, left-to-right generation.
type CausalClient struct {
	core        httpCore
	engine      string
	temperature float64
	maxTokens   int
}

// CausalOptions configures a CausalClient.
type CausalOptions struct {
	BaseURL     string
	Tokens      TokenSource
	Engine      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewCausal builds a causal backend client.
func NewCausal(opts CausalOptions) (*CausalClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("causal backend: base URL is required")
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 256
	}
	return &CausalClient{
		core:        newHTTPCore("causal", opts.BaseURL, opts.Tokens, opts.Timeout),
		engine:      opts.Engine,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Name implements Client.
func (c *CausalClient) Name() string { return "causal" }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stop        []string  `json:"stop,omitempty"`
	Logprobs    bool      `json:"logprobs,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Logprobs *struct {
			Content []struct {
				Logprob float64 `json:"logprob"`
			} `json:"content"`
		} `json:"logprobs"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements Client via POST /v1/chat/completions.
func (c *CausalClient) Complete(ctx context.Context, req Request) (Completion, error) {
	body := chatRequest{
		Model:       c.engine,
		Messages:    req.Messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stop:        req.StopSequences,
		Logprobs:    req.ReturnTokenLogprobs,
	}
	if req.Temperature != 0 {
		body.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		body.MaxTokens = req.MaxTokens
	}

	var resp chatResponse
	if err := c.core.postJSON(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &ModelError{Backend: c.Name(), Err: fmt.Errorf("no choices in response")}
	}

	out := Completion{
		Text:             resp.Choices[0].Message.Content,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if lp := resp.Choices[0].Logprobs; lp != nil {
		for _, tok := range lp.Content {
			out.Logprobs = append(out.Logprobs, tok.Logprob)
		}
	}
	return out, nil
}

type tokenizeRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// CountTokens implements Client via the vLLM tokenize endpoint.
func (c *CausalClient) CountTokens(ctx context.Context, msgs []Message) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.core.postJSON(ctx, "/tokenize", tokenizeRequest{Model: c.engine, Messages: msgs}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
