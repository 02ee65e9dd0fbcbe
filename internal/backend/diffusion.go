package backend

import (
	"context"
	"fmt"
	"time"
)

// DiffusionClient talks to a diffusion-LLM server. Non-causal,
// iterative-refinement generation; the interface is identical to the causal
// client, only the wire protocol and latency profile differ.
type DiffusionClient struct {
	core   httpCore
	engine string
	params DiffusionParams
}

// DiffusionParams are the dLLM generation parameters.
type DiffusionParams struct {
	Temperature float64
	GenLength   int
	Steps       int
	BlockSize   int
	Threshold   float64
	DualCache   bool
}

// DiffusionOptions configures a DiffusionClient.
type DiffusionOptions struct {
	BaseURL string
	Tokens  TokenSource
	Engine  string
	Params  DiffusionParams
	Timeout time.Duration
}

// NewDiffusion builds a diffusion backend client.
func NewDiffusion(opts DiffusionOptions) (*DiffusionClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("diffusion backend: base URL is required")
	}
	p := opts.Params
	if p.GenLength == 0 {
		p.GenLength = 256
	}
	if p.Steps == 0 {
		p.Steps = 256
	}
	if p.BlockSize == 0 {
		p.BlockSize = 32
	}
	if p.Threshold == 0 {
		p.Threshold = 0.9
	}
	return &DiffusionClient{
		core:   newHTTPCore("diffusion", opts.BaseURL, opts.Tokens, opts.Timeout),
		engine: opts.Engine,
		params: p,
	}, nil
}

// Name implements Client.
func (c *DiffusionClient) Name() string { return "diffusion" }

type generateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	GenLength   int       `json:"gen_length"`
	Steps       int       `json:"steps"`
	BlockSize   int       `json:"block_size"`
	Threshold   float64   `json:"threshold"`
	DualCache   bool      `json:"dual_cache"`
	Stop        []string  `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Token    int    `json:"token"`
}

// Complete implements Client via POST /generate.
func (c *DiffusionClient) Complete(ctx context.Context, req Request) (Completion, error) {
	body := generateRequest{
		Model:       c.engine,
		Messages:    req.Messages,
		Temperature: c.params.Temperature,
		GenLength:   c.params.GenLength,
		Steps:       c.params.Steps,
		BlockSize:   c.params.BlockSize,
		Threshold:   c.params.Threshold,
		DualCache:   c.params.DualCache,
		Stop:        req.StopSequences,
	}
	if req.Temperature != 0 {
		body.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		body.GenLength = req.MaxTokens
	}

	var resp generateResponse
	if err := c.core.postJSON(ctx, "/generate", body, &resp); err != nil {
		return Completion{}, err
	}
	return Completion{Text: resp.Response, CompletionTokens: resp.Token}, nil
}

// CountTokens implements Client via the dLLM tokenizer endpoint.
func (c *DiffusionClient) CountTokens(ctx context.Context, msgs []Message) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.core.postJSON(ctx, "/tokens", tokenizeRequest{Model: c.engine, Messages: msgs}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
