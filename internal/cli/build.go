package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/andywolf/agentbench/internal/auth"
	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/config"
	"github.com/andywolf/agentbench/internal/observability"
	"github.com/andywolf/agentbench/internal/secrets"
)

// buildClient assembles a backend client for one role: credential
// resolution, token source, kind-specific transport, and rate limiting.
func buildClient(ctx context.Context, cfg *config.Config, role string) (backend.Client, error) {
	bc, err := cfg.Backend(role)
	if err != nil {
		return nil, err
	}

	tokens, err := buildTokenSource(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", role, err)
	}

	var client backend.Client
	switch bc.Kind {
	case config.KindDiffusion:
		client, err = backend.NewDiffusion(backend.DiffusionOptions{
			BaseURL: bc.BaseURL,
			Tokens:  tokens,
			Engine:  bc.Engine,
			Params: backend.DiffusionParams{
				Temperature: bc.Temperature,
				GenLength:   bc.Diffusion.GenLength,
				Steps:       bc.Diffusion.Steps,
				BlockSize:   bc.Diffusion.BlockSize,
				Threshold:   bc.Diffusion.Threshold,
				DualCache:   bc.Diffusion.DualCache,
			},
			Timeout: bc.Timeout(),
		})
	default:
		client, err = backend.NewCausal(backend.CausalOptions{
			BaseURL:     bc.BaseURL,
			Tokens:      tokens,
			Engine:      bc.Engine,
			Temperature: bc.Temperature,
			MaxTokens:   bc.MaxTokens,
			Timeout:     bc.Timeout(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", role, err)
	}
	return backend.Limited(client, bc.RateLimitRPS), nil
}

// buildTokenSource resolves the credential (literal or Secret Manager
// reference) and picks between a static bearer token and a signing-key
// minter for gateway deployments.
func buildTokenSource(ctx context.Context, bc config.BackendConfig) (backend.TokenSource, error) {
	if bc.SigningKeyPEM != "" {
		pem, err := readMaybeFile(bc.SigningKeyPEM)
		if err != nil {
			return nil, err
		}
		return auth.NewMinter("agentbench", pem)
	}
	if bc.Credential == "" {
		return nil, nil
	}

	var fetcher secrets.Fetcher
	if secrets.IsSecretRef(bc.Credential) {
		sm, err := secrets.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("secret manager: %w", err)
		}
		fetcher = sm
	}
	cred, err := secrets.Resolve(ctx, fetcher, bc.Credential)
	if err != nil {
		return nil, err
	}
	return backend.StaticToken(cred), nil
}

// readMaybeFile treats the value as a path when one exists, otherwise as
// inline PEM content.
func readMaybeFile(v string) ([]byte, error) {
	if _, err := os.Stat(v); err == nil {
		data, err := os.ReadFile(v)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		return data, nil
	}
	return []byte(v), nil
}

// buildTracer picks the Langfuse tracer when tracing is enabled.
func buildTracer(cfg *config.Config, logger *log.Logger) observability.Tracer {
	if !cfg.Tracing.Enabled {
		return observability.NewNoOpTracer()
	}
	return observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: cfg.Tracing.PublicKey,
		SecretKey: cfg.Tracing.SecretKey,
		BaseURL:   cfg.Tracing.BaseURL,
	}, logger)
}
