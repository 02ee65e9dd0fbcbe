// Package config defines the agentbench configuration: backend endpoints per
// role, the agent preset, and runner limits. The configuration is loaded once
// at process start and passed by reference; nothing in this package mutates
// shared state after Load returns.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Backend roles. Auxiliary roles (summarizer, verifier, selector, editor)
// share the "features" backend; when no features backend is configured they
// alias the main-agent backend.
const (
	RoleMainAgent = "main-agent"
	RoleFeatures  = "features"
)

// Backend kinds.
const (
	KindCausal    = "causal"
	KindDiffusion = "diffusion"
)

// Verification formats.
const (
	FormatStrict = "strict"
	FormatModest = "modest"
)

// Config is the full agentbench configuration.
type Config struct {
	Backends map[string]BackendConfig `mapstructure:"backends"`
	Preset   PresetConfig             `mapstructure:"preset"`
	Runner   RunnerConfig             `mapstructure:"runner"`
	Tracing  TracingConfig            `mapstructure:"tracing"`
}

// BackendConfig describes one backend endpoint. Credential may be a literal
// bearer key or a Secret Manager resource path (projects/.../secrets/...).
type BackendConfig struct {
	Kind           string  `mapstructure:"kind"`             // causal | diffusion
	BaseURL        string  `mapstructure:"base_url"`
	Credential     string  `mapstructure:"credential"`
	SigningKeyPEM  string  `mapstructure:"signing_key_pem"`  // non-empty: mint signed gateway tokens
	Engine         string  `mapstructure:"engine"`
	LocalModelPath string  `mapstructure:"local_model_path"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	ContextLength  int     `mapstructure:"context_length"`
	TimeoutMS      int     `mapstructure:"timeout_ms"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"` // 0 disables rate limiting

	Diffusion DiffusionParams `mapstructure:"diffusion"`
}

// DiffusionParams are generation parameters specific to diffusion backends.
type DiffusionParams struct {
	Steps     int     `mapstructure:"steps"`
	GenLength int     `mapstructure:"gen_length"`
	BlockSize int     `mapstructure:"block_size"`
	Threshold float64 `mapstructure:"threshold"`
	DualCache bool    `mapstructure:"dual_cache"`
}

// PresetConfig is the agent preset: memory bounds, verification cadence and
// tool-calling feature toggles.
type PresetConfig struct {
	Name               string `mapstructure:"name"`
	StoredMemoryMax    int    `mapstructure:"stored_memory_max"`
	UpdateNum          int    `mapstructure:"update_num"`
	VerificationIter   int    `mapstructure:"verification_iter"`
	VerificationFormat string `mapstructure:"verification_format"` // strict | modest
	EarlyExit          bool   `mapstructure:"early_exit"`
	UseSelector        bool   `mapstructure:"use_selector"`
	UseEditor          bool   `mapstructure:"use_editor"`
	SelectorTopK       int    `mapstructure:"selector_top_k"`
}

// RunnerConfig bounds episode execution.
type RunnerConfig struct {
	Workers     int    `mapstructure:"workers"`
	StepBudget  int    `mapstructure:"step_budget"`
	MaxDuration string `mapstructure:"max_duration"` // wall-clock deadline per run, e.g. "2h"
	ResultsDir  string `mapstructure:"results_dir"`
	ToolCatalog string `mapstructure:"tool_catalog"` // path to YAML tool catalog
}

// TracingConfig configures the optional Langfuse tracer.
type TracingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PublicKey string `mapstructure:"public_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

// Load builds the configuration from viper (config file plus environment).
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Backends == nil {
		cfg.Backends = map[string]BackendConfig{}
	}

	// The main-agent backend may be configured entirely from the
	// environment (new-style names win over legacy aliases).
	if _, ok := cfg.Backends[RoleMainAgent]; !ok {
		cfg.Backends[RoleMainAgent] = BackendConfig{
			Kind:       KindCausal,
			BaseURL:    Resolve("MAIN_AGENT_BASE_URL", "VLLM_BASE_URL", ""),
			Credential: Resolve("MAIN_AGENT_API_KEY", "VLLM_API_KEY", ""),
		}
	}

	for role, b := range cfg.Backends {
		if b.Kind == "" {
			b.Kind = KindCausal
		}
		if b.Temperature == 0 {
			b.Temperature = 0.1
		}
		if b.MaxTokens == 0 {
			b.MaxTokens = 256
		}
		if b.ContextLength == 0 {
			b.ContextLength = 4096
		}
		if b.TimeoutMS == 0 {
			b.TimeoutMS = 45000
		}
		if b.Kind == KindDiffusion {
			if b.Diffusion.Steps == 0 {
				b.Diffusion.Steps = 256
			}
			if b.Diffusion.GenLength == 0 {
				b.Diffusion.GenLength = 256
			}
			if b.Diffusion.BlockSize == 0 {
				b.Diffusion.BlockSize = 32
			}
			if b.Diffusion.Threshold == 0 {
				b.Diffusion.Threshold = 0.9
			}
		}
		cfg.Backends[role] = b
	}

	if cfg.Preset.StoredMemoryMax == 0 {
		cfg.Preset.StoredMemoryMax = 4
	}
	if cfg.Preset.UpdateNum == 0 {
		cfg.Preset.UpdateNum = 2
	}
	if cfg.Preset.VerificationIter == 0 {
		cfg.Preset.VerificationIter = 5
	}
	if cfg.Preset.VerificationFormat == "" {
		cfg.Preset.VerificationFormat = FormatStrict
	}
	if cfg.Preset.SelectorTopK == 0 {
		cfg.Preset.SelectorTopK = 5
	}

	if cfg.Runner.Workers == 0 {
		cfg.Runner.Workers = 4
	}
	if cfg.Runner.StepBudget == 0 {
		cfg.Runner.StepBudget = 30
	}
	if cfg.Runner.MaxDuration == "" {
		cfg.Runner.MaxDuration = "2h"
	}
	if cfg.Runner.ResultsDir == "" {
		cfg.Runner.ResultsDir = "results"
	}
}

// Validate checks cross-field constraints that applyDefaults cannot repair.
func (c *Config) Validate() error {
	for role, b := range c.Backends {
		if b.Kind != KindCausal && b.Kind != KindDiffusion {
			return fmt.Errorf("backend %q: unknown kind %q", role, b.Kind)
		}
	}
	if f := c.Preset.VerificationFormat; f != FormatStrict && f != FormatModest {
		return fmt.Errorf("preset: verification_format must be %q or %q, got %q",
			FormatStrict, FormatModest, f)
	}
	if c.Preset.UpdateNum > c.Preset.StoredMemoryMax {
		return fmt.Errorf("preset: update_num (%d) cannot exceed stored_memory_max (%d)",
			c.Preset.UpdateNum, c.Preset.StoredMemoryMax)
	}
	return nil
}

// Backend returns the backend configuration for the given role. Auxiliary
// roles fall back to the main-agent backend when no features backend is
// configured, mirroring the single-backend deployment mode.
func (c *Config) Backend(role string) (BackendConfig, error) {
	if b, ok := c.Backends[role]; ok && b.BaseURL != "" {
		return b, nil
	}
	if role == RoleFeatures {
		if b, ok := c.Backends[RoleMainAgent]; ok && b.BaseURL != "" {
			return b, nil
		}
	}
	return BackendConfig{}, fmt.Errorf("no backend configured for role %q", role)
}

// Timeout returns the per-call timeout for this backend.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// MaxRunDuration parses the runner wall-clock deadline.
func (r RunnerConfig) MaxRunDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.MaxDuration)
	if err != nil {
		return 0, fmt.Errorf("invalid max_duration %q: %w", r.MaxDuration, err)
	}
	return d, nil
}
