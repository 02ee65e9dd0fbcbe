package envs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps actions containing Match to a canned step result. Rules are
// checked in order; the first match wins.
type Rule struct {
	Match       string  `yaml:"match"`
	Observation string  `yaml:"observation"`
	Reward      float64 `yaml:"reward"`
	Done        bool    `yaml:"done"`
	Success     bool    `yaml:"success"`
}

// Script is a fully canned task: the task description plus the rules
// that answer the agent's actions.
type Script struct {
	Task     Task   `yaml:"task"`
	Rules    []Rule `yaml:"rules"`
	Fallback string `yaml:"fallback"` // observation when no rule matches
}

// LoadScript reads a scripted task from YAML.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	if s.Fallback == "" {
		s.Fallback = "Nothing happens."
	}
	return s, nil
}

// Scripted replays a Script as an Environment. It is deterministic and
// needs no network, which makes it the test double and the smoke-test
// target for the run command.
type Scripted struct {
	script Script
	done   bool
}

func NewScripted(script Script) *Scripted {
	if script.Fallback == "" {
		script.Fallback = "Nothing happens."
	}
	return &Scripted{script: script}
}

func (s *Scripted) Reset(_ context.Context) (Task, error) {
	s.done = false
	return s.script.Task, nil
}

func (s *Scripted) Step(_ context.Context, action string) (StepResult, error) {
	if s.done {
		return StepResult{}, fmt.Errorf("step after episode end")
	}
	for _, r := range s.script.Rules {
		if r.Match != "" && strings.Contains(action, r.Match) {
			s.done = r.Done
			return StepResult{
				Observation: r.Observation,
				Reward:      r.Reward,
				Done:        r.Done,
				Success:     r.Success,
			}, nil
		}
	}
	return StepResult{Observation: s.script.Fallback}, nil
}
