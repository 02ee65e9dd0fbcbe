// Package envs defines the environment collaborator contract the control
// loop drives, plus a scripted implementation for offline runs and tests.
// The core never inspects an environment beyond Reset and Step.
package envs

import "context"

// Task describes one task instance as handed to the control loop at
// episode start.
type Task struct {
	ID          string   `yaml:"id"`
	Goal        string   `yaml:"goal"`
	Instruction string   `yaml:"instruction"`
	SystemMsg   string   `yaml:"system_msg"`
	Examples    []string `yaml:"examples"`
	InitObs     string   `yaml:"init_obs"`
	Commands    string   `yaml:"commands"`
}

// StepResult is the environment's answer to one action.
type StepResult struct {
	Observation string
	Reward      float64
	Done        bool
	Success     bool
}

// Environment is the collaborator contract: reset to a task, then step
// through actions until done.
type Environment interface {
	Reset(ctx context.Context) (Task, error)
	Step(ctx context.Context, action string) (StepResult, error)
}
