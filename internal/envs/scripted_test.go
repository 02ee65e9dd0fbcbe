package envs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScriptedStep(t *testing.T) {
	env := NewScripted(Script{
		Task: Task{ID: "t1", Goal: "find the key"},
		Rules: []Rule{
			{Match: "look", Observation: "You see a drawer."},
			{Match: "open drawer", Observation: "The key is here.", Reward: 1, Done: true, Success: true},
		},
	})

	task, err := env.Reset(context.Background())
	if err != nil || task.ID != "t1" {
		t.Fatalf("Reset: %v, task %+v", err, task)
	}

	res, err := env.Step(context.Background(), "look around")
	if err != nil || res.Observation != "You see a drawer." || res.Done {
		t.Fatalf("step 1: %+v, %v", res, err)
	}

	res, err = env.Step(context.Background(), "dance")
	if err != nil || res.Observation != "Nothing happens." {
		t.Fatalf("fallback: %+v, %v", res, err)
	}

	res, err = env.Step(context.Background(), "open drawer 1")
	if err != nil || !res.Done || !res.Success || res.Reward != 1 {
		t.Fatalf("terminal step: %+v, %v", res, err)
	}

	if _, err := env.Step(context.Background(), "look"); err == nil {
		t.Fatal("stepping after done must fail")
	}

	// Reset rewinds the script.
	if _, err := env.Reset(context.Background()); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if _, err := env.Step(context.Background(), "look"); err != nil {
		t.Fatalf("step after reset: %v", err)
	}
}

func TestLoadScript(t *testing.T) {
	raw := `
task:
  id: demo
  goal: put the apple in the fridge
  init_obs: You are in the kitchen.
rules:
  - match: open fridge
    observation: The fridge is open.
  - match: put apple
    observation: Done.
    reward: 1
    done: true
    success: true
`
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if s.Task.Goal != "put the apple in the fridge" || len(s.Rules) != 2 {
		t.Fatalf("script = %+v", s)
	}
	if s.Fallback != "Nothing happens." {
		t.Fatalf("fallback default = %q", s.Fallback)
	}
}
