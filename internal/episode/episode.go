// Package episode runs the agent control loop: one episode is one agent
// against one task instance, stepped sequentially until a terminal
// status. Episodes are independent; the runner fans them out across
// workers.
package episode

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/envs"
	"github.com/andywolf/agentbench/internal/memory"
	"github.com/andywolf/agentbench/internal/observability"
	"github.com/andywolf/agentbench/internal/results"
	"github.com/andywolf/agentbench/internal/role"
	"github.com/andywolf/agentbench/internal/toolcall"
	"github.com/andywolf/agentbench/internal/verify"
)

// Episode statuses. Transitions are one-way: running moves to exactly
// one terminal status and never back.
const (
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusEarlyExit = "early-exit"
	StatusTruncated = "truncated"
)

// Error tags recorded on failed episodes.
const (
	TagTransport   = "transport"
	TagModel       = "model"
	TagEnvironment = "environment"
)

// Actor is the primary role as the loop sees it. *role.Actor satisfies it.
type Actor interface {
	Act(ctx context.Context, c role.Context) (role.Step, error)
}

// Checker is the early-exit verifier as the loop sees it.
type Checker interface {
	Due(step int) bool
	Check(ctx context.Context, sysMsg, instruction, goal string, snap memory.State) verify.Outcome
}

// Loop drives one episode. All fields except Pipeline, Checker and
// Tracer are required.
type Loop struct {
	Actor    Actor
	Env      envs.Environment
	Memory   *memory.Manager
	Pipeline *toolcall.Pipeline // nil for plain embodied actions
	Checker  Checker            // nil when the preset disables early exit
	Tracer   observability.Tracer
	Logger   *log.Logger

	StepBudget int
	RunID      string
	Preset     string
	Backend    string
}

// Run executes the episode to a terminal status. The returned record is
// always complete: a failed or truncated episode still carries the full
// transcript up to the point it stopped. The error mirrors the record's
// failure tag; callers that archive records can ignore it.
func (l *Loop) Run(ctx context.Context) (results.Record, error) {
	if l.Logger == nil {
		l.Logger = log.New(log.Writer(), "[episode] ", log.LstdFlags)
	}
	if l.Tracer == nil {
		l.Tracer = observability.NewNoOpTracer()
	}
	if l.RunID == "" {
		l.RunID = uuid.New().String()
	}

	started := time.Now().UTC()
	rec := results.Record{
		RunID:     l.RunID,
		Preset:    l.Preset,
		Backend:   l.Backend,
		Status:    StatusRunning,
		StartedAt: started,
	}

	task, err := l.Env.Reset(ctx)
	if err != nil {
		rec.Status = StatusFailure
		rec.ErrorTag = TagEnvironment
		rec.FinishedAt = time.Now().UTC()
		return rec, fmt.Errorf("reset environment: %w", err)
	}
	rec.TaskID = task.ID

	trace := l.Tracer.StartTrace(task.ID, observability.TraceOptions{
		RunID:   l.RunID,
		Preset:  l.Preset,
		Backend: l.Backend,
	})

	var (
		transcript []memory.Turn
		runErr     error
		tokens     int
	)

	for step := 1; step <= l.StepBudget; step++ {
		// Cancellation is honored only at step boundaries; an in-flight
		// backend call is abandoned with its context.
		if ctx.Err() != nil {
			rec.Status = StatusTruncated
			break
		}

		span := l.Tracer.StartStep(trace, step, observability.SpanOptions{StepBudget: l.StepBudget})
		stepStart := time.Now()

		turn, res, stepErr := l.step(ctx, span, step, task)
		tokens += turn.tokens
		transcript = append(transcript, turn.Turn)
		l.Memory.Record(ctx, turn.Turn)
		rec.Steps = step
		rec.Reward += res.Reward

		if stepErr != nil {
			rec.Status = StatusFailure
			rec.ErrorTag = errorTag(stepErr)
			runErr = stepErr
			l.Tracer.EndStep(span, StatusFailure, time.Since(stepStart).Milliseconds())
			l.Logger.Printf("task %s failed at step %d: %v", task.ID, step, stepErr)
			break
		}

		if res.Done {
			if res.Success {
				rec.Status = StatusSuccess
			} else {
				rec.Status = StatusFailure
			}
			rec.Success = res.Success
			l.Tracer.EndStep(span, rec.Status, time.Since(stepStart).Milliseconds())
			break
		}

		if l.Checker != nil && l.Checker.Due(step) {
			out := l.Checker.Check(ctx, task.SystemMsg, task.Instruction, task.Goal, l.Memory.Snapshot())
			last := len(transcript) - 1
			if out.Failed {
				transcript[last].Flags = append(transcript[last].Flags, memory.FlagVerifierFailed)
			} else if out.Inconclusive {
				transcript[last].Flags = append(transcript[last].Flags, memory.FlagVerifierInconclusive)
			}
			if out.Verdict == verify.VerdictTerminate {
				rec.Status = StatusEarlyExit
				l.Tracer.EndStep(span, StatusEarlyExit, time.Since(stepStart).Milliseconds())
				l.Logger.Printf("task %s: early exit at step %d", task.ID, step)
				break
			}
		} else {
			l.Tracer.RecordSkipped(span, "verifier", "not due")
		}

		l.Tracer.EndStep(span, "ok", time.Since(stepStart).Milliseconds())
	}

	if rec.Status == StatusRunning {
		rec.Status = StatusTruncated
	}

	snap := l.Memory.Snapshot()
	rec.Summary = snap.Summary
	rec.Turns = transcript
	rec.FinishedAt = time.Now().UTC()

	l.Tracer.CompleteTrace(trace, observability.CompleteOptions{
		Status:            rec.Status,
		Steps:             rec.Steps,
		Reward:            rec.Reward,
		TotalOutputTokens: tokens,
	})
	return rec, runErr
}

type stepTurn struct {
	memory.Turn
	tokens int
}

// step runs one actor/environment exchange and returns the recorded
// turn. A parse failure degrades to a flagged no-op action; a backend or
// environment error ends the episode.
func (l *Loop) step(ctx context.Context, span observability.SpanContext, step int, task envs.Task) (stepTurn, envs.StepResult, error) {
	actStart := time.Now()
	out, err := l.Actor.Act(ctx, role.Context{
		SystemMsg:   task.SystemMsg,
		Instruction: task.Instruction,
		Examples:    task.Examples,
		Goal:        task.Goal,
		InitObs:     task.InitObs,
		History:     l.Memory.RenderContext(),
		Commands:    task.Commands,
	})

	turn := stepTurn{Turn: memory.Turn{Step: step, Thought: out.Thought, Action: out.Action}, tokens: out.Tokens}

	status := "completed"
	if err != nil {
		status = "error"
	}
	l.Tracer.RecordGeneration(span, observability.GenerationInput{
		Role:         "actor",
		Model:        l.Backend,
		Input:        task.Goal,
		Output:       out.Raw,
		OutputTokens: out.Tokens,
		Status:       status,
		DurationMs:   time.Since(actStart).Milliseconds(),
	})

	switch {
	case err == nil:
	case role.IsParseError(err):
		turn.Flags = append(turn.Flags, memory.FlagParseError)
	default:
		turn.Observation = "backend unavailable"
		turn.Flags = append(turn.Flags, memory.FlagStepFailed)
		return turn, envs.StepResult{}, err
	}

	action := out.Action
	if l.Pipeline != nil && !role.IsParseError(err) {
		final := l.Pipeline.Process(ctx, l.pipelineHistory(task), action)
		if final.Valid() {
			action = toolcall.Render(final.Calls)
		} else {
			turn.Flags = append(turn.Flags, memory.FlagUnrepaired)
		}
		turn.Action = action
	}

	res, envErr := l.Env.Step(ctx, action)
	if envErr != nil {
		turn.Observation = "environment error"
		turn.Flags = append(turn.Flags, memory.FlagStepFailed)
		return turn, envs.StepResult{}, fmt.Errorf("environment step: %w", envErr)
	}
	turn.Observation = res.Observation
	turn.Reward = res.Reward
	return turn, res, nil
}

// pipelineHistory flattens the transcript for the selector: the task as
// the user message, then recent actions and observations.
func (l *Loop) pipelineHistory(task envs.Task) []backend.Message {
	msgs := []backend.Message{{Role: "user", Content: task.Goal}}
	for _, t := range l.Memory.Snapshot().Turns {
		msgs = append(msgs,
			backend.Message{Role: "assistant", Content: t.Action},
			backend.Message{Role: "user", Content: "[Tool Execution Result]\n" + t.Observation},
		)
	}
	return msgs
}

func errorTag(err error) string {
	switch {
	case backend.IsTransport(err):
		return TagTransport
	case backend.IsModel(err):
		return TagModel
	default:
		return TagEnvironment
	}
}
