package verify

import (
	"context"

	"github.com/andywolf/agentbench/internal/memory"
)

// ReplayResult reports where a recorded trajectory would have exited.
type ReplayResult struct {
	ExitStep int // first checkpoint that terminated; 0 when none did
	Checks   int // verification calls made
}

// Replay re-runs verification over a recorded trajectory without calling
// the actor or the environment. Turns are fed in recorded order and each
// checkpoint sees a sliding window of the most recent turns, sized like
// the live memory bound. The replay stops at the first terminal verdict.
func (c *Checker) Replay(ctx context.Context, sysMsg, instruction, goal string, turns []memory.Turn, window int) ReplayResult {
	if window < 1 {
		window = len(turns)
	}
	var res ReplayResult
	for i, t := range turns {
		step := t.Step
		if step == 0 {
			step = i + 1
		}
		if !c.Due(step) {
			continue
		}
		lo := i + 1 - window
		if lo < 0 {
			lo = 0
		}
		snap := memory.State{Turns: turns[lo : i+1]}
		res.Checks++
		if c.Check(ctx, sysMsg, instruction, goal, snap).Verdict == VerdictTerminate {
			res.ExitStep = step
			return res
		}
	}
	return res
}
