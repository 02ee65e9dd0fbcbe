// Package verify decides whether an episode should stop early. It wraps
// the verifier role with cadence control and the strict/modest policy for
// ambiguous answers.
package verify

import (
	"context"
	"log"

	"github.com/andywolf/agentbench/internal/config"
	"github.com/andywolf/agentbench/internal/memory"
	"github.com/andywolf/agentbench/internal/role"
)

// Verdict is the outcome of one verification checkpoint.
type Verdict string

const (
	VerdictContinue     Verdict = "continue"
	VerdictTerminate    Verdict = "terminate"
	VerdictInconclusive Verdict = "inconclusive"
)

// Assessor is the verifier role seen by the checker. *role.Verifier
// satisfies it.
type Assessor interface {
	Assess(ctx context.Context, sysMsg, instruction, goal, history string) (role.Assessment, error)
}

// Checker runs the early-exit verifier on a fixed step cadence and maps
// its answers to verdicts. Strict format treats an ambiguous answer as
// terminate; modest treats it as continue.
type Checker struct {
	assessor Assessor
	format   string
	every    int
	logger   *log.Logger
}

func NewChecker(a Assessor, format string, every int, logger *log.Logger) *Checker {
	if format == "" {
		format = config.FormatStrict
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[verify] ", log.LstdFlags)
	}
	return &Checker{assessor: a, format: format, every: every, logger: logger}
}

// Due reports whether step is a verification checkpoint. Steps count
// from 1; a non-positive cadence disables verification entirely.
func (c *Checker) Due(step int) bool {
	return c.every > 0 && step%c.every == 0
}

// Outcome is one checkpoint result: the final verdict plus how it was
// reached, so the caller can record a failed or ambiguous check on the
// turn instead of losing it to the log.
type Outcome struct {
	Verdict      Verdict
	Failed       bool // verifier call failed; verdict forced to continue
	Inconclusive bool // no YES/NO signal; the format policy set the verdict
}

// Check runs one checkpoint against a memory snapshot. The snapshot is
// read-only; a verdict never mutates episode state here. A backend
// failure returns continue with Failed set, so an unreachable verifier
// cannot kill an otherwise healthy episode.
func (c *Checker) Check(ctx context.Context, sysMsg, instruction, goal string, snap memory.State) Outcome {
	a, err := c.assessor.Assess(ctx, sysMsg, instruction, goal, snap.Render())
	if err != nil {
		c.logger.Printf("verifier call failed, continuing: %v", err)
		return Outcome{Verdict: VerdictContinue, Failed: true}
	}
	v := Classify(a)
	if v == VerdictInconclusive {
		c.logger.Printf("ambiguous verifier answer under %s format: %.80q", c.format, a.Raw)
		return Outcome{Verdict: c.resolveInconclusive(), Inconclusive: true}
	}
	return Outcome{Verdict: v}
}

// Classify maps an assessment to its raw verdict. An answer with no
// YES/NO signal is inconclusive; the format policy decides what that
// means.
func Classify(a role.Assessment) Verdict {
	switch {
	case !a.SignalFound:
		return VerdictInconclusive
	case a.ShouldStop:
		return VerdictTerminate
	default:
		return VerdictContinue
	}
}

func (c *Checker) resolveInconclusive() Verdict {
	if c.format == config.FormatStrict {
		return VerdictTerminate
	}
	return VerdictContinue
}
