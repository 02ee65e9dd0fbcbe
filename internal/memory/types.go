// Package memory maintains the bounded interaction history for one episode:
// a rolling LLM-written summary plus the most recent turns verbatim.
package memory

import "context"

// Turn flags recorded when a step degrades instead of failing the episode.
const (
	// FlagParseError marks a turn whose action is the no-op fallback after
	// the actor's output could not be parsed.
	FlagParseError = "parse_error"

	// FlagUnrepaired marks a turn whose tool call failed schema validation
	// and could not be repaired.
	FlagUnrepaired = "unrepaired"

	// FlagSummarizeFailed marks a turn recorded while the summarizer was
	// unavailable and the truncate-oldest fallback ran.
	FlagSummarizeFailed = "summarize_failed"

	// FlagVerifierFailed marks a checkpoint turn whose verification call
	// failed; the episode continued without a verdict.
	FlagVerifierFailed = "verifier_failed"

	// FlagVerifierInconclusive marks a checkpoint turn whose verifier
	// answer carried no YES/NO signal; the format policy set the verdict.
	FlagVerifierInconclusive = "verifier_inconclusive"

	// FlagStepFailed marks the final turn of an episode that ended on a
	// backend or environment error.
	FlagStepFailed = "step_failed"
)

// Turn is one (observation, action, feedback) triple. Immutable once
// recorded; ordered by step number.
type Turn struct {
	Step        int      `json:"step"`
	Thought     string   `json:"thought,omitempty"`
	Action      string   `json:"action"`
	Observation string   `json:"observation"`
	Reward      float64  `json:"reward,omitempty"`
	Flags       []string `json:"flags,omitempty"`
}

// State is a read-only snapshot of the memory: the rolling summary and the
// raw turns retained verbatim. Verifiers consume snapshots and never mutate
// the live state.
type State struct {
	Summary string
	Turns   []Turn
}

// Summarizer folds older turns plus the prior summary into a new summary.
type Summarizer interface {
	Summarize(ctx context.Context, prior string, folded []Turn) (string, error)
}
