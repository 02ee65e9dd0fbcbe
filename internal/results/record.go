// Package results persists episode outcomes as JSONL records. One line
// per episode: terminal status, step count, reward, and the full
// transcript up to the point the episode ended.
package results

import (
	"time"

	"github.com/andywolf/agentbench/internal/memory"
)

// Record is one archived episode. A failed episode still carries the
// complete transcript up to the failure point plus an error tag; a
// record is never partial.
type Record struct {
	RunID      string        `json:"run_id"`
	TaskID     string        `json:"task_id"`
	Status     string        `json:"status"`
	Steps      int           `json:"steps"`
	Reward     float64       `json:"reward"`
	Success    bool          `json:"success"`
	ErrorTag   string        `json:"error_tag,omitempty"`
	Preset     string        `json:"preset,omitempty"`
	Backend    string        `json:"backend,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Turns      []memory.Turn `json:"turns"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration is the episode wall-clock time.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
