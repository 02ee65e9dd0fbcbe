package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Manager holds one episode's history under a hard size bound: the number
// of raw turns plus one slot for the summary (when non-empty) never exceeds
// storedMemoryMax after a Record returns.
type Manager struct {
	max        int
	updateNum  int
	summarizer Summarizer
	logger     *log.Logger

	summary string
	turns   []Turn
	folds   int
}

// NewManager builds a manager with the given bounds. storedMemoryMax must be
// positive and updateNum must be in [1, storedMemoryMax]; config validation
// enforces this upstream, so violations here panic.
func NewManager(storedMemoryMax, updateNum int, s Summarizer, logger *log.Logger) *Manager {
	if storedMemoryMax < 1 || updateNum < 1 || updateNum > storedMemoryMax {
		panic(fmt.Sprintf("memory: invalid bounds max=%d update=%d", storedMemoryMax, updateNum))
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[memory] ", log.LstdFlags)
	}
	return &Manager{
		max:        storedMemoryMax,
		updateNum:  updateNum,
		summarizer: s,
		logger:     logger,
	}
}

// Record appends a turn and folds the oldest turns into the summary when
// the raw count reaches the bound. A summarizer failure degrades to
// dropping the oldest retained turn after the first; it never fails the
// episode.
func (m *Manager) Record(ctx context.Context, t Turn) {
	m.turns = append(m.turns, t)
	if len(m.turns) < m.max {
		return
	}
	if err := m.fold(ctx); err != nil {
		m.logger.Printf("summarize failed, truncating oldest turn: %v", err)
		m.truncate()
	}
}

// Fold runs one summarization cycle immediately. It is a no-op when fewer
// than updateNum raw turns are retained, so repeated calls on a quiescent
// state leave the summary unchanged.
func (m *Manager) Fold(ctx context.Context) error {
	if len(m.turns) < m.updateNum {
		return nil
	}
	return m.fold(ctx)
}

func (m *Manager) fold(ctx context.Context) error {
	if m.summarizer == nil {
		return fmt.Errorf("no summarizer configured")
	}
	folded := m.turns[:m.updateNum]
	summary, err := m.summarizer.Summarize(ctx, m.summary, folded)
	if err != nil {
		return err
	}
	m.summary = strings.TrimSpace(summary)
	rest := m.turns[m.updateNum:]
	m.turns = append([]Turn(nil), rest...)
	m.folds++
	return nil
}

// truncate drops the oldest retained turn after the first, keeping the
// initial observation anchored. With a single turn retained it drops that
// turn instead.
func (m *Manager) truncate() {
	if len(m.turns) == 0 {
		return
	}
	last := len(m.turns) - 1
	m.turns[last].Flags = append(m.turns[last].Flags, FlagSummarizeFailed)
	if len(m.turns) == 1 {
		m.turns = nil
		return
	}
	m.turns = append(m.turns[:1:1], m.turns[2:]...)
}

// Snapshot returns a copy of the current state. Mutating the returned
// slice does not affect the manager.
func (m *Manager) Snapshot() State {
	return State{
		Summary: m.summary,
		Turns:   append([]Turn(nil), m.turns...),
	}
}

// Folds reports how many summarization cycles have completed.
func (m *Manager) Folds() int { return m.folds }

// Size reports the occupied slots: raw turns plus one when a summary is
// present.
func (m *Manager) Size() int {
	n := len(m.turns)
	if m.summary != "" {
		n++
	}
	return n
}

// RenderContext formats the state for prompt construction. The output is a
// pure function of the state: same summary and turns, same string.
func (m *Manager) RenderContext() string {
	return m.Snapshot().Render()
}

// Render formats a snapshot the same way the live manager does.
func (s State) Render() string {
	var b strings.Builder
	if s.Summary != "" {
		b.WriteString("Summary of earlier steps:\n")
		b.WriteString(s.Summary)
		b.WriteString("\n\n")
	}
	for _, t := range s.Turns {
		if t.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", t.Thought)
		}
		fmt.Fprintf(&b, "Action: %s\nObservation: %s\n", t.Action, t.Observation)
	}
	return b.String()
}
