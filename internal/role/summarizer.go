package role

import (
	"context"
	"fmt"
	"strings"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/memory"
)

const summarizerSystem = `You are a memory updater.
Update the memory_str to reflect what the agent has done and learned so far.
Include important actions taken, locations visited, and key observations.
Keep the summary concise, chronological, and consistent.
Do not invent new facts or omit relevant past actions.
Write the memory in third-person, concise past tense, like a mission log.`

// Summarizer folds interaction turns into the rolling mission log.
// It satisfies memory.Summarizer.
type Summarizer struct {
	backend backend.Client
}

func NewSummarizer(b backend.Client) *Summarizer {
	return &Summarizer{backend: b}
}

// Summarize asks the backend to rewrite the prior summary to include the
// folded turns. The response is used verbatim after trimming.
func (s *Summarizer) Summarize(ctx context.Context, prior string, folded []memory.Turn) (string, error) {
	if prior == "" {
		prior = "(empty)"
	}

	var steps strings.Builder
	for _, t := range folded {
		if t.Thought != "" {
			fmt.Fprintf(&steps, "Thought: %s\n", t.Thought)
		}
		fmt.Fprintf(&steps, "Action: %s\nObservation: %s\n", t.Action, t.Observation)
	}

	user := fmt.Sprintf("Memory_str: %s\nRecent_steps: %s\n\n"+
		"Please output the updated Memory_str only, a short narrative summary of what has been done and observed so far.\n"+
		"No explanations or formatting other than plain text.\n"+
		"Memory_str: ", prior, steps.String())

	out, err := s.backend.Complete(ctx, backend.Request{
		Messages: []backend.Message{
			{Role: "system", Content: summarizerSystem},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(out.Text)
	if summary == "" {
		return "", &ParseError{Role: "summarizer", Raw: out.Text, Reason: "empty summary"}
	}
	return summary, nil
}
