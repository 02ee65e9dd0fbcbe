package role

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/andywolf/agentbench/internal/backend"
)

const (
	selectorMin       = 3  // selection disabled at or below this tool count
	selectorMaxOmit   = 20 // history entries droppable to fit the context window
	selectorMaxTokens = 64
)

const selectorSystem = `You are a tool selector for a function-calling agent.

Task:
Given a user message ([User Message]), the previous tool call ([Tool Call]) and its results ([Tool Execution Result]), you must select a minimum of **3 distinct functions** from the provided list.

Rules:
- Output at least 3 function names, and no more than 10 functions.
- Use ONLY names from the provided function list.
- Output ONLY function names. No explanations or extra text.
- Prioritize the [User Message] above all else; use previous tool calls and results only as supplementary context.`

// ToolMeta is the name/description pair shown to the selector. The full
// parameter schema stays out of the selector prompt.
type ToolMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Selector narrows a large tool catalog down to the few tools relevant
// to the current exchange.
type Selector struct {
	backend       backend.Client
	contextLength int
	topK          int
	logger        *log.Logger
}

// NewSelector builds a selector. topK caps how many tools a selection
// may keep, in catalog order; 0 leaves the selection uncapped.
func NewSelector(b backend.Client, contextLength, topK int, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.New(log.Writer(), "[selector] ", log.LstdFlags)
	}
	return &Selector{backend: b, contextLength: contextLength, topK: topK, logger: logger}
}

// Select returns the names of tools the selector kept, filtered to actual
// catalog membership so a hallucinated name can never pass through, then
// capped at topK. With three or fewer tools the selector is bypassed and
// all names return. A backend failure returns an empty selection and no
// error; the caller falls back to the full catalog.
func (s *Selector) Select(ctx context.Context, tools []ToolMeta, history []backend.Message) ([]string, error) {
	if len(tools) <= selectorMin {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		return names, nil
	}

	msgs, err := s.fitMessages(ctx, tools, history)
	if err != nil {
		return nil, err
	}

	out, err := s.backend.Complete(ctx, backend.Request{
		Messages:  msgs,
		MaxTokens: selectorMaxTokens,
	})
	if err != nil {
		s.logger.Printf("selection failed, keeping full catalog: %v", err)
		return nil, nil
	}

	var selected []string
	for _, t := range tools {
		if strings.Contains(out.Text, t.Name) {
			selected = append(selected, t.Name)
		}
	}
	if s.topK > 0 && len(selected) > s.topK {
		s.logger.Printf("selection kept %d tools, capping at %d", len(selected), s.topK)
		selected = selected[:s.topK]
	}
	return selected, nil
}

// fitMessages builds the selector prompt, dropping the oldest tool
// execution results one at a time until it fits the context window.
func (s *Selector) fitMessages(ctx context.Context, tools []ToolMeta, history []backend.Message) ([]backend.Message, error) {
	for omit := 0; ; omit++ {
		msgs := s.buildMessages(tools, history, omit)
		if s.contextLength <= 0 || omit >= selectorMaxOmit {
			return msgs, nil
		}
		n, err := s.backend.CountTokens(ctx, msgs)
		if err != nil {
			return msgs, nil
		}
		if n <= s.contextLength {
			return msgs, nil
		}
		s.logger.Printf("selector prompt over context (%d tokens), omitting oldest tool result", n)
	}
}

func (s *Selector) buildMessages(tools []ToolMeta, history []backend.Message, omit int) []backend.Message {
	meta, _ := json.MarshalIndent(tools, "", "  ")

	user := fmt.Sprintf("Functions:\n%s\n\n%s\n\nSelected Functions:",
		meta, renderHistory(history, omit))

	return []backend.Message{
		{Role: "system", Content: selectorSystem},
		{Role: "user", Content: user},
	}
}

// renderHistory flattens the exchange for the selector prompt: the user
// message, first lines of assistant tool calls, and tool results. The
// first omit tool results are skipped; every entry is capped at 512 runes.
func renderHistory(history []backend.Message, omit int) string {
	var b strings.Builder
	skipped := 0
	for _, m := range history {
		content := clip(m.Content, 512)
		switch {
		case m.Role == "user" && strings.Contains(content, "[Tool Execution Result]"):
			if skipped < omit {
				skipped++
				continue
			}
			b.WriteString(strings.TrimSpace(content))
			b.WriteString("\n")
		case m.Role == "user":
			b.Reset()
			b.WriteString("[User Message]\n")
			b.WriteString(content)
			b.WriteString("\n\n")
		case m.Role == "assistant":
			b.WriteString("[Tool Call]\n")
			b.WriteString(firstLine(content))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
