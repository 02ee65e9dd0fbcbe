package role

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/andywolf/agentbench/internal/backend"
)

const actorAttempts = 3

// NoAction is the action reported when no reattempt produced a parseable
// step. Callers record it as a no-op turn rather than failing the episode.
const NoAction = "[No Action Found]"

// Context carries everything the actor needs to build one step prompt.
type Context struct {
	SystemMsg   string
	Instruction string
	Examples    []string
	Goal        string
	InitObs     string
	History     string // rendered memory: summary plus recent turns
	Commands    string // environment's admissible commands, optional
}

// Step is one parsed actor response.
type Step struct {
	Thought string
	Action  string
	Raw     string
	Tokens  int
}

// Actor drives the main agent: it renders the step prompt, calls the
// backend, and extracts the Thought/Action pair.
type Actor struct {
	backend backend.Client
	logger  *log.Logger
}

func NewActor(b backend.Client, logger *log.Logger) *Actor {
	if logger == nil {
		logger = log.New(log.Writer(), "[actor] ", log.LstdFlags)
	}
	return &Actor{backend: b, logger: logger}
}

var reactPattern = regexp.MustCompile(`(?s)\s*Thought:\s*(.*?)\s*Action:\s*(.*)`)

// Act runs one actor step. Parse failures are retried up to three times
// within the call; a backend error aborts immediately. When every attempt
// fails to parse, the returned error is a *ParseError carrying the last
// raw response and Step.Action is NoAction.
func (a *Actor) Act(ctx context.Context, c Context) (Step, error) {
	req := backend.Request{Messages: a.buildMessages(c)}

	var last Step
	for attempt := 1; attempt <= actorAttempts; attempt++ {
		out, err := a.backend.Complete(ctx, req)
		if err != nil {
			return Step{}, err
		}
		thought, action, ok := extractThoughtAction(out.Text)
		last = Step{Thought: thought, Action: action, Raw: out.Text, Tokens: out.CompletionTokens}
		if ok {
			return last, nil
		}
		a.logger.Printf("unparseable response (attempt %d/%d): %.100q", attempt, actorAttempts, out.Text)
	}
	last.Action = NoAction
	return last, &ParseError{Role: "actor", Raw: last.Raw, Reason: "no Thought/Action pair found"}
}

func (a *Actor) buildMessages(c Context) []backend.Message {
	sys := c.SystemMsg
	if sys == "" {
		sys = "You are a helpful assistant."
	}

	var b strings.Builder
	b.WriteString(c.Instruction)
	b.WriteString("\nThe past actions and observations have been summarized in the memory, which provides you with the essential context of what has happened so far.\n\n")
	for _, ex := range c.Examples {
		b.WriteString(ex)
		b.WriteString("\n")
	}
	b.WriteString("\nNow, it's your turn. You should perform thoughts and actions to accomplish the goal, guided by the memory that summarizes past actions and observations to provide essential context. Your response should use the following format:\n\n")
	b.WriteString("Thought: <your thoughts>\nAction: <your next action>\n\n")
	fmt.Fprintf(&b, "Your task is: %s\n", c.Goal)
	if c.InitObs != "" {
		b.WriteString(c.InitObs)
		b.WriteString("\n")
	}
	if c.History != "" {
		b.WriteString("\n")
		b.WriteString(c.History)
	}
	if c.Commands != "" {
		b.WriteString("\n")
		b.WriteString(c.Commands)
		b.WriteString("\n")
	}

	return []backend.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: b.String()},
	}
}

// extractThoughtAction pulls the Thought/Action pair out of a response.
// The action is normalized to its first line with prose prefixes like
// "the action is to ..." stripped.
func extractThoughtAction(response string) (thought, action string, ok bool) {
	m := reactPattern.FindStringSubmatch(response)
	if m == nil {
		return "", NoAction, false
	}
	thought = strings.TrimSpace(m[1])
	action = normalizeAction(strings.TrimSpace(m[2]))
	if action == "" {
		return thought, NoAction, false
	}
	return thought, action, true
}

func normalizeAction(full string) string {
	action := firstLine(full)
	if strings.Contains(strings.ToLower(action), "action") {
		for _, line := range strings.Split(full, "\n") {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "action") && strings.Contains(line, ":") {
				if rest := strings.TrimSpace(strings.SplitN(line, ":", 2)[1]); rest != "" {
					action = rest
					break
				}
			}
			if strings.Contains(lower, "action") && strings.Contains(line, "is to") {
				if rest := strings.TrimSpace(line[strings.Index(line, "is to")+len("is to"):]); rest != "" {
					action = rest
					break
				}
			}
		}
	}
	action = strings.Trim(strings.TrimSpace(action), "'/")
	return firstLine(action)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
