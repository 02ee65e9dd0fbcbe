package role

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/config"
)

const verifyStrict = `Evaluate the current history of the agent's actions and determine if it meets any of the following conditions:
	1.	The recent steps show repetitive actions or the agent appears to be stuck in a loop.
	2.	The agent repeatedly checks for valid actions but fails to make meaningful progress toward the objective.
	3.	The agent's recent actions suggest the task is complete and no further steps are necessary.
	4.	The task is no longer achievable due to high difficulty or significant deviation from the expected course.

If any of the above conditions are met, output "YES". Otherwise, output "NO" to indicate the agent should continue exploring.`

const verifyModest = `Evaluate the agent's recent history and consider:
	1.	Whether the agent appears stuck or making little meaningful progress despite repeated attempts.
	2.	Whether the task seems complete or no longer feasible to pursue.

If you have good reason to believe further steps are unlikely to help, you may output "YES" to suggest stopping. Otherwise, output "NO" and continue exploring.`

// Assessment is the verifier's parsed answer for one checkpoint.
type Assessment struct {
	ShouldStop  bool
	SignalFound bool // whether a YES/NO token was present in the output
	Raw         string
	Tokens      int
}

// Verifier asks a backend whether the episode should stop early: stuck,
// complete, or infeasible.
type Verifier struct {
	backend backend.Client
	format  string // config.FormatStrict or config.FormatModest
}

func NewVerifier(b backend.Client, format string) *Verifier {
	if format == "" {
		format = config.FormatStrict
	}
	return &Verifier{backend: b, format: format}
}

// yesNoPattern matches a standalone YES or NO token. A YES anywhere in
// the output wins over NO.
var yesNoPattern = regexp.MustCompile(`\b(YES|NO)\b`)

// markdownFencePattern matches markdown code fences with optional language tag.
var markdownFencePattern = regexp.MustCompile("(?s)```[a-z]*\\n?(.*?)```")

func stripMarkdownFences(s string) string {
	return markdownFencePattern.ReplaceAllString(s, "$1")
}

// Assess runs one verification call. A missing YES/NO token is reported
// via SignalFound=false, not as an error; the caller decides what an
// ambiguous answer means.
func (v *Verifier) Assess(ctx context.Context, sysMsg, instruction, goal, history string) (Assessment, error) {
	prompt := v.buildPrompt(instruction, goal, history)
	sys := sysMsg
	if sys == "" {
		sys = "You are a helpful assistant."
	}
	out, err := v.backend.Complete(ctx, backend.Request{
		Messages: []backend.Message{
			{Role: "system", Content: sys},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Assessment{}, err
	}
	return parseAssessment(out.Text, out.CompletionTokens), nil
}

func parseAssessment(text string, tokens int) Assessment {
	matches := yesNoPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		matches = yesNoPattern.FindAllStringSubmatch(stripMarkdownFences(text), -1)
	}
	if matches == nil {
		return Assessment{Raw: text, Tokens: tokens}
	}
	a := Assessment{SignalFound: true, Raw: text, Tokens: tokens}
	for _, m := range matches {
		if m[1] == "YES" {
			a.ShouldStop = true
			break
		}
	}
	return a
}

func (v *Verifier) buildPrompt(instruction, goal, history string) string {
	rules := verifyStrict
	if v.format == config.FormatModest {
		rules = verifyModest
	}

	var b strings.Builder
	b.WriteString("You will be given a historical scenario in which you are placed in a specific environment with a designated objective to accomplish.\n\n")
	fmt.Fprintf(&b, "### Task Description:\n%s\n\n", instruction)
	fmt.Fprintf(&b, "### Your Objective:\n%s\n\n", goal)
	fmt.Fprintf(&b, "### Your Current History:\n%s\n\n", history)
	fmt.Fprintf(&b, "### Instructions:\n%s\n\n", rules)
	b.WriteString("Include a short explanation in your response.\n")
	return b.String()
}
