package role

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/andywolf/agentbench/internal/backend"
)

const (
	editorMaxTokens = 64
	editorMaxChars  = 10000
)

const editorSystem = `You are a strict tool-call format auditor and repairer.

Your task:
Repair or validate a broken tool-call and output a final call that strictly follows TOOL_CALL_FORMAT.

Rules:
1.	If the tool-call is already valid and correct, output UNCHANGED.
2.	If the tool-call is textual explanations, output NO_VALID_TOOL_CALLS.
3.	If the tool-call contains both explanations and tool-calls, remove the explanations and correct the tool-calls.
4.	If the tool-call does not conform to TOOL_CALL_FORMAT, repair any format or schema errors and output the corrected tool-call only; do not invent functions or parameters.

TOOL_CALL_FORMAT:
[func_name1(param_name1=param_value1, param_name2=param_value2, ...), func_name2(param_name3=param_value3, ...)]

examples:
BROKEN_TOOL_CALL 1:
[cd(folder="academic_venture")]
Output 1:
UNCHANGED

BROKEN_TOOL_CALL 2:
` + "```cd(folder=\"academic_venture\")```" + `
Output 2:
[cd(folder="academic_venture")]

BROKEN_TOOL_CALL 3:
{"cd": {"folder": "academic_venture"}}
Output 3:
[cd(folder="academic_venture")]

BROKEN_TOOL_CALL 4:
The task is now complete.
Output 4:
NO_VALID_TOOL_CALLS

BROKEN_TOOL_CALL 5:
The task is now complete. The final tool-call is {"ls": {}}
Output 5:
[ls()]`

// EditResult is the auditor's answer for one raw tool-call string.
type EditResult struct {
	Output    string // the call to use downstream
	Unchanged bool   // auditor confirmed the input as-is
	NoValid   bool   // auditor found no tool call in the input
	Tokens    int
}

// Editor audits a raw tool-call string and repairs format drift into the
// bracket-call grammar.
type Editor struct {
	backend       backend.Client
	contextLength int
	logger        *log.Logger
}

func NewEditor(b backend.Client, contextLength int, logger *log.Logger) *Editor {
	if logger == nil {
		logger = log.New(log.Writer(), "[editor] ", log.LstdFlags)
	}
	return &Editor{backend: b, contextLength: contextLength, logger: logger}
}

// Repair submits raw to the auditor. UNCHANGED and NO_VALID_TOOL_CALLS
// sentinels return the original string with the matching flag set; any
// other answer replaces it. A backend error propagates so the caller can
// decide between pass-through and abort.
func (e *Editor) Repair(ctx context.Context, raw string) (EditResult, error) {
	trimmed, err := e.fit(ctx, raw)
	if err != nil {
		return EditResult{}, err
	}

	out, err := e.backend.Complete(ctx, backend.Request{
		Messages:  e.buildMessages(trimmed),
		MaxTokens: editorMaxTokens,
	})
	if err != nil {
		return EditResult{}, err
	}

	text := out.Text
	switch {
	case strings.Contains(text, "NO_VALID_TOOL_CALLS"):
		return EditResult{Output: raw, NoValid: true, Tokens: out.CompletionTokens}, nil
	case strings.Contains(text, "UNCHANGED"):
		return EditResult{Output: raw, Unchanged: true, Tokens: out.CompletionTokens}, nil
	}
	return EditResult{Output: strings.TrimSpace(text), Tokens: out.CompletionTokens}, nil
}

// fit drops trailing lines of the raw call until the auditor prompt fits
// the context window; a single overlong line is hard-capped instead.
func (e *Editor) fit(ctx context.Context, raw string) (string, error) {
	for {
		if strings.Count(raw, "\n") == 0 {
			if len(raw) > editorMaxChars {
				raw = raw[:editorMaxChars]
			}
			return raw, nil
		}
		if e.contextLength <= 0 {
			return raw, nil
		}
		n, err := e.backend.CountTokens(ctx, e.buildMessages(raw))
		if err != nil || n <= e.contextLength {
			return raw, nil
		}
		lines := strings.Split(raw, "\n")
		raw = strings.Join(lines[:len(lines)-1], "\n")
		e.logger.Printf("auditor prompt over context (%d tokens), dropping trailing line", n)
	}
}

func (e *Editor) buildMessages(raw string) []backend.Message {
	user := fmt.Sprintf("BROKEN_TOOL_CALL (to be audited and possibly corrected):\n%s\n\n"+
		"Now produce the final output according to the rules above. No explanations, markdown, or extra text.\n\nOutput:\n", raw)
	return []backend.Message{
		{Role: "system", Content: editorSystem},
		{Role: "user", Content: user},
	}
}
