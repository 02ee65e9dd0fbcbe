package role

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/andywolf/agentbench/internal/backend"
)

// fakeClient replays scripted completions and records every request.
type fakeClient struct {
	replies  []string
	err      error
	tokens   []int // CountTokens answers, replayed in order; last repeats
	requests []backend.Request
	counts   int
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req backend.Request) (backend.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return backend.Completion{}, f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return backend.Completion{Text: f.replies[i], CompletionTokens: 7}, nil
}

func (f *fakeClient) CountTokens(_ context.Context, _ []backend.Message) (int, error) {
	i := f.counts
	f.counts++
	if i >= len(f.tokens) {
		i = len(f.tokens) - 1
	}
	if i < 0 {
		return 10, nil
	}
	return f.tokens[i], nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestExtractThoughtAction(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantOK     bool
		wantAction string
	}{
		{
			name:       "plain react",
			response:   "Thought: the fridge may hold the apple\nAction: go to fridge 1",
			wantOK:     true,
			wantAction: "go to fridge 1",
		},
		{
			name:       "multiline action keeps first line",
			response:   "Thought: ok\nAction: open fridge 1\nthen look inside",
			wantOK:     true,
			wantAction: "open fridge 1",
		},
		{
			name:       "prose action prefix",
			response:   "Thought: hmm\nAction: the best action is to take apple 1",
			wantOK:     true,
			wantAction: "take apple 1",
		},
		{
			name:     "no action line",
			response: "I think I should look around first.",
			wantOK:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, action, ok := extractThoughtAction(tt.response)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && action != tt.wantAction {
				t.Fatalf("action = %q, want %q", action, tt.wantAction)
			}
		})
	}
}

func TestActorRetriesUnparseableOutput(t *testing.T) {
	fake := &fakeClient{replies: []string{
		"no structure here",
		"still nothing",
		"Thought: got it\nAction: look",
	}}
	actor := NewActor(fake, testLogger())

	step, err := actor.Act(context.Background(), Context{Goal: "find the apple"})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if len(fake.requests) != 3 {
		t.Fatalf("backend calls = %d, want 3", len(fake.requests))
	}
	if step.Action != "look" {
		t.Fatalf("action = %q, want %q", step.Action, "look")
	}
}

func TestActorParseErrorAfterBudget(t *testing.T) {
	fake := &fakeClient{replies: []string{"garbage"}}
	actor := NewActor(fake, testLogger())

	step, err := actor.Act(context.Background(), Context{Goal: "g"})
	if !IsParseError(err) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if len(fake.requests) != 3 {
		t.Fatalf("backend calls = %d, want 3", len(fake.requests))
	}
	if step.Action != NoAction {
		t.Fatalf("action = %q, want %q", step.Action, NoAction)
	}
}

func TestActorBackendErrorNotRetried(t *testing.T) {
	fake := &fakeClient{err: fmt.Errorf("connection refused")}
	actor := NewActor(fake, testLogger())

	_, err := actor.Act(context.Background(), Context{Goal: "g"})
	if err == nil || IsParseError(err) {
		t.Fatalf("err = %v, want backend error", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(fake.requests))
	}
}

func TestActorPromptIncludesContext(t *testing.T) {
	fake := &fakeClient{replies: []string{"Thought: t\nAction: a"}}
	actor := NewActor(fake, testLogger())

	_, err := actor.Act(context.Background(), Context{
		Instruction: "Interact with the household.",
		Goal:        "put the apple in the fridge",
		InitObs:     "You are in the kitchen.",
		History:     "Action: look\nObservation: nothing here\n",
		Commands:    "Admissible commands: go, take, put",
	})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	user := fake.requests[0].Messages[1].Content
	for _, want := range []string{
		"put the apple in the fridge",
		"You are in the kitchen.",
		"Observation: nothing here",
		"Admissible commands",
		"Thought: <your thoughts>",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantStop  bool
		wantFound bool
	}{
		{"plain yes", "YES, the task is complete.", true, true},
		{"plain no", "NO. The agent is still making progress.", false, true},
		{"fenced yes", "```\nYES\n```", true, true},
		{"yes after no", "NO progress recently... actually YES, stop.", true, true},
		{"ambiguous", "The agent might be done, hard to say.", false, false},
		{"lowercase not a signal", "yes it could stop", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := parseAssessment(tt.text, 0)
			if a.ShouldStop != tt.wantStop || a.SignalFound != tt.wantFound {
				t.Fatalf("got stop=%v found=%v, want stop=%v found=%v",
					a.ShouldStop, a.SignalFound, tt.wantStop, tt.wantFound)
			}
		})
	}
}

func TestVerifierPromptSelectsRules(t *testing.T) {
	for _, tt := range []struct {
		format string
		want   string
	}{
		{"strict", "stuck in a loop"},
		{"modest", "good reason to believe"},
	} {
		fake := &fakeClient{replies: []string{"NO"}}
		v := NewVerifier(fake, tt.format)
		if _, err := v.Assess(context.Background(), "", "instr", "goal", "hist"); err != nil {
			t.Fatalf("%s: Assess: %v", tt.format, err)
		}
		user := fake.requests[0].Messages[1].Content
		if !strings.Contains(user, tt.want) {
			t.Errorf("%s prompt missing %q", tt.format, tt.want)
		}
	}
}

func TestSummarizerPrompt(t *testing.T) {
	fake := &fakeClient{replies: []string{"  The agent explored the kitchen.  "}}
	s := NewSummarizer(fake)

	got, err := s.Summarize(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "The agent explored the kitchen." {
		t.Fatalf("summary = %q", got)
	}
	user := fake.requests[0].Messages[1].Content
	if !strings.Contains(user, "Memory_str: (empty)") {
		t.Errorf("empty prior not rendered as (empty): %q", user)
	}
	if !strings.Contains(fake.requests[0].Messages[0].Content, "memory updater") {
		t.Error("system prompt missing memory updater role")
	}
}

func TestSummarizerEmptyResponse(t *testing.T) {
	fake := &fakeClient{replies: []string{"   "}}
	s := NewSummarizer(fake)
	if _, err := s.Summarize(context.Background(), "prior", nil); !IsParseError(err) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func toolSet(names ...string) []ToolMeta {
	tools := make([]ToolMeta, len(names))
	for i, n := range names {
		tools[i] = ToolMeta{Name: n, Description: n + " desc"}
	}
	return tools
}

func TestSelectorBypassOnSmallCatalog(t *testing.T) {
	fake := &fakeClient{replies: []string{"should not be called"}}
	s := NewSelector(fake, 0, 0, testLogger())

	got, err := s.Select(context.Background(), toolSet("ls", "cd", "pwd"), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 || len(fake.requests) != 0 {
		t.Fatalf("got %v with %d backend calls, want all 3 names and 0 calls", got, len(fake.requests))
	}
}

func TestSelectorFiltersToCatalog(t *testing.T) {
	fake := &fakeClient{replies: []string{"ls, rm, teleport"}}
	s := NewSelector(fake, 0, 0, testLogger())

	got, err := s.Select(context.Background(), toolSet("ls", "cd", "pwd", "rm"), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 || got[0] != "ls" || got[1] != "rm" {
		t.Fatalf("selected = %v, want [ls rm]", got)
	}
}

func TestSelectorCapsAtTopK(t *testing.T) {
	fake := &fakeClient{replies: []string{"a, b, c, d, e, f, g"}}
	s := NewSelector(fake, 0, 5, testLogger())

	got, err := s.Select(context.Background(), toolSet("a", "b", "c", "d", "e", "f", "g"), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != 5 || got[0] != "a" || got[4] != "e" {
		t.Fatalf("selected = %v, want %v", got, want)
	}
}

func TestSelectorBackendFailureKeepsCatalog(t *testing.T) {
	fake := &fakeClient{err: fmt.Errorf("boom")}
	s := NewSelector(fake, 0, 0, testLogger())

	got, err := s.Select(context.Background(), toolSet("a", "b", "c", "d"), nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v; want nil selection and nil error", got, err)
	}
}

func TestSelectorOmitsHistoryToFit(t *testing.T) {
	fake := &fakeClient{
		replies: []string{"a, b, c"},
		tokens:  []int{500, 100}, // first build over budget, second fits
	}
	s := NewSelector(fake, 200, 0, testLogger())

	history := []backend.Message{
		{Role: "user", Content: "do the thing"},
		{Role: "user", Content: "[Tool Execution Result] old result"},
		{Role: "user", Content: "[Tool Execution Result] newer result"},
	}
	if _, err := s.Select(context.Background(), toolSet("a", "b", "c", "d"), history); err != nil {
		t.Fatalf("Select: %v", err)
	}
	user := fake.requests[0].Messages[1].Content
	if strings.Contains(user, "old result") {
		t.Error("oldest tool result should have been omitted")
	}
	if !strings.Contains(user, "newer result") {
		t.Error("newer tool result should survive omission")
	}
}

func TestEditorSentinels(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		raw           string
		wantOutput    string
		wantUnchanged bool
		wantNoValid   bool
	}{
		{"unchanged", "UNCHANGED", `[ls()]`, `[ls()]`, true, false},
		{"no valid", "NO_VALID_TOOL_CALLS", "task done", "task done", false, true},
		{"repaired", `[cd(folder="x")]`, "```cd(folder=\"x\")```", `[cd(folder="x")]`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClient{replies: []string{tt.reply}}
			e := NewEditor(fake, 0, testLogger())

			got, err := e.Repair(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("Repair: %v", err)
			}
			if got.Output != tt.wantOutput || got.Unchanged != tt.wantUnchanged || got.NoValid != tt.wantNoValid {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestEditorTrimsOversizedCall(t *testing.T) {
	fake := &fakeClient{
		replies: []string{"UNCHANGED"},
		tokens:  []int{900, 50},
	}
	e := NewEditor(fake, 100, testLogger())

	raw := "[ls()]\nline two\nline three"
	if _, err := e.Repair(context.Background(), raw); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	user := fake.requests[0].Messages[1].Content
	if strings.Contains(user, "line three") {
		t.Error("trailing line should have been dropped to fit the context")
	}
}
