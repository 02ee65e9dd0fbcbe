package toolcall

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/role"
)

type fakeSelector struct {
	rounds [][]string // selection per call; last repeats
	calls  int
}

func (f *fakeSelector) Select(_ context.Context, _ []role.ToolMeta, _ []backend.Message) ([]string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.rounds) {
		i = len(f.rounds) - 1
	}
	return f.rounds[i], nil
}

type fakeEditor struct {
	result role.EditResult
	err    error
	calls  int
}

func (f *fakeEditor) Repair(_ context.Context, raw string) (role.EditResult, error) {
	f.calls++
	if f.err != nil {
		return role.EditResult{}, f.err
	}
	if f.result.Unchanged || f.result.NoValid {
		out := f.result
		out.Output = raw
		return out, nil
	}
	return f.result, nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func wideCatalog(t *testing.T, n int) *Catalog {
	t.Helper()
	yaml := "tools:\n"
	for i := 0; i < n; i++ {
		yaml += fmt.Sprintf("  - name: tool%02d\n    description: tool number %d\n", i, i)
	}
	c, err := ParseCatalog([]byte(yaml))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	return c
}

func TestPlainPipelineValidDraft(t *testing.T) {
	p := NewPipeline(testCatalog(t), nil, nil, testLogger())
	got := p.Process(context.Background(), nil, `[cd(folder="docs")]`)
	if !got.Valid() || len(got.Calls) != 1 || got.Calls[0].Name != "cd" {
		t.Fatalf("got %+v", got)
	}
}

func TestPlainPipelineRejectsWithoutEditor(t *testing.T) {
	p := NewPipeline(testCatalog(t), nil, nil, testLogger())
	raw := `[cd()]` // missing required folder
	got := p.Process(context.Background(), nil, raw)
	if got.Valid() {
		t.Fatal("invalid draft must not validate")
	}
	if got.Raw != raw || !got.flagged(FlagUnrepaired) {
		t.Fatalf("got %+v, want raw pass-through with %s", got, FlagUnrepaired)
	}
}

func TestRejectionLogsValidationError(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(testCatalog(t), nil, nil, log.New(&buf, "", 0))

	p.Process(context.Background(), nil, `[cd()]`) // parses, fails schema
	logged := buf.String()
	if strings.Contains(logged, "<nil>") {
		t.Fatalf("rejection logged a nil error: %q", logged)
	}
	if !strings.Contains(logged, "cd") {
		t.Fatalf("rejection log names no tool: %q", logged)
	}
}

func TestEditorRepairsDraft(t *testing.T) {
	editor := &fakeEditor{result: role.EditResult{Output: `[cd(folder="docs")]`}}
	p := NewPipeline(testCatalog(t), nil, editor, testLogger())

	got := p.Process(context.Background(), nil, "```cd(folder=\"docs\")```")
	if !got.Valid() {
		t.Fatalf("got %+v, want valid repaired call", got)
	}
	if !got.flagged(FlagRepaired) {
		t.Fatalf("flags = %v, want %s", got.Flags, FlagRepaired)
	}
	if got.Calls[0].Args["folder"] != "docs" {
		t.Fatalf("calls = %+v", got.Calls)
	}
}

func TestEditorDoubleRejectionPassesThrough(t *testing.T) {
	tests := []struct {
		name   string
		editor *fakeEditor
	}{
		{"no valid call", &fakeEditor{result: role.EditResult{NoValid: true}}},
		{"still broken", &fakeEditor{result: role.EditResult{Output: "garbage"}}},
		{"backend error", &fakeEditor{err: fmt.Errorf("down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(testCatalog(t), nil, tt.editor, testLogger())
			raw := "the task is complete"
			got := p.Process(context.Background(), nil, raw)
			if got.Valid() || got.Raw != raw || !got.flagged(FlagUnrepaired) {
				t.Fatalf("got %+v, want unrepaired pass-through", got)
			}
		})
	}
}

// A repair that fixes the format but still fails schema validation must
// not be forwarded.
func TestRepairFailingSchemaIsRejected(t *testing.T) {
	editor := &fakeEditor{result: role.EditResult{Output: `[cd(wrong="arg")]`}}
	p := NewPipeline(testCatalog(t), nil, editor, testLogger())
	got := p.Process(context.Background(), nil, "broken")
	if got.Valid() || !got.flagged(FlagUnrepaired) {
		t.Fatalf("got %+v", got)
	}
}

func TestSelectorNarrowsCatalog(t *testing.T) {
	catalog := wideCatalog(t, 20)
	sel := &fakeSelector{rounds: [][]string{{"tool00", "tool01", "tool02", "tool03", "tool04"}}}
	p := NewPipeline(catalog, sel, nil, testLogger())

	got := p.Process(context.Background(), nil, `[tool03()]`)
	if !got.Valid() {
		t.Fatalf("got %+v, want valid call inside selection", got)
	}
	if sel.calls != 1 {
		t.Fatalf("selector calls = %d, want 1", sel.calls)
	}
}

func TestOutOfSubsetTriggersReselection(t *testing.T) {
	catalog := wideCatalog(t, 20)
	sel := &fakeSelector{rounds: [][]string{
		{"tool00", "tool01", "tool02", "tool03", "tool04"},
		{"tool00", "tool01", "tool02", "tool03", "tool11"},
	}}
	p := NewPipeline(catalog, sel, nil, testLogger())

	got := p.Process(context.Background(), nil, `[tool11()]`)
	if !got.Valid() {
		t.Fatalf("got %+v, want valid call after reselection", got)
	}
	if sel.calls != 2 {
		t.Fatalf("selector calls = %d, want 2", sel.calls)
	}
	if !got.flagged(FlagReselected) {
		t.Fatalf("flags = %v, want %s", got.Flags, FlagReselected)
	}
}

func TestOutOfCatalogNeverForwarded(t *testing.T) {
	catalog := wideCatalog(t, 20)
	sel := &fakeSelector{rounds: [][]string{{"tool00", "tool01", "tool02", "tool03", "tool04"}}}
	p := NewPipeline(catalog, sel, nil, testLogger())

	got := p.Process(context.Background(), nil, `[teleport()]`)
	if got.Valid() {
		t.Fatal("out-of-catalog call must not validate")
	}
	if sel.calls != 1 {
		t.Fatalf("selector calls = %d, want 1 (no reselection for unknown tool)", sel.calls)
	}
}

// Reselection that still excludes the tool rejects the draft instead of
// forwarding it.
func TestPersistentOutOfSubsetIsRejected(t *testing.T) {
	catalog := wideCatalog(t, 20)
	sel := &fakeSelector{rounds: [][]string{{"tool00", "tool01", "tool02"}}}
	p := NewPipeline(catalog, sel, nil, testLogger())

	got := p.Process(context.Background(), nil, `[tool11()]`)
	if got.Valid() {
		t.Fatal("call outside selection must not be forwarded")
	}
	if !got.flagged(FlagUnrepaired) {
		t.Fatalf("flags = %v, want %s", got.Flags, FlagUnrepaired)
	}
	if sel.calls != 2 {
		t.Fatalf("selector calls = %d, want 2", sel.calls)
	}
}
