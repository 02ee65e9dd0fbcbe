package verify

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/andywolf/agentbench/internal/memory"
	"github.com/andywolf/agentbench/internal/role"
)

// fakeAssessor replays one scripted assessment per call.
type fakeAssessor struct {
	answers []role.Assessment
	err     error
	calls   int
	seen    []string // history strings received
}

func (f *fakeAssessor) Assess(_ context.Context, _, _, _, history string) (role.Assessment, error) {
	f.calls++
	f.seen = append(f.seen, history)
	if f.err != nil {
		return role.Assessment{}, f.err
	}
	i := f.calls - 1
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return f.answers[i], nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestDue(t *testing.T) {
	c := NewChecker(nil, "strict", 5, testLogger())
	for step, want := range map[int]bool{1: false, 4: false, 5: true, 10: true, 12: false} {
		if got := c.Due(step); got != want {
			t.Errorf("Due(%d) = %v, want %v", step, got, want)
		}
	}
	disabled := NewChecker(nil, "strict", 0, testLogger())
	if disabled.Due(5) {
		t.Error("cadence 0 should disable verification")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		a    role.Assessment
		want Verdict
	}{
		{"stop", role.Assessment{SignalFound: true, ShouldStop: true}, VerdictTerminate},
		{"go on", role.Assessment{SignalFound: true}, VerdictContinue},
		{"no signal", role.Assessment{Raw: "unclear"}, VerdictInconclusive},
	}
	for _, tt := range tests {
		if got := Classify(tt.a); got != tt.want {
			t.Errorf("%s: Classify = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestCheckAmbiguityPolicy(t *testing.T) {
	ambiguous := role.Assessment{Raw: "hard to say"}
	snap := memory.State{}

	strict := NewChecker(&fakeAssessor{answers: []role.Assessment{ambiguous}}, "strict", 5, testLogger())
	if got := strict.Check(context.Background(), "", "i", "g", snap); got.Verdict != VerdictTerminate || !got.Inconclusive {
		t.Fatalf("strict ambiguous = %+v, want terminate with Inconclusive set", got)
	}

	modest := NewChecker(&fakeAssessor{answers: []role.Assessment{ambiguous}}, "modest", 5, testLogger())
	if got := modest.Check(context.Background(), "", "i", "g", snap); got.Verdict != VerdictContinue || !got.Inconclusive {
		t.Fatalf("modest ambiguous = %+v, want continue with Inconclusive set", got)
	}
}

func TestCheckBackendFailureContinues(t *testing.T) {
	c := NewChecker(&fakeAssessor{err: fmt.Errorf("unreachable")}, "strict", 5, testLogger())
	got := c.Check(context.Background(), "", "i", "g", memory.State{})
	if got.Verdict != VerdictContinue || !got.Failed {
		t.Fatalf("outcome on backend failure = %+v, want continue with Failed set", got)
	}
	if got.Inconclusive {
		t.Fatal("a failed call is not an inconclusive answer")
	}
}

func TestCheckDeterministicUnderFixedInput(t *testing.T) {
	fake := &fakeAssessor{answers: []role.Assessment{{SignalFound: true, ShouldStop: true}}}
	c := NewChecker(fake, "strict", 5, testLogger())

	snap := memory.State{
		Summary: "explored the kitchen",
		Turns:   []memory.Turn{{Step: 1, Action: "look", Observation: "a table"}},
	}
	first := c.Check(context.Background(), "sys", "instr", "goal", snap)
	second := c.Check(context.Background(), "sys", "instr", "goal", snap)
	if first != second {
		t.Fatalf("outcomes differ under identical input: %+v vs %+v", first, second)
	}
	if fake.seen[0] != fake.seen[1] {
		t.Fatal("rendered history differs under identical snapshot")
	}
}

func TestReplayExitsAtFirstTerminalCheckpoint(t *testing.T) {
	no := role.Assessment{SignalFound: true}
	yes := role.Assessment{SignalFound: true, ShouldStop: true}
	fake := &fakeAssessor{answers: []role.Assessment{no, no, yes}}
	c := NewChecker(fake, "strict", 5, testLogger())

	turns := make([]memory.Turn, 30)
	for i := range turns {
		turns[i] = memory.Turn{Step: i + 1, Action: fmt.Sprintf("act %d", i+1), Observation: "obs"}
	}
	res := c.Replay(context.Background(), "", "i", "g", turns, 12)
	if res.ExitStep != 15 {
		t.Fatalf("exit step = %d, want 15", res.ExitStep)
	}
	if res.Checks != 3 {
		t.Fatalf("checks = %d, want 3 (steps 5, 10, 15)", res.Checks)
	}
}

func TestReplayNoExit(t *testing.T) {
	no := role.Assessment{SignalFound: true}
	c := NewChecker(&fakeAssessor{answers: []role.Assessment{no}}, "modest", 10, testLogger())

	turns := make([]memory.Turn, 25)
	for i := range turns {
		turns[i] = memory.Turn{Step: i + 1, Action: "act", Observation: "obs"}
	}
	res := c.Replay(context.Background(), "", "i", "g", turns, 0)
	if res.ExitStep != 0 || res.Checks != 2 {
		t.Fatalf("got exit=%d checks=%d, want exit=0 checks=2", res.ExitStep, res.Checks)
	}
}
