package results

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/andywolf/agentbench/internal/memory"
)

func sampleRecord(task, status string, steps int) Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return Record{
		RunID:  "run-1",
		TaskID: task,
		Status: status,
		Steps:  steps,
		Turns: []memory.Turn{
			{Step: 1, Action: "look", Observation: "a room"},
		},
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	want := []Record{
		sampleRecord("alfworld-0", "success", 7),
		sampleRecord("alfworld-1", "early-exit", 15),
	}
	for _, rec := range want {
		if err := sink.Write(rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadRecords(sink.Path())
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d records, want 2", len(got))
	}
	if got[1].Status != "early-exit" || got[1].Steps != 15 {
		t.Fatalf("record = %+v", got[1])
	}
	if len(got[0].Turns) != 1 || got[0].Turns[0].Action != "look" {
		t.Fatalf("transcript lost: %+v", got[0].Turns)
	}
}

func TestAppendAcrossSinks(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(dir)
		if err != nil {
			t.Fatalf("NewFileSink: %v", err)
		}
		if err := sink.Write(sampleRecord("t", "success", i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	got, err := ReadRecords(dir + "/" + DefaultFilename)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d records, want 2 (append mode)", len(got))
	}
}

func TestConcurrentWrites(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := sink.Write(sampleRecord("t", "success", n)); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadRecords(sink.Path())
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("read %d records, want 8", len(got))
	}
}

func TestReadRecordsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/" + DefaultFilename
	if err := os.WriteFile(path, []byte("{\"run_id\":\"a\"}\nnot json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRecords(path); err == nil {
		t.Fatal("malformed line should error")
	}
}

func TestFilters(t *testing.T) {
	records := []Record{
		sampleRecord("a", "success", 1),
		sampleRecord("b", "failure", 2),
		sampleRecord("a", "truncated", 3),
	}
	if got := FilterByTask(records, "a"); len(got) != 2 {
		t.Fatalf("FilterByTask = %d records, want 2", len(got))
	}
	if got := FilterByStatus(records, "failure"); len(got) != 1 || got[0].TaskID != "b" {
		t.Fatalf("FilterByStatus = %+v", got)
	}
}
