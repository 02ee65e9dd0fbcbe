package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilename is the default filename for the results file.
const DefaultFilename = "episodes.jsonl"

// FileSink appends episode records to a JSONL file. It is safe for
// concurrent use from multiple episode workers.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewFileSink opens dir/episodes.jsonl for appending, creating the
// directory and file as needed. Transcripts can carry sensitive task
// content, hence the 0600 mode.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends one record as a single JSON line and flushes, so a
// record is durable as soon as Write returns.
func (s *FileSink) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}
	return nil
}

// Close flushes any remaining data and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("flush before close: %w", err)
	}
	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("close results file: %w", err)
	}
	s.file = nil
	return nil
}

// Path returns the path to the results file.
func (s *FileSink) Path() string { return s.path }

// ReadRecords loads every record from a JSONL results file. Blank lines
// are skipped; a malformed line is an error rather than silently dropped.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	return records, nil
}

// FilterByTask keeps records for one task id.
func FilterByTask(records []Record, taskID string) []Record {
	var out []Record
	for _, r := range records {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}

// FilterByStatus keeps records with one terminal status.
func FilterByStatus(records []Record, status string) []Record {
	var out []Record
	for _, r := range records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
