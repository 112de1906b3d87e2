// Package results appends scored audit results to a JSON Lines file and
// reads them back for reporting.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("result sink closed")

// RunFileName returns the per-run output file name for a run started at t.
func RunFileName(t time.Time) string {
	return "audit_" + t.Format("20060102_150405") + ".jsonl"
}

// JSONLSink is an append-only JSON Lines writer. Each Append writes one
// complete line and syncs it before returning. Safe for concurrent use.
type JSONLSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens path for appending, creating it and its directory.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	return &JSONLSink{path: path, file: f}, nil
}

// Path returns the output file.
func (s *JSONLSink) Path() string { return s.path }

// Append writes r as a single line.
func (s *JSONLSink) Append(r *domain.AuditResult) error {
	line, err := marshalLine(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync result file: %w", err)
	}
	return nil
}

// Close releases the file. Calling it twice is a no-op.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func marshalLine(r *domain.AuditResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return buf.Bytes(), nil
}

// maxLineSize bounds a single result line; clinical comments can be long.
const maxLineSize = 4 << 20

// ReadAll loads every result in path. Blank lines are ignored; a malformed
// line is an error naming its line number.
func ReadAll(path string) ([]domain.AuditResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	var out []domain.AuditResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r domain.AuditResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", n, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	return out, nil
}
