// Package ledger persists the processing status of every audited item so an
// interrupted run can resume without scoring an encounter twice.
//
// The store is a single JSON object mapping serialized item keys to entries.
// Every mutation rewrites the whole file through a temporary file in the same
// directory followed by a rename, so the file on disk is always either the
// previous snapshot or the new one.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// DefaultPath is where the ledger lives unless configured otherwise.
const DefaultPath = "output/ledger.json"

// ErrPersist indicates the ledger could not be written to disk. The in-memory
// state is left as it was before the failed mutation.
var ErrPersist = errors.New("ledger persist failed")

// Ledger is the idempotency store of a run. Safe for concurrent use.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]domain.LedgerEntry
}

// Open loads the ledger at path. A missing or unreadable file yields an empty
// ledger and a warning; Open only fails when the parent directory cannot be
// created.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		path:    path,
		logger:  logger.With("component", "ledger"),
		entries: make(map[string]domain.LedgerEntry),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	l.load()
	return l, nil
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Info("no ledger found, starting empty", "path", l.path)
		return
	}
	if err != nil {
		l.logger.Warn("ledger unreadable, starting empty", "path", l.path, "error", err)
		return
	}

	entries := make(map[string]domain.LedgerEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("ledger corrupt, starting empty", "path", l.path, "error", err)
		return
	}
	if entries == nil {
		entries = make(map[string]domain.LedgerEntry)
	}
	for k, e := range entries {
		e.Status = e.Status.Normalize()
		entries[k] = e
	}
	l.entries = entries

	completed, failed, pending := l.countLocked()
	l.logger.Info("ledger loaded",
		"path", l.path,
		"entries", len(entries),
		"completed", completed,
		"failed", failed,
		"pending", pending)
}

// Path returns the file backing the ledger.
func (l *Ledger) Path() string { return l.path }

// IsCompleted reports whether key has a completed entry.
func (l *Ledger) IsCompleted(key domain.ItemKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key.String()]
	return ok && e.Status == domain.StatusCompleted
}

// Entry returns the entry for key, if any.
func (l *Ledger) Entry(key domain.ItemKey) (domain.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key.String()]
	return e, ok
}

// MarkPending records that processing of key has started.
func (l *Ledger) MarkPending(key domain.ItemKey) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusPending})
}

// MarkCompleted records a successfully scored and persisted item.
func (l *Ledger) MarkCompleted(key domain.ItemKey) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusCompleted})
}

// MarkFailed records a failed item with the reason.
func (l *Ledger) MarkFailed(key domain.ItemKey, reason string) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusFailed, Error: reason})
}

func (l *Ledger) set(key domain.ItemKey, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key.String()
	prev, existed := l.entries[k]
	l.entries[k] = entry

	if err := l.persistLocked(); err != nil {
		if existed {
			l.entries[k] = prev
		} else {
			delete(l.entries, k)
		}
		l.logger.Error("failed to persist ledger", "key", k, "status", entry.Status, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPersist, k, err)
	}
	return nil
}

// Snapshot returns a copy of every entry keyed by serialized item key.
func (l *Ledger) Snapshot() map[string]domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.entries)
}

// Stats counts entries by status.
func (l *Ledger) Stats() (completed, failed, pending int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLocked()
}

func (l *Ledger) countLocked() (completed, failed, pending int) {
	for _, e := range l.entries {
		switch e.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusFailed:
			failed++
		case domain.StatusPending:
			pending++
		}
	}
	return completed, failed, pending
}

func (l *Ledger) persistLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(l.entries); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return writeFileAtomic(l.path, buf.Bytes())
}

// writeFileAtomic writes data to a temp file next to path, syncs it, and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	// Best effort: make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
