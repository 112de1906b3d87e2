package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	items    []domain.RawItem
	batchErr error
	details  map[domain.ItemKey]*domain.DetailRecord

	mu           sync.Mutex
	detailCalls  int
	onDetailCall func()
}

func (f *fakeSource) FetchBatch(context.Context) ([]domain.RawItem, error) {
	return f.items, f.batchErr
}

func (f *fakeSource) FetchDetail(_ context.Context, item domain.RawItem) (*domain.DetailRecord, error) {
	f.mu.Lock()
	f.detailCalls++
	hook := f.onDetailCall
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	d, ok := f.details[item.Key]
	if !ok {
		return nil, domain.ErrDetailNotFound
	}
	return d, nil
}

// memLedger records the full transition history so tests can assert ordering.
type memLedger struct {
	mu        sync.Mutex
	entries   map[domain.ItemKey]domain.LedgerEntry
	history   []string
	failWrite map[domain.LedgerStatus]error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[domain.ItemKey]domain.LedgerEntry)}
}

func (l *memLedger) IsCompleted(key domain.ItemKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[key].Status == domain.StatusCompleted
}

func (l *memLedger) set(key domain.ItemKey, e domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failWrite[e.Status]; err != nil {
		return err
	}
	l.entries[key] = e
	l.history = append(l.history, key.String()+":"+string(e.Status))
	return nil
}

func (l *memLedger) MarkPending(key domain.ItemKey) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusPending})
}

func (l *memLedger) MarkCompleted(key domain.ItemKey) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusCompleted})
}

func (l *memLedger) MarkFailed(key domain.ItemKey, reason string) error {
	return l.set(key, domain.LedgerEntry{Status: domain.StatusFailed, Error: reason})
}

func (l *memLedger) entry(key domain.ItemKey) domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[key]
}

// scorerFunc adapts a function to Scorer and counts calls per key.
type scorerFunc struct {
	mu    sync.Mutex
	calls map[domain.ItemKey]int
	fn    func(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error)
}

func newScorer(fn func(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error)) *scorerFunc {
	return &scorerFunc{calls: make(map[domain.ItemKey]int), fn: fn}
}

func (s *scorerFunc) Score(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error) {
	s.mu.Lock()
	s.calls[item.Key]++
	s.mu.Unlock()
	return s.fn(ctx, record, item)
}

func (s *scorerFunc) callsFor(key domain.ItemKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *scorerFunc) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func scoreAlways(score int) *scorerFunc {
	return newScorer(func(_ context.Context, _ string, item domain.RawItem) (*domain.AuditResult, error) {
		r := &domain.AuditResult{
			Compliant:            domain.CompliantYes,
			QualityScore:         score,
			ApplicableGuidelines: []string{},
			MetCriteria:          []string{},
			UnmetCriteria:        []string{},
			CriticalFindings:     []string{},
			Recommendations:      []string{},
		}
		return r.WithIdentification(item), nil
	})
}

type memSink struct {
	mu      sync.Mutex
	results []*domain.AuditResult
	err     error
}

func (s *memSink) Append(r *domain.AuditResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, r)
	return nil
}

func (s *memSink) Path() string { return "mem://results" }

type recordingPublisher struct {
	name      string
	err       error
	summaries []*Summary
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, s *Summary) error {
	p.summaries = append(p.summaries, s)
	return p.err
}

var errBoom = errors.New("boom")

func item(admission int64, clinician int64, clinicianName string) domain.RawItem {
	return domain.RawItem{
		Key:           domain.ItemKey{Period: 2025, Admission: admission, Account: admission * 10},
		PatientID:     admission + 1000,
		PatientName:   "Paciente",
		ClinicianID:   clinician,
		ClinicianName: clinicianName,
		AttendedAt:    "2025-11-14 08:00:00",
	}
}

func detailFor(it domain.RawItem) *domain.DetailRecord {
	return &domain.DetailRecord{Key: it.Key, PatientID: it.PatientID, VitalSigns: "PA 120/80"}
}
