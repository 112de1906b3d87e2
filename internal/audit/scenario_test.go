package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/ledger"
	"github.com/ahrav/go-clinaudit/internal/llm"
	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
	"github.com/ahrav/go-clinaudit/internal/results"
)

const (
	primary  = "openrouter/primary"
	fallback = "openrouter/fallback"
)

func rubricJSON(score int) string {
	b, _ := json.Marshal(map[string]any{
		"cumple_guias":            "No",
		"score_calidad":           score,
		"guias_aplicables":        []string{"AHA"},
		"criterios_cumplidos":     []string{},
		"criterios_no_cumplidos":  []string{"ECG tardío"},
		"tratamiento_adecuado":    "Parcial",
		"tiempo_atencion":         "Tardío",
		"estudios_solicitados":    "Incompletos",
		"medicacion_apropiada":    "Sí",
		"hallazgos_criticos":      []string{},
		"recomendaciones":         []string{"ECG en 10 minutos"},
		"comentarios_adicionales": "",
	})
	return string(b)
}

// providerFake answers per model: the primary always fails transiently and the
// fallback returns a valid rubric.
type providerFake struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *providerFake) Handle(_ context.Context, req *transport.Request) (*transport.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[req.ModelID()]++

	if req.ModelID() == primary {
		return nil, &llmerrors.ProviderError{Provider: req.Provider, StatusCode: 503, Message: "overloaded", Type: llmerrors.ErrorTypeProvider}
	}
	return &transport.Response{Content: "```json\n" + rubricJSON(45) + "\n```"}, nil
}

func newScoringClient(t *testing.T, core transport.Handler) llm.Client {
	t.Helper()
	cfg := configuration.DefaultConfig()
	cfg.Models = []string{primary, fallback}
	cfg.Retry.BackoffUnit = time.Millisecond
	cfg.RateLimit.Enabled = false

	c, err := llm.NewClient(context.Background(), cfg, discardLogger(), llm.WithCoreHandler(core))
	require.NoError(t, err)
	return c
}

// TestRun_EndToEnd covers a batch of three: A already completed, B missing its
// clinical record, C scored on the fallback model after the primary exhausts
// its retries.
func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.json")
	outPath := filepath.Join(dir, results.RunFileName(time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)))

	a, b, c := item(1, 7, "Dr. Vargas"), item(2, 8, "Dra. Rojas"), item(3, 7, "Dr. Vargas")
	c.Diagnosis = ""

	seed, err := ledger.Open(ledgerPath, discardLogger())
	require.NoError(t, err)
	require.NoError(t, seed.MarkCompleted(a.Key))

	l, err := ledger.Open(ledgerPath, discardLogger())
	require.NoError(t, err)
	sink, err := results.NewJSONLSink(outPath)
	require.NoError(t, err)
	defer sink.Close()

	src := &fakeSource{
		items:   []domain.RawItem{a, b, c},
		details: map[domain.ItemKey]*domain.DetailRecord{a.Key: detailFor(a), c.Key: detailFor(c)},
	}
	core := &providerFake{}

	o := newTestOrchestrator(t, src, l, newScoringClient(t, core), sink)
	s, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, outPath, s.OutputPath)
	assert.Equal(t, ledgerPath, s.LedgerPath)

	assert.Equal(t, 3, core.calls[primary], "primary spends its full budget")
	assert.Equal(t, 1, core.calls[fallback])
	assert.Equal(t, 2, src.detailCalls, "A is skipped before any fetch")

	// The ledger on disk reflects every outcome.
	reopened, err := ledger.Open(ledgerPath, discardLogger())
	require.NoError(t, err)
	assert.True(t, reopened.IsCompleted(a.Key))
	assert.True(t, reopened.IsCompleted(c.Key))
	be, ok := reopened.Entry(b.Key)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, be.Status)
	assert.Contains(t, be.Error, domain.ErrDetailNotFound.Error())

	require.NoError(t, sink.Close())
	got, err := results.ReadAll(outPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 45, got[0].QualityScore)
	assert.Equal(t, c.PatientID, got[0].PatientID)
	assert.Equal(t, int64(3), got[0].Admission)
	assert.Equal(t, domain.PendingDiagnosis, got[0].Diagnosis)
}

// TestRun_Idempotent runs the same batch twice against one ledger: nothing
// completed in the first run is scored again.
func TestRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.json")

	a, b := item(1, 7, "A"), item(2, 7, "A")
	src := &fakeSource{
		items:   []domain.RawItem{a, b},
		details: map[domain.ItemKey]*domain.DetailRecord{a.Key: detailFor(a), b.Key: detailFor(b)},
	}
	sc := scoreAlways(90)

	run := func() *Summary {
		l, err := ledger.Open(ledgerPath, discardLogger())
		require.NoError(t, err)
		o := newTestOrchestrator(t, src, l, sc, &memSink{})
		s, err := o.Run(context.Background())
		require.NoError(t, err)
		return s
	}

	first := run()
	assert.Equal(t, 2, first.Completed)

	second := run()
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, second.Processed)
	assert.Zero(t, second.Completed)

	assert.Equal(t, 1, sc.callsFor(a.Key))
	assert.Equal(t, 1, sc.callsFor(b.Key))
}

// TestRun_FailedItemsRetriedNextRun checks that only completed entries are
// skipped; failed and pending ones are attempted again.
func TestRun_FailedItemsRetriedNextRun(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "ledger.json")
	a := item(1, 7, "A")
	src := &fakeSource{items: []domain.RawItem{a}, details: map[domain.ItemKey]*domain.DetailRecord{}}

	l, err := ledger.Open(ledgerPath, discardLogger())
	require.NoError(t, err)
	o := newTestOrchestrator(t, src, l, scoreAlways(60), &memSink{})
	s, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed)

	src.details[a.Key] = detailFor(a)
	l, err = ledger.Open(ledgerPath, discardLogger())
	require.NoError(t, err)
	o = newTestOrchestrator(t, src, l, scoreAlways(60), &memSink{})
	s, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Completed)
	assert.True(t, l.IsCompleted(a.Key))
}
