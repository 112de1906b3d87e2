package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

const (
	primaryModel  = "openrouter/primary-model"
	fallbackModel = "openrouter/fallback-model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	cfg.Models = []string{primaryModel, fallbackModel}
	cfg.Retry.BackoffUnit = time.Millisecond
	cfg.RateLimit.Enabled = false
	return cfg
}

func validContent(score int) string {
	b, _ := json.Marshal(map[string]any{
		"cumple_guias":            "Sí",
		"score_calidad":           score,
		"guias_aplicables":        []string{"NICE"},
		"criterios_cumplidos":     []string{"Triage oportuno"},
		"criterios_no_cumplidos":  []string{},
		"tratamiento_adecuado":    "Adecuado",
		"tiempo_atencion":         "Adecuado",
		"estudios_solicitados":    "Completos",
		"medicacion_apropiada":    "Sí",
		"hallazgos_criticos":      []string{},
		"recomendaciones":         []string{},
		"comentarios_adicionales": "Sin observaciones",
	})
	return "```json\n" + string(b) + "\n```"
}

// scriptedCore answers per model from a queue of canned outcomes; the last
// outcome repeats once the queue is drained.
type scriptedCore struct {
	mu      sync.Mutex
	scripts map[string][]outcome
	calls   map[string]int
}

type outcome struct {
	content string
	err     error
}

func newScriptedCore(scripts map[string][]outcome) *scriptedCore {
	return &scriptedCore{scripts: scripts, calls: make(map[string]int)}
}

func (s *scriptedCore) Handle(_ context.Context, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ModelID()
	n := s.calls[id]
	s.calls[id]++

	script := s.scripts[id]
	if len(script) == 0 {
		return nil, errors.New("no script for " + id)
	}
	o := script[min(n, len(script)-1)]
	if o.err != nil {
		return nil, o.err
	}
	return &transport.Response{Content: o.content}, nil
}

func (s *scriptedCore) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func testItem() domain.RawItem {
	return domain.RawItem{
		Key:           domain.ItemKey{Period: 2025, Admission: 77, Account: 9},
		EncounterID:   1234,
		PatientID:     42,
		PatientName:   "María López",
		ClinicianID:   7,
		ClinicianName: "Dr. Vargas",
		AttendedAt:    "2025-11-14 10:00:00",
		Diagnosis:     "R07.4 Dolor torácico",
	}
}

var transientErr = &llmerrors.ProviderError{Provider: "openrouter", StatusCode: 503, Type: llmerrors.ErrorTypeProvider}

func newTestClient(t *testing.T, core transport.Handler, opts ...Option) Client {
	t.Helper()
	c, err := NewClient(context.Background(), testConfig(), discardLogger(), append(opts, WithCoreHandler(core))...)
	require.NoError(t, err)
	return c
}

func TestClient_PrimarySucceeds(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel: {{content: validContent(90)}},
	})
	c := newTestClient(t, core)

	got, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)

	assert.Equal(t, 90, got.QualityScore)
	assert.Equal(t, 1, core.callsFor(primaryModel))
	assert.Equal(t, 0, core.callsFor(fallbackModel))

	// Identification comes from the item, never from the model.
	assert.Equal(t, int64(7), got.ClinicianID)
	assert.Equal(t, "Dr. Vargas", got.ClinicianName)
	assert.Equal(t, "María López", got.PatientName)
	assert.Equal(t, int64(1234), got.EncounterID)
	assert.Equal(t, int64(2025), got.Period)
	assert.Equal(t, int64(77), got.Admission)
	assert.Equal(t, "R07.4 Dolor torácico", got.Diagnosis)
}

// TestClient_FallbackAfterPrimaryExhausted checks that the fallback model is
// used only after the primary spent its full attempt budget.
func TestClient_FallbackAfterPrimaryExhausted(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel:  {{err: transientErr}},
		fallbackModel: {{content: validContent(75)}},
	})
	c := newTestClient(t, core)

	got, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)

	assert.Equal(t, 75, got.QualityScore)
	assert.Equal(t, 3, core.callsFor(primaryModel))
	assert.Equal(t, 1, core.callsFor(fallbackModel))
}

// TestClient_SchemaFailuresConsumeAttempts checks that out-of-range scores are
// retried and never clamped into a persisted result.
func TestClient_SchemaFailuresConsumeAttempts(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel:  {{content: validContent(150)}},
		fallbackModel: {{content: validContent(-5)}, {content: "no es JSON"}, {content: validContent(60)}},
	})
	c := newTestClient(t, core)

	got, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)

	assert.Equal(t, 60, got.QualityScore)
	assert.Equal(t, 3, core.callsFor(primaryModel))
	assert.Equal(t, 3, core.callsFor(fallbackModel))
}

// TestClient_AttemptBound verifies the total number of calls never exceeds
// MaxAttempts times the number of models.
func TestClient_AttemptBound(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel:  {{err: transientErr}},
		fallbackModel: {{content: validContent(999)}},
	})
	c := newTestClient(t, core)

	got, err := c.Score(context.Background(), "record", testItem())
	require.Error(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 3, core.callsFor(primaryModel))
	assert.Equal(t, 3, core.callsFor(fallbackModel))

	var se *llmerrors.ScoringError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llmerrors.KindExhausted, se.Kind)
	assert.Equal(t, 6, se.Attempts)
	assert.ErrorIs(t, err, llmerrors.ErrMaxRetriesExceeded)

	var ve *llmerrors.ValidationError
	assert.ErrorAs(t, err, &ve, "last failure is preserved")
}

func TestClient_FatalSkipsToNextModel(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel:  {{err: llmerrors.ErrUnknownProvider}},
		fallbackModel: {{content: validContent(50)}},
	})
	c := newTestClient(t, core)

	got, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)
	assert.Equal(t, 50, got.QualityScore)
	assert.Equal(t, 1, core.callsFor(primaryModel))
}

func TestClient_CancelledContext(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel: {{content: validContent(50)}},
	})
	c := newTestClient(t, core)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Score(ctx, "record", testItem())
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindFatal, llmerrors.Classify(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, core.callsFor(primaryModel))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Models = nil

	_, err := NewClient(context.Background(), cfg, discardLogger())
	require.ErrorIs(t, err, configuration.ErrInvalidConfig)
}

type recordingMetrics struct {
	NoOpMetrics
	mu       sync.Mutex
	counters map[string]float64
}

func (r *recordingMetrics) IncrementCounter(name string, tags map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = make(map[string]float64)
	}
	r.counters[name+"/"+tags["model"]+"/"+tags["outcome"]] += value
}

func TestClient_RecordsAttemptMetrics(t *testing.T) {
	core := newScriptedCore(map[string][]outcome{
		primaryModel: {{err: transientErr}, {content: validContent(101)}, {content: validContent(88)}},
	})
	m := &recordingMetrics{}
	c := newTestClient(t, core, WithMetrics(m))

	_, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)

	assert.Equal(t, 1.0, m.counters[MetricAttemptsTotal+"/primary-model/transient"])
	assert.Equal(t, 1.0, m.counters[MetricAttemptsTotal+"/primary-model/schema"])
	assert.Equal(t, 1.0, m.counters[MetricAttemptsTotal+"/primary-model/success"])
}

// TestClient_OverHTTP drives the full default pipeline against a fake
// OpenAI-compatible server that fails once before answering.
func TestClient_OverHTTP(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error": {"message": "upstream down", "code": 502}}`)
			return
		}

		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "primary-model", body.Model)

		content, _ := json.Marshal(validContent(82))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"gen-1","choices":[{"message":{"content":`+string(content)+`},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.HTTPClient = srv.Client()
	cfg.Providers = map[string]configuration.ProviderConfig{
		configuration.ProviderOpenRouter: {Endpoint: srv.URL, APIKey: "k"},
	}

	c, err := NewClient(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	got, err := c.Score(context.Background(), "record", testItem())
	require.NoError(t, err)
	assert.Equal(t, 82, got.QualityScore)
	assert.Equal(t, 2, calls)
}
