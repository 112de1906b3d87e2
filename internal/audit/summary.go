package audit

import "time"

// Outcome is the terminal state of one item within a run. An interrupted item
// was abandoned because the run was cancelled; it stays pending in the ledger
// and is retried on the next run.
type Outcome string

// Item outcomes.
const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomeCompleted     Outcome = "completed"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeScoringFailed Outcome = "scoring_failed"
	OutcomePersistFailed Outcome = "persist_failed"
	OutcomeInterrupted   Outcome = "interrupted"
)

// Failed reports whether o counts toward Summary.Failed.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeFetchFailed, OutcomeScoringFailed, OutcomePersistFailed:
		return true
	default:
		return false
	}
}

// Summary is the result of one run. Processed counts skipped and newly
// completed items together.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	OutputPath string `json:"output_path,omitempty"`
	LedgerPath string `json:"ledger_path,omitempty"`

	// Clinicians is ordered by first appearance in the batch.
	Clinicians []ClinicianStats `json:"clinicians"`
}

// ClinicianStats aggregates outcomes per attending clinician.
type ClinicianStats struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Items     int    `json:"items"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) record(clinician int, o Outcome) {
	c := &s.Clinicians[clinician]
	switch {
	case o == OutcomeSkipped:
		s.Skipped++
		c.Skipped++
	case o == OutcomeCompleted:
		s.Completed++
		c.Completed++
	case o.Failed():
		s.Failed++
		c.Failed++
	}
	s.Processed = s.Skipped + s.Completed
}
