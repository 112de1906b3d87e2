package domain

// LedgerStatus is the processing status of one item in the idempotency ledger.
// Transitions: created as any status, or pending -> (completed|failed).
// A completed entry never reverts within a run.
type LedgerStatus string

// LedgerStatus values as persisted in the ledger file.
const (
	StatusPending   LedgerStatus = "pending"
	StatusCompleted LedgerStatus = "completed"
	StatusFailed    LedgerStatus = "failed"
)

// legacyStatuses maps the Spanish values written by earlier tracking files.
var legacyStatuses = map[LedgerStatus]LedgerStatus{
	"pendiente":  StatusPending,
	"completado": StatusCompleted,
	"fallido":    StatusFailed,
}

// Normalize returns the canonical form of s, translating legacy values.
// Unknown values are returned unchanged.
func (s LedgerStatus) Normalize() LedgerStatus {
	if c, ok := legacyStatuses[s]; ok {
		return c
	}
	return s
}

// LedgerEntry is the persisted value for one item key.
type LedgerEntry struct {
	Status LedgerStatus `json:"status"`
	// Error is the failure reason; only set for failed entries.
	Error string `json:"error,omitempty"`
}
