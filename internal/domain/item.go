// Package domain defines the core types of the clinical audit pipeline: the
// composite identity of an encounter, the raw rows pulled from the data source,
// the scored audit result, and the ledger entry that records processing status.
//
// Identity is keyed on the encounter (admission account), never on the patient:
// the same patient appears under several keys when admitted more than once.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemKey uniquely identifies one encounter to be audited.
// Two items with the same key are the same unit of work.
type ItemKey struct {
	// Period is the fiscal period of the account (cuenta_gestion).
	Period int64 `json:"period"`
	// Admission is the admission sequence number within the period (cuenta_internacion).
	Admission int64 `json:"admission"`
	// Account is the account identifier (cuenta_id).
	Account int64 `json:"account"`
}

// String serializes the key as "<period>-<admission>-<account>".
// This is the form stored in the ledger.
func (k ItemKey) String() string {
	return fmt.Sprintf("%d-%d-%d", k.Period, k.Admission, k.Account)
}

// Display returns the short "<period>/<admission>" form used in progress logs.
func (k ItemKey) Display() string {
	return fmt.Sprintf("%d/%d", k.Period, k.Admission)
}

// ParseItemKey is the inverse of ItemKey.String.
func ParseItemKey(s string) (ItemKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return ItemKey{}, fmt.Errorf("%w: %q", ErrInvalidItemKey, s)
	}

	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return ItemKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidItemKey, s, err)
		}
		vals[i] = v
	}

	return ItemKey{Period: vals[0], Admission: vals[1], Account: vals[2]}, nil
}

// RawItem is one row of the batch query: the encounter identity plus the
// identification fields later merged into the AuditResult.
type RawItem struct {
	Key ItemKey `json:"key"`

	// EncounterID is the clinical evolution id (id_evolucion). Optional in the
	// batch query; zero when absent.
	EncounterID int64 `json:"encounter_id"`

	PatientID     int64  `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	ClinicianID   int64  `json:"clinician_id"`
	ClinicianName string `json:"clinician_name"`

	// AttendedAt is the encounter timestamp as rendered by the data source.
	AttendedAt string `json:"attended_at"`

	// Diagnosis is the diagnosis recorded at triage; may be empty when coding
	// is still pending.
	Diagnosis string `json:"diagnosis"`
}

// DetailRecord is the full clinical record of one encounter. Each section is
// free text exactly as the data source aggregates it; the formatter consumes
// the sections as-is.
type DetailRecord struct {
	Key       ItemKey
	PatientID int64

	// Evolutions holds clinical notes encoded as JSON objects joined by
	// EvolutionSeparator.
	Evolutions string

	VitalSigns               string
	MedicationAdministration string
	NursingNotes             string
	LabResults               string

	// Imaging holds imaging reports joined by ImagingSeparator.
	Imaging string

	// LabOrders lists every lab requested, with or without a result yet.
	LabOrders string
}

// Section separators used by the data source when aggregating multi-row sections.
const (
	EvolutionSeparator = "\n---EVOLUCION---\n"
	ImagingSeparator   = "\n---IMAGEN---\n"
)
