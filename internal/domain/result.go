package domain

import "fmt"

// Score bounds for AuditResult.QualityScore.
const (
	MinQualityScore = 0
	MaxQualityScore = 100
)

// Compliance flag values written to cumple_guias.
const (
	CompliantYes = "Sí"
	CompliantNo  = "No"
)

// PendingDiagnosis replaces an empty diagnosis in persisted results.
const PendingDiagnosis = "Pendiente de codificación CIE-9"

// AuditResult is the scored output for one encounter. It is constructed once
// per successful scoring call, appended to the result sink, and never mutated.
//
// JSON field names are the wire format of the result sink and the report.
type AuditResult struct {
	// Identification fields. Always supplied by the caller, never by the model.
	ClinicianID   int64  `json:"id_medico"`
	ClinicianName string `json:"nombre_medico"`
	PatientID     int64  `json:"id_persona_paciente"`
	PatientName   string `json:"nombre_paciente"`
	EncounterID   int64  `json:"id_evolucion"`
	AttendedAt    string `json:"fecha_atencion"`
	Period        int64  `json:"cuenta_gestion"`
	Admission     int64  `json:"cuenta_internacion"`
	Diagnosis     string `json:"diagnostico_urgencia"`

	// Rubric outcome.
	Compliant            string   `json:"cumple_guias"            validate:"required"`
	QualityScore         int      `json:"score_calidad"           validate:"min=0,max=100"`
	ApplicableGuidelines []string `json:"guias_aplicables"        validate:"required"`
	MetCriteria          []string `json:"criterios_cumplidos"     validate:"required"`
	UnmetCriteria        []string `json:"criterios_no_cumplidos"  validate:"required"`
	TreatmentAssessment  string   `json:"tratamiento_adecuado"`
	TimingAssessment     string   `json:"tiempo_atencion"`
	StudiesAssessment    string   `json:"estudios_solicitados"`
	MedicationAssessment string   `json:"medicacion_apropiada"`
	CriticalFindings     []string `json:"hallazgos_criticos"      validate:"required"`
	Recommendations      []string `json:"recomendaciones"         validate:"required"`
	AdditionalComments   string   `json:"comentarios_adicionales"`
}

// Validate checks the rubric fields against the schema constraints.
func (r *AuditResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	return nil
}

// Key returns the period/admission portion of the encounter identity carried by
// the result. The account id is not part of the persisted result.
func (r *AuditResult) Key() string {
	return fmt.Sprintf("%d/%d", r.Period, r.Admission)
}

// IsCompliant reports whether the model judged the encounter compliant.
func (r *AuditResult) IsCompliant() bool {
	switch r.Compliant {
	case CompliantYes, "Si", "sí", "si", "SÍ", "SI", "Yes", "yes":
		return true
	default:
		return false
	}
}

// WithIdentification copies the caller-owned identification fields of item
// into the result, overwriting anything the model produced.
func (r *AuditResult) WithIdentification(item RawItem) *AuditResult {
	r.ClinicianID = item.ClinicianID
	r.ClinicianName = item.ClinicianName
	r.PatientID = item.PatientID
	r.PatientName = item.PatientName
	r.EncounterID = item.EncounterID
	r.AttendedAt = item.AttendedAt
	r.Period = item.Key.Period
	r.Admission = item.Key.Admission
	r.Diagnosis = item.Diagnosis
	if r.Diagnosis == "" {
		r.Diagnosis = PendingDiagnosis
	}
	return r
}
