// Package format renders a DetailRecord as the plain-text clinical narrative
// sent to the scoring model.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

const (
	heavyRule = "================================================================================="
	lightRule = "--------------------------------------------------------------------------------"
)

// labOrdersNote tells the model that an order without a result was still requested.
const labOrdersNote = `NOTA: Esta sección muestra TODOS los laboratorios SOLICITADOS por el médico,
independientemente de si ya tienen resultado. Un estudio que aparece aquí
FUE SOLICITADO aunque no tenga resultado en la sección anterior.`

// evolution is one clinical note as aggregated by the detail query.
type evolution struct {
	Date          any `json:"fecha"`
	EventType     any `json:"tipo_evento"`
	Professional  any `json:"profesional"`
	Diagnoses     any `json:"diagnosticos"`
	Comment       any `json:"comentario_clinico"`
	Plan          any `json:"plan_medico"`
	Prescriptions any `json:"medicamentos_prescritos"`
}

// Record formats d. Sections appear in a fixed order; empty sections are
// omitted, and evolutions that are not valid JSON objects are skipped.
func Record(d *domain.DetailRecord) string {
	var b strings.Builder

	b.WriteString("\n")
	heading(&b, "ATENCIÓN DE URGENCIAS - DETALLE COMPLETO")
	b.WriteString("\nINFORMACIÓN DE LA CUENTA:\n")
	fmt.Fprintf(&b, "- Paciente ID: %d\n", d.PatientID)
	fmt.Fprintf(&b, "- Gestión: %d\n", d.Key.Period)
	fmt.Fprintf(&b, "- Número de Internación: %d\n", d.Key.Admission)
	fmt.Fprintf(&b, "- ID de Cuenta: %d\n", d.Key.Account)
	b.WriteString("\n")

	heading(&b, "EVOLUCIONES CLÍNICAS")
	for i, evo := range parseEvolutions(d.Evolutions) {
		fmt.Fprintf(&b, "\n--- Evolución #%d ---\n", i+1)
		fmt.Fprintf(&b, "Fecha: %s\n", orNA(evo.Date))
		fmt.Fprintf(&b, "Tipo: %s\n", orNA(evo.EventType))
		fmt.Fprintf(&b, "Profesional: %s\n", orNA(evo.Professional))

		optional(&b, "Diagnósticos CIE9", evo.Diagnoses)
		optional(&b, "Comentario Clínico", evo.Comment)
		optional(&b, "Plan Médico", evo.Plan)
		optional(&b, "Medicamentos Prescritos", evo.Prescriptions)

		b.WriteString(lightRule + "\n")
	}

	block(&b, "SIGNOS VITALES", d.VitalSigns)
	block(&b, "EJECUCIONES DE MEDICAMENTOS (ENFERMERÍA)", d.MedicationAdministration)
	block(&b, "NOTAS DE ENFERMERÍA", d.NursingNotes)
	block(&b, "RESULTADOS DE LABORATORIO", d.LabResults)

	if d.Imaging != "" {
		b.WriteString("\n")
		heading(&b, "ESTUDIOS DE IMAGEN")
		for _, img := range strings.Split(d.Imaging, domain.ImagingSeparator) {
			b.WriteString(img + "\n" + lightRule + "\n")
		}
	}

	if d.LabOrders != "" {
		b.WriteString("\n")
		heading(&b, "SOLICITUDES DE LABORATORIO (ÓRDENES MÉDICAS)")
		b.WriteString(labOrdersNote + "\n\n")
		b.WriteString(d.LabOrders + "\n\n")
	}

	b.WriteString(strings.Repeat("=", 80) + "\n")
	return b.String()
}

// parseEvolutions decodes the separator-joined clinical notes, dropping any part
// that is not a JSON object.
func parseEvolutions(raw string) []evolution {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, domain.EvolutionSeparator)

	out := make([]evolution, 0, len(parts))
	for _, p := range parts {
		var evo evolution
		if err := json.Unmarshal([]byte(p), &evo); err != nil {
			continue
		}
		out = append(out, evo)
	}
	return out
}

func heading(b *strings.Builder, title string) {
	b.WriteString(heavyRule + "\n" + title + "\n" + heavyRule + "\n")
}

func block(b *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	b.WriteString("\n")
	heading(b, title)
	b.WriteString(body + "\n\n")
}

func optional(b *strings.Builder, label string, v any) {
	s := text(v)
	if s == "" {
		return
	}
	fmt.Fprintf(b, "\n%s:\n%s\n", label, s)
}

func orNA(v any) string {
	if s := text(v); s != "" {
		return s
	}
	return "N/A"
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
