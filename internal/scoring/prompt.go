package scoring

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// UserPrompt renders the per-item prompt: encounter metadata, the formatted
// clinical record, evaluation instructions and the expected JSON fields.
// Identification fields are excluded from the requested output; the caller
// fills them in after validation.
func UserPrompt(record string, item domain.RawItem) string {
	diagnosis := item.Diagnosis
	if diagnosis == "" {
		diagnosis = domain.PendingDiagnosis
	}

	var b strings.Builder
	b.WriteString("Analiza la siguiente atención de urgencias y audítala según guías médicas internacionales.\n\n")

	b.WriteString("**Información de la atención:**\n")
	fmt.Fprintf(&b, "- ID Evolución: %d\n", item.EncounterID)
	fmt.Fprintf(&b, "- Fecha de atención: %s\n", item.AttendedAt)
	fmt.Fprintf(&b, "- Diagnóstico registrado: %s\n", diagnosis)
	fmt.Fprintf(&b, "- ID Paciente: %d\n", item.PatientID)
	fmt.Fprintf(&b, "- ID Médico: %d\n", item.ClinicianID)
	fmt.Fprintf(&b, "- Médico tratante: %s\n\n", item.ClinicianName)

	b.WriteString("**Historial Clínico del Paciente:**\n")
	b.WriteString(record)
	b.WriteString("\n\n")

	b.WriteString(evaluationInstructions)
	b.WriteString("\n\n**IMPORTANTE: Responde ÚNICAMENTE con un objeto JSON válido con esta estructura:**\n")
	for _, f := range resultFields {
		fmt.Fprintf(&b, "- %s: %s\n", f.name, f.kind.describe())
	}
	b.WriteString("\nNO incluyas los campos ")
	b.WriteString(strings.Join(identificationFields, ", "))
	b.WriteString(".\nResponde SOLO con el JSON, sin texto adicional.\n")

	return b.String()
}

const evaluationInstructions = `**Instrucciones de Evaluación:**

1. Identifica las guías internacionales que aplican al caso.
2. Evalúa el ACTO MÉDICO CLÍNICO:
   - Diagnóstico: ¿fue oportuno y certero?
   - Estudios: ¿los laboratorios e imágenes solicitados fueron apropiados?
   - Tratamiento: ¿medicamentos y procedimientos correctos según guías?
   - Tiempos: ¿cumplieron los tiempos recomendados en contexto de urgencias?
   - Seguimiento: ¿el tiempo de observación fue adecuado?
   - Prescripción ambulatoria: ¿se dieron los medicamentos o dispositivos necesarios al alta?
3. Asigna un score de calidad del acto médico (0-100).
4. Identifica fortalezas y áreas de mejora EN LA PRÁCTICA CLÍNICA.
5. Recomienda mejoras al ACTO MÉDICO, no a la documentación.`

// identificationFields are supplied by the caller and must not come from the model.
var identificationFields = []string{
	"id_medico",
	"nombre_medico",
	"id_persona_paciente",
	"id_evolucion",
	"fecha_atencion",
	"diagnostico_urgencia",
	"nombre_paciente",
	"cuenta_gestion",
	"cuenta_internacion",
}
