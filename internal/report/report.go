// Package report renders a result file as a self-contained HTML report: an
// executive summary per clinician followed by one card per encounter.
package report

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/results"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// Renderer builds reports. Safe for concurrent use.
type Renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
	now  func() time.Time
}

// NewRenderer parses the embedded template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("report.html.tmpl").Funcs(template.FuncMap{
		"pct":       func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
		"score":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"scoreBand": scoreBand,
	}).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}

	return &Renderer{
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		tmpl: tmpl,
		now:  time.Now,
	}, nil
}

type page struct {
	Title       string
	Date        string
	GeneratedAt string
	Overview    Overview
	Summary     template.HTML
	Clinicians  []ClinicianSummary
	Results     []domain.AuditResult
}

// Render writes the HTML report for results to w.
func (r *Renderer) Render(w io.Writer, res []domain.AuditResult, date time.Time) error {
	ov, clinicians := Summarize(res)

	var md bytes.Buffer
	if err := r.md.Convert([]byte(summaryMarkdown(ov, clinicians)), &md); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	// goldmark escapes raw HTML by default, so its output is trusted here.
	p := page{
		Title:       "Reporte de Auditoría de Urgencias",
		Date:        date.Format("2006-01-02"),
		GeneratedAt: r.now().Format("2006-01-02 15:04:05"),
		Overview:    ov,
		Summary:     template.HTML(md.String()), //nolint:gosec // escaped by goldmark
		Clinicians:  clinicians,
		Results:     res,
	}
	if err := r.tmpl.Execute(w, p); err != nil {
		return fmt.Errorf("execute report template: %w", err)
	}
	return nil
}

// HTMLPath is where the report for a result file is written.
func HTMLPath(jsonlPath string) string {
	return strings.TrimSuffix(jsonlPath, ".jsonl") + ".html"
}

// WriteFile renders the report for the result file at jsonlPath next to it
// and returns the HTML path. A missing result file yields an empty report.
func (r *Renderer) WriteFile(jsonlPath string, date time.Time) (string, error) {
	res, err := results.ReadAll(jsonlPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	var buf bytes.Buffer
	if err := r.Render(&buf, res, date); err != nil {
		return "", err
	}

	out := HTMLPath(jsonlPath)
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return out, nil
}

func summaryMarkdown(ov Overview, clinicians []ClinicianSummary) string {
	var b strings.Builder

	b.WriteString("## Resumen ejecutivo\n\n")
	fmt.Fprintf(&b, "- **Atenciones auditadas:** %d\n", ov.Encounters)
	fmt.Fprintf(&b, "- **Médicos:** %d\n", ov.Clinicians)
	fmt.Fprintf(&b, "- **Score promedio:** %.1f/100\n", ov.AverageScore)
	fmt.Fprintf(&b, "- **Cumplimiento de guías:** %.0f%%\n", ov.ComplianceRate()*100)
	fmt.Fprintf(&b, "- **Atenciones con score < %d:** %d\n", lowScoreThreshold, ov.LowScore)
	fmt.Fprintf(&b, "- **Hallazgos críticos:** %d\n\n", ov.CriticalFindings)

	if len(clinicians) == 0 {
		b.WriteString("_Sin atenciones auditadas en este período._\n")
		return b.String()
	}

	b.WriteString("## Resultados por médico\n\n")
	b.WriteString("| Médico | Atenciones | Score promedio | Mín | Máx | Cumplimiento | Score < 60 | Hallazgos críticos |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, c := range clinicians {
		fmt.Fprintf(&b, "| %s | %d | %.1f | %d | %d | %.0f%% | %d | %d |\n",
			escapeMarkdown(c.Name), c.Encounters, c.AverageScore, c.MinScore, c.MaxScore,
			c.ComplianceRate()*100, c.LowScore, c.CriticalFindings)
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"\n", " ",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func scoreBand(score int) string {
	switch {
	case score >= 80:
		return "high"
	case score >= lowScoreThreshold:
		return "medium"
	default:
		return "low"
	}
}
