package report

import (
	"cmp"
	"slices"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// lowScoreThreshold flags encounters that need clinical review.
const lowScoreThreshold = 60

// ClinicianSummary aggregates the results of one clinician.
type ClinicianSummary struct {
	ID               int64
	Name             string
	Encounters       int
	Compliant        int
	AverageScore     float64
	MinScore         int
	MaxScore         int
	LowScore         int
	CriticalFindings int
}

// ComplianceRate is the share of compliant encounters in [0,1].
func (c ClinicianSummary) ComplianceRate() float64 {
	if c.Encounters == 0 {
		return 0
	}
	return float64(c.Compliant) / float64(c.Encounters)
}

// Overview aggregates a whole result file.
type Overview struct {
	Encounters       int
	Clinicians       int
	Compliant        int
	AverageScore     float64
	LowScore         int
	CriticalFindings int
}

// ComplianceRate is the share of compliant encounters in [0,1].
func (o Overview) ComplianceRate() float64 {
	if o.Encounters == 0 {
		return 0
	}
	return float64(o.Compliant) / float64(o.Encounters)
}

// Summarize groups results by clinician, sorted by ascending average score so
// the clinicians most in need of review come first.
func Summarize(results []domain.AuditResult) (Overview, []ClinicianSummary) {
	var (
		ov    Overview
		total int
		order []int64
	)
	byID := make(map[int64]*ClinicianSummary)

	for _, r := range results {
		c, ok := byID[r.ClinicianID]
		if !ok {
			c = &ClinicianSummary{ID: r.ClinicianID, Name: r.ClinicianName, MinScore: r.QualityScore, MaxScore: r.QualityScore}
			byID[r.ClinicianID] = c
			order = append(order, r.ClinicianID)
		}

		c.Encounters++
		c.AverageScore += float64(r.QualityScore)
		c.MinScore = min(c.MinScore, r.QualityScore)
		c.MaxScore = max(c.MaxScore, r.QualityScore)
		c.CriticalFindings += len(r.CriticalFindings)
		if r.IsCompliant() {
			c.Compliant++
			ov.Compliant++
		}
		if r.QualityScore < lowScoreThreshold {
			c.LowScore++
			ov.LowScore++
		}

		ov.Encounters++
		ov.CriticalFindings += len(r.CriticalFindings)
		total += r.QualityScore
	}

	out := make([]ClinicianSummary, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.AverageScore /= float64(c.Encounters)
		out = append(out, *c)
	}
	slices.SortStableFunc(out, func(a, b ClinicianSummary) int {
		return cmp.Compare(a.AverageScore, b.AverageScore)
	})

	ov.Clinicians = len(out)
	if ov.Encounters > 0 {
		ov.AverageScore = float64(total) / float64(ov.Encounters)
	}
	return ov, out
}
