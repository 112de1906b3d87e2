package report

import (
	"context"
	"log/slog"

	"github.com/ahrav/go-clinaudit/internal/audit"
)

// Publisher writes the HTML report after each run.
type Publisher struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewPublisher returns a Publisher using r.
func NewPublisher(r *Renderer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{renderer: r, logger: logger.With("component", "report")}
}

func (p *Publisher) Name() string { return "report" }

// Publish renders the report for the run's result file.
func (p *Publisher) Publish(_ context.Context, s *audit.Summary) error {
	if s.OutputPath == "" {
		p.logger.Warn("run has no result file, skipping report")
		return nil
	}
	out, err := p.renderer.WriteFile(s.OutputPath, s.StartedAt)
	if err != nil {
		return err
	}
	p.logger.Info("report generated", "path", out)
	return nil
}
