package distribute

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/report"
)

// ArtifactUploader stores one local file under a prefix.
type ArtifactUploader interface {
	Upload(ctx context.Context, localPath, prefix string) error
}

// ReportNotifier delivers the HTML report.
type ReportNotifier interface {
	Send(ctx context.Context, recipients []string, htmlPath string) (bool, error)
}

// UploadPublisher uploads the result file, the HTML report, the ledger and
// the run log under a YYYYMMDD/ prefix. Missing optional files are skipped.
type UploadPublisher struct {
	uploader ArtifactUploader
	logPath  string
	logger   *slog.Logger
}

// NewUploadPublisher returns a publisher; logPath may be empty.
func NewUploadPublisher(u ArtifactUploader, logPath string, logger *slog.Logger) *UploadPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadPublisher{uploader: u, logPath: logPath, logger: logger.With("component", "upload_publisher")}
}

func (p *UploadPublisher) Name() string { return "upload" }

// Publish uploads every artifact that exists and reports every failure.
func (p *UploadPublisher) Publish(ctx context.Context, s *audit.Summary) error {
	prefix := s.StartedAt.Format("20060102")

	var files []string
	if s.OutputPath != "" {
		files = append(files, s.OutputPath, report.HTMLPath(s.OutputPath))
	}
	files = append(files, s.LedgerPath, p.logPath)

	var (
		errs     []error
		uploaded int
	)
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			p.logger.Debug("artifact missing, skipping", "path", f)
			continue
		}
		if err := p.uploader.Upload(ctx, f, prefix); err != nil {
			p.logger.Warn("artifact upload failed", "path", f, "error", err)
			errs = append(errs, err)
			continue
		}
		uploaded++
	}

	p.logger.Info("artifact upload finished", "uploaded", uploaded, "failed", len(errs), "prefix", prefix)
	return errors.Join(errs...)
}

// EmailPublisher sends the run's HTML report to the configured recipients.
type EmailPublisher struct {
	notifier   ReportNotifier
	recipients []string
	logger     *slog.Logger
}

// NewEmailPublisher returns a publisher sending to recipients.
func NewEmailPublisher(n ReportNotifier, recipients []string, logger *slog.Logger) *EmailPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailPublisher{notifier: n, recipients: recipients, logger: logger.With("component", "email_publisher")}
}

func (p *EmailPublisher) Name() string { return "email" }

// Publish emails the report; a skipped send is not an error.
func (p *EmailPublisher) Publish(ctx context.Context, s *audit.Summary) error {
	if s.OutputPath == "" {
		return nil
	}
	sent, err := p.notifier.Send(ctx, p.recipients, report.HTMLPath(s.OutputPath))
	if err != nil {
		return err
	}
	if !sent {
		p.logger.Warn("report email not sent")
	}
	return nil
}
