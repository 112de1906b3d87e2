// Package app assembles the audit pipeline from configuration. The CLI and
// the Temporal activity both build their runs here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/config"
	"github.com/ahrav/go-clinaudit/internal/distribute"
	"github.com/ahrav/go-clinaudit/internal/ledger"
	"github.com/ahrav/go-clinaudit/internal/llm"
	"github.com/ahrav/go-clinaudit/internal/lock"
	"github.com/ahrav/go-clinaudit/internal/metrics"
	"github.com/ahrav/go-clinaudit/internal/report"
	"github.com/ahrav/go-clinaudit/internal/results"
	"github.com/ahrav/go-clinaudit/internal/source"
)

// Deps carries process-scoped collaborators shared by every run.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// LogPath is the daily log file uploaded with the run artifacts.
	LogPath string
	Hook    audit.ItemHook
	Now     func() time.Time
}

// Run is one assembled batch run. Close releases everything it holds and
// must be called exactly once.
type Run struct {
	orch    *audit.Orchestrator
	closers []func() error
	logger  *slog.Logger
}

// Build acquires the run lock, opens the data source, the ledger and a fresh
// result file, builds the scoring client and the post-run publishers.
// Storage and email are optional: when configured but unreachable they are
// skipped with a warning.
func Build(ctx context.Context, cfg *config.Config, d Deps) (*Run, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger

	r := &Run{logger: logger}
	built := false
	defer func() {
		if !built {
			_ = r.Close()
		}
	}()

	if err := r.acquireLock(ctx, cfg); err != nil {
		return nil, err
	}

	src, err := source.Open(ctx, cfg.Source, logger)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, src.Close)

	led, err := ledger.Open(cfg.Output.LedgerPath, logger)
	if err != nil {
		return nil, err
	}

	var llmOpts []llm.Option
	if d.Metrics != nil {
		llmOpts = append(llmOpts, llm.WithMetrics(d.Metrics))
	}
	scorer, err := llm.NewClient(ctx, &cfg.Scoring, logger, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("build scoring client: %w", err)
	}

	sink, err := results.NewJSONLSink(filepath.Join(cfg.Output.Dir, results.RunFileName(d.Now())))
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, sink.Close)

	publishers, err := buildPublishers(ctx, cfg, d)
	if err != nil {
		return nil, err
	}

	opts := []audit.Option{audit.WithPublishers(publishers...), audit.WithClock(d.Now)}
	if d.Metrics != nil {
		opts = append(opts, audit.WithRecorder(d.Metrics))
	}
	if d.Hook != nil {
		opts = append(opts, audit.WithItemHook(d.Hook))
	}

	r.orch, err = audit.New(src, led, scorer, sink, logger, opts...)
	if err != nil {
		return nil, err
	}
	built = true
	return r, nil
}

func (r *Run) acquireLock(ctx context.Context, cfg *config.Config) error {
	var locker lock.Locker = lock.NopLocker{}
	if cfg.Lock.RedisURL != "" {
		rl, closeClient, err := lock.NewRedisLocker(ctx, cfg.Lock.RedisURL, cfg.Lock.TTL, r.logger)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, closeClient)
		locker = rl
	}

	name, err := filepath.Abs(cfg.Output.LedgerPath)
	if err != nil {
		name = cfg.Output.LedgerPath
	}
	release, err := locker.Acquire(ctx, name)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return release(ctx)
	})
	return nil
}

func buildPublishers(ctx context.Context, cfg *config.Config, d Deps) ([]audit.Publisher, error) {
	renderer, err := report.NewRenderer()
	if err != nil {
		return nil, err
	}
	pubs := []audit.Publisher{report.NewPublisher(renderer, d.Logger)}

	if cfg.Storage.Enabled() {
		up, err := distribute.NewUploader(ctx, cfg.Storage, d.Logger)
		if err != nil {
			d.Logger.Warn("object storage unavailable, uploads disabled", "error", err)
		} else {
			pubs = append(pubs, distribute.NewUploadPublisher(up, d.LogPath, d.Logger))
		}
	} else {
		d.Logger.Info("object storage not configured, uploads disabled")
	}

	if cfg.Email.Enabled() {
		n, err := distribute.NewNotifier(cfg.Email, d.Logger)
		if err != nil {
			d.Logger.Warn("email unavailable, notifications disabled", "error", err)
		} else {
			pubs = append(pubs, distribute.NewEmailPublisher(n, cfg.Email.Recipients, d.Logger))
		}
	} else {
		d.Logger.Info("email not configured, notifications disabled")
	}
	return pubs, nil
}

// Run executes the batch.
func (r *Run) Run(ctx context.Context) (*audit.Summary, error) {
	return r.orch.Run(ctx)
}

// Close releases resources in reverse acquisition order, the lock last.
func (r *Run) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("run cleanup failed", "error", err)
		return err
	}
	return nil
}
