// Package source reads the audit batch and per-encounter clinical records
// from the hospital database.
package source

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// Query template names.
const (
	QueryBatch  = "get_batch"
	QueryDetail = "get_detail"
)

const cutoffLayout = "2006-01-02 15:04:05"

//go:embed queries/*.sql
var embeddedQueries embed.FS

// SQLSource implements the data source over database/sql. The query text is
// loaded once at construction.
type SQLSource struct {
	db     *sql.DB
	driver string
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	batchQuery  string
	detailQuery string
}

// Open connects to the database described by cfg and verifies the connection.
// The caller owns the returned source and must Close it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	s, err := New(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("connected to clinical database", "driver", cfg.Driver, "database", cfg.Database)
	return s, nil
}

// New wraps an existing handle. Close closes db.
func New(db *sql.DB, cfg Config, logger *slog.Logger) (*SQLSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	batch, err := loadQuery(cfg.QueryDir, QueryBatch)
	if err != nil {
		return nil, err
	}
	detail, err := loadQuery(cfg.QueryDir, QueryDetail)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		batch = rebind(batch)
		detail = rebind(detail)
	}

	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &SQLSource{
		db:          db,
		driver:      cfg.Driver,
		window:      window,
		now:         time.Now,
		logger:      logger.With("component", "source"),
		batchQuery:  batch,
		detailQuery: detail,
	}, nil
}

// Close releases the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// FetchBatch returns every encounter inside the configured window. Any error
// wraps domain.ErrBatchUnavailable.
func (s *SQLSource) FetchBatch(ctx context.Context) ([]domain.RawItem, error) {
	cutoff := s.now().Add(-s.window).Format(cutoffLayout)

	rows, err := s.db.QueryContext(ctx, s.batchQuery, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBatchUnavailable, err)
	}
	defer rows.Close()

	var items []domain.RawItem
	for rows.Next() {
		var (
			it                     domain.RawItem
			encounter              sql.NullInt64
			patientName, clinician sql.NullString
			attendedAt, diagnosis  sql.NullString
		)
		if err := rows.Scan(
			&it.Key.Period, &it.Key.Admission, &it.Key.Account,
			&encounter, &it.PatientID, &patientName,
			&it.ClinicianID, &clinician, &attendedAt, &diagnosis,
		); err != nil {
			return nil, fmt.Errorf("%w: scan batch row: %w", domain.ErrBatchUnavailable, err)
		}
		it.EncounterID = encounter.Int64
		it.PatientName = patientName.String
		it.ClinicianName = clinician.String
		it.AttendedAt = attendedAt.String
		it.Diagnosis = diagnosis.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBatchUnavailable, err)
	}

	s.logger.Debug("batch fetched", "cutoff", cutoff, "items", len(items))
	return items, nil
}

// FetchDetail returns the clinical record of item, or domain.ErrDetailNotFound.
func (s *SQLSource) FetchDetail(ctx context.Context, item domain.RawItem) (*domain.DetailRecord, error) {
	row := s.db.QueryRowContext(ctx, s.detailQuery,
		item.PatientID, item.Key.Period, item.Key.Admission, item.Key.Account)

	var (
		d        domain.DetailRecord
		sections [7]sql.NullString
	)
	err := row.Scan(
		&d.PatientID, &d.Key.Period, &d.Key.Admission, &d.Key.Account,
		&sections[0], &sections[1], &sections[2], &sections[3],
		&sections[4], &sections[5], &sections[6],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDetailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query detail: %w", err)
	}

	d.Evolutions = sections[0].String
	d.VitalSigns = sections[1].String
	d.MedicationAdministration = sections[2].String
	d.NursingNotes = sections[3].String
	d.LabResults = sections[4].String
	d.Imaging = sections[5].String
	d.LabOrders = sections[6].String
	return &d, nil
}

func loadQuery(dir, name string) (string, error) {
	file := name + ".sql"
	var (
		data []byte
		err  error
	)
	if dir != "" {
		data, err = os.ReadFile(filepath.Join(dir, file))
	} else {
		data, err = embeddedQueries.ReadFile("queries/" + file)
	}
	if err != nil {
		return "", fmt.Errorf("load query %s: %w", name, err)
	}
	return string(data), nil
}

// rebind rewrites "?" placeholders to "$1", "$2", ... for postgres, leaving
// quoted literals and comments untouched.
func rebind(query string) string {
	var (
		b      strings.Builder
		n      int
		quoted bool
	)
	b.Grow(len(query) + 8)

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case !quoted && c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i
			}
			b.WriteString(query[i : i+end])
			i += end - 1
			continue
		case !quoted && c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
