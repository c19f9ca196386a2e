// Package ledger persists one row per dashboard refresh. Summary tables are
// not stored; the ledger keeps counts and the dashboard digest so reruns
// over an unchanged snapshot can be compared.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/database"
	"github.com/trial-progress-dashboard/internal/domain"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// maxExportLimit is the maximum number of runs to export at once.
const maxExportLimit = 100000

// Export is the JSON export format of the ledger.
type Export struct {
	Version    string              `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	Count      int                 `json:"count"`
	Runs       []*domain.RunRecord `json:"runs"`
}

// Open creates the run ledger selected by the configuration. It returns
// nil with no error when the ledger is disabled. PostgreSQL migrations are
// applied first when a migrations path is configured.
func Open(ctx context.Context, cfg *domain.LedgerConfig, logger *logrus.Logger) (domain.RunLedger, error) {
	switch cfg.Driver {
	case domain.LedgerNone, "":
		return nil, nil
	case domain.LedgerSQLite:
		store, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite ledger: %w", err)
		}
		logger.WithField("path", cfg.Path).Info("SQLite run ledger opened")
		return store, nil
	case domain.LedgerPostgres:
		if cfg.MigrationsPath != "" {
			runner, err := database.NewMigrationRunner(cfg.DatabaseURL, cfg.MigrationsPath, logger)
			if err != nil {
				return nil, err
			}
			err = runner.Up(ctx)
			if closeErr := runner.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close migration runner")
			}
			if err != nil {
				return nil, err
			}
		}
		store, err := NewPostgresStoreFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening postgres ledger: %w", err)
		}
		logger.Info("PostgreSQL run ledger opened")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// ExportJSON writes every recorded run to w.
func ExportJSON(ctx context.Context, l domain.RunLedger, w io.Writer) error {
	runs, err := l.List(ctx, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return WriteJSON(w, runs)
}

// WriteJSON writes runs in the export format.
func WriteJSON(w io.Writer, runs []*domain.RunRecord) error {
	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(runs),
		Runs:       runs,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode runs: %w", err)
	}
	return nil
}

func prepare(run *domain.RunRecord) error {
	if run == nil {
		return fmt.Errorf("run record is required")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = domain.RunSucceeded
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const runColumns = `id, started_at, finished_at, as_of, source, status, error,
	candidates, patients, follow_up_rows, needs_exclusion_date,
	needs_enrollment_date, unparsable_dates, discarded_draws, digest`

func scanRun(s scanner) (*domain.RunRecord, error) {
	r := &domain.RunRecord{}
	var status string
	err := s.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.AsOf, &r.Source, &status, &r.Error,
		&r.Candidates, &r.Patients, &r.FollowUpRows, &r.NeedsExclusionDate,
		&r.NeedsEnrollmentDate, &r.UnparsableDates, &r.DiscardedDraws, &r.Digest,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)
	return r, nil
}

func runArgs(r *domain.RunRecord) []interface{} {
	return []interface{}{
		r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.AsOf.UTC(), r.Source, string(r.Status), r.Error,
		r.Candidates, r.Patients, r.FollowUpRows, r.NeedsExclusionDate,
		r.NeedsEnrollmentDate, r.UnparsableDates, r.DiscardedDraws, r.Digest,
	}
}
