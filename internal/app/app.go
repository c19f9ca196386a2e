// Package app assembles the dashboard service from configuration. Every
// entry point (HTTP server, MCP server and CLI) builds its dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/cache"
	"github.com/trial-progress-dashboard/internal/database"
	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/ledger"
	"github.com/trial-progress-dashboard/internal/service"
	"github.com/trial-progress-dashboard/internal/source"
	"github.com/trial-progress-dashboard/pkg/redcap"
)

// App holds the wired dependencies of one process.
type App struct {
	Config    domain.ConfigManager
	Logger    *logrus.Logger
	Source    domain.SnapshotSource
	Cache     domain.SnapshotCache
	Ledger    domain.RunLedger
	DB        *database.DB
	Dashboard *service.DashboardService
}

// Options select optional dependencies.
type Options struct {
	// Probe opens a pgx pool for readiness checks when the ledger is
	// PostgreSQL.
	Probe bool
}

// NewSource creates the snapshot source selected by the configuration.
func NewSource(cfg *domain.SourceConfig, logger *logrus.Logger) (domain.SnapshotSource, error) {
	switch cfg.Kind {
	case domain.SourceCSV:
		return source.NewFiles(cfg.CSV, logger), nil
	case domain.SourceREDCap:
		return redcap.NewClient(cfg.REDCap, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, cfg.Kind)
	}
}

// New wires the source, cache, ledger and dashboard service. The caller owns
// the returned App and must Close it.
func New(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger, opts Options) (*App, error) {
	cfg := configManager.GetConfig()
	a := &App{Config: configManager, Logger: logger}

	src, err := NewSource(configManager.GetSourceConfig(), logger)
	if err != nil {
		return nil, err
	}
	a.Source = src

	a.Cache, err = cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	a.Ledger, err = ledger.Open(ctx, configManager.GetLedgerConfig(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}

	if opts.Probe && cfg.Ledger.Driver == domain.LedgerPostgres {
		a.DB, err = database.NewConnection(ctx, database.PoolConfig{
			DatabaseURL: cfg.Ledger.DatabaseURL,
			MaxConns:    2,
			MaxConnLife: cfg.Ledger.ConnMaxLifetime,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open ledger database pool: %w", err)
		}
	}

	a.Dashboard = service.NewDashboardService(logger, a.Source, a.Cache, a.Ledger, service.Settings{
		EnrollmentGoal: cfg.Study.EnrollmentGoal,
		AsOf:           configManager.AsOf,
		CacheTTL:       cfg.Cache.DefaultTTL,
	})

	logger.WithFields(logrus.Fields{
		"source": a.Source.Name(),
		"cache":  cfg.Cache.Kind,
		"ledger": cfg.Ledger.Driver,
	}).Info("Dashboard service initialized")
	return a, nil
}

// Close releases the cache, ledger and database pool.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ledger: %w", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}

// RefreshTimeout bounds a single command-line refresh.
const RefreshTimeout = 10 * time.Minute
