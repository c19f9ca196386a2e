package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/cache"
	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/summary"
)

// Snapshot is the latest computed dashboard.
type Snapshot struct {
	RunID      string             `json:"run_id"`
	Source     string             `json:"source"`
	FromCache  bool               `json:"from_cache"`
	ComputedAt time.Time          `json:"computed_at"`
	Digest     string             `json:"digest"`
	Dashboard  *summary.Dashboard `json:"dashboard"`
}

// Settings configure a DashboardService.
type Settings struct {
	EnrollmentGoal int
	// AsOf resolves the evaluation date for a refresh started at now.
	AsOf     func(now time.Time) (time.Time, error)
	CacheTTL time.Duration
}

// DashboardService fetches snapshots, recomputes the dashboard and keeps the
// latest result for readers. Refreshes are serialized; readers never block
// on a refresh in progress.
type DashboardService struct {
	logger   *logrus.Logger
	source   domain.SnapshotSource
	cache    domain.SnapshotCache
	ledger   domain.RunLedger
	pipeline *Pipeline
	settings Settings
	now      func() time.Time

	refreshMu sync.Mutex
	mu        sync.RWMutex
	latest    *Snapshot
}

// NewDashboardService creates a service. cache and ledger may be nil.
func NewDashboardService(
	logger *logrus.Logger,
	source domain.SnapshotSource,
	snapshotCache domain.SnapshotCache,
	ledger domain.RunLedger,
	settings Settings,
) *DashboardService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if settings.AsOf == nil {
		settings.AsOf = func(now time.Time) (time.Time, error) {
			return domain.Day(now), nil
		}
	}
	return &DashboardService{
		logger:   logger,
		source:   source,
		cache:    snapshotCache,
		ledger:   ledger,
		pipeline: NewPipeline(logger),
		settings: settings,
		now:      time.Now,
	}
}

// Refresh fetches a snapshot and recomputes the dashboard. When the source
// fails, the last cached snapshot is used if there is one. Every attempt is
// recorded in the run ledger.
func (s *DashboardService) Refresh(ctx context.Context) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	run := &domain.RunRecord{
		ID:        uuid.New().String(),
		StartedAt: s.now().UTC(),
		Source:    s.source.Name(),
	}
	logger := s.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"source": run.Source,
	})
	logger.Info("Starting dashboard refresh")

	result, err := s.refresh(ctx, run, logger)
	run.FinishedAt = s.now().UTC()
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		logger.WithError(err).Error("Dashboard refresh failed")
	} else {
		run.Status = domain.RunSucceeded
		logger.WithFields(logrus.Fields{
			"digest":   run.Digest,
			"duration": run.Duration().String(),
		}).Info("Dashboard refresh completed")
	}
	s.record(ctx, run, logger)

	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()
	return result, nil
}

func (s *DashboardService) refresh(ctx context.Context, run *domain.RunRecord, logger *logrus.Entry) (*Snapshot, error) {
	snap, fromCache, err := s.fetch(ctx, logger)
	if err != nil {
		return nil, err
	}

	asOf, err := s.settings.AsOf(run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("resolving as-of date: %w", err)
	}
	run.AsOf = asOf

	comp, err := s.pipeline.Compute(snap, Options{AsOf: asOf, EnrollmentGoal: s.settings.EnrollmentGoal})
	if err != nil {
		return nil, err
	}

	c := comp.Counts
	run.Candidates = c.Candidates
	run.Patients = c.Patients
	run.FollowUpRows = c.FollowUpRows
	run.NeedsExclusionDate = c.NeedsExclusionDate
	run.NeedsEnrollmentDate = c.NeedsEnrollmentDate
	run.UnparsableDates = c.UnparsableDates
	run.DiscardedDraws = c.DiscardedDraws
	run.Digest = comp.Digest

	return &Snapshot{
		RunID:      run.ID,
		Source:     run.Source,
		FromCache:  fromCache,
		ComputedAt: run.StartedAt,
		Digest:     comp.Digest,
		Dashboard:  comp.Dashboard,
	}, nil
}

// fetch loads a fresh snapshot and caches it, falling back to the cached
// copy when the source is unavailable.
func (s *DashboardService) fetch(ctx context.Context, logger *logrus.Entry) (*domain.Snapshot, bool, error) {
	key := cache.SnapshotKey(s.source.Name())

	snap, err := s.source.Fetch(ctx)
	if err == nil {
		if s.cache != nil {
			if cacheErr := s.cache.Set(ctx, key, snap, s.settings.CacheTTL); cacheErr != nil {
				logger.WithError(cacheErr).Warn("Failed to cache snapshot")
			}
		}
		return snap, false, nil
	}

	fetchErr := fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	if s.cache == nil || ctx.Err() != nil {
		return nil, false, fetchErr
	}
	cached, found, cacheErr := s.cache.Get(ctx, key)
	if cacheErr != nil {
		logger.WithError(cacheErr).Warn("Failed to read cached snapshot")
	}
	if !found {
		return nil, false, fetchErr
	}
	logger.WithError(err).WithField("fetched_at", cached.FetchedAt).Warn("Source unavailable, using cached snapshot")
	return cached, true, nil
}

func (s *DashboardService) record(ctx context.Context, run *domain.RunRecord, logger *logrus.Entry) {
	if s.ledger == nil {
		return
	}
	// Record even when the refresh was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.ledger.Record(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to record run in ledger")
	}
}

// Latest returns the most recent dashboard.
func (s *DashboardService) Latest() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, domain.ErrNoDashboard
	}
	return s.latest, nil
}

// Section returns one named section of the latest dashboard.
func (s *DashboardService) Section(name string) (interface{}, error) {
	latest, err := s.Latest()
	if err != nil {
		return nil, err
	}
	return latest.Dashboard.Section(name)
}

// Runs lists recent refreshes, newest first. It returns an empty list when
// no ledger is configured.
func (s *DashboardService) Runs(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if s.ledger == nil {
		return []*domain.RunRecord{}, nil
	}
	runs, err := s.ledger.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedger, err)
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}
	return runs, nil
}

// Run returns one recorded refresh.
func (s *DashboardService) Run(ctx context.Context, id string) (*domain.RunRecord, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	run, err := s.ledger.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedger, err)
	}
	return run, err
}

// Start refreshes on every tick until ctx is done. With refreshFirst set the
// first refresh runs immediately. Failed refreshes keep the previous
// dashboard.
func (s *DashboardService) Start(ctx context.Context, interval time.Duration, refreshFirst bool) {
	if refreshFirst {
		s.refreshQuietly(ctx)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.WithField("interval", interval.String()).Info("Periodic refresh started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Periodic refresh stopped")
			return
		case <-ticker.C:
			s.refreshQuietly(ctx)
		}
	}
}

func (s *DashboardService) refreshQuietly(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Debug("Keeping previous dashboard")
	}
}
