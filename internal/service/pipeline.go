package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/followup"
	"github.com/trial-progress-dashboard/internal/normalize"
	"github.com/trial-progress-dashboard/internal/screening"
	"github.com/trial-progress-dashboard/internal/specimen"
	"github.com/trial-progress-dashboard/internal/status"
	"github.com/trial-progress-dashboard/internal/summary"
)

// Options are the study constants of one computation.
type Options struct {
	AsOf           time.Time
	EnrollmentGoal int
}

// Computation is the outcome of one pass over a snapshot.
type Computation struct {
	Dashboard *summary.Dashboard
	Digest    string
	Counts    Counts
}

// Counts are the ledger counters of a computation.
type Counts struct {
	Candidates          int
	Patients            int
	FollowUpRows        int
	NeedsExclusionDate  int
	NeedsEnrollmentDate int
	UnparsableDates     int
	DiscardedDraws      int
}

// Pipeline derives a dashboard from a raw snapshot. It holds no state
// between runs.
type Pipeline struct {
	logger *logrus.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{logger: logger}
}

// Compute normalizes the snapshot and derives every summary table. A missing
// required column halts the run; per-record noise is counted instead.
func (p *Pipeline) Compute(snap *domain.Snapshot, opts Options) (*Computation, error) {
	if opts.AsOf.IsZero() {
		return nil, fmt.Errorf("as-of date is required")
	}
	if opts.EnrollmentGoal <= 0 {
		opts.EnrollmentGoal = domain.DefaultEnrollmentGoal
	}

	// Step 1: normalize the three record sets
	exclusion, exRep, err := normalize.Normalize(domain.TableExclusion, snap.Table(domain.TableExclusion), domain.FieldScreenID)
	if err != nil {
		return nil, fmt.Errorf("normalizing exclusion records: %w", err)
	}
	hospital, hospRep, err := normalize.Normalize(domain.TableInHospital, snap.Table(domain.TableInHospital), domain.FieldRecordID)
	if err != nil {
		return nil, fmt.Errorf("normalizing in-hospital records: %w", err)
	}
	follow, fuRep, err := normalize.Normalize(domain.TableFollowUp, snap.Table(domain.TableFollowUp), domain.FieldRecordID)
	if err != nil {
		return nil, fmt.Errorf("normalizing follow-up records: %w", err)
	}
	reports := []normalize.Report{exRep, hospRep, fuRep}

	// Step 2: extract entities
	candidates, err := normalize.Candidates(exclusion)
	if err != nil {
		return nil, err
	}
	patients, err := normalize.Patients(hospital)
	if err != nil {
		return nil, err
	}
	draws, err := normalize.SpecimenDraws(hospital)
	if err != nil {
		return nil, err
	}
	records, err := normalize.FollowUps(follow)
	if err != nil {
		return nil, err
	}

	// Step 3: screening flags and per-patient timelines
	flags, needs := screening.Flags(candidates, patients)
	timelines, noEnrollment := status.Timelines(patients)
	if len(noEnrollment) > 0 {
		p.logger.WithField("patients", noEnrollment).Warn("Patients without an enrollment date have no timeline")
	}

	// Step 4: specimen compliance and follow-up eligibility
	specimens := specimen.Compliance(patients, timelines, draws)
	rows, gaps := followup.Join(patients, records)
	if gaps != (followup.JoinGaps{}) {
		p.logger.WithFields(logrus.Fields{
			"orphans":    gaps.Orphans,
			"duplicates": gaps.Duplicates,
		}).Warn("Follow-up records left out of the patient grid")
	}
	results := followup.NewEngine(opts.AsOf).EvaluateAll(rows)

	// Step 5: aggregate
	dash := summary.Build(summary.Inputs{
		AsOf:           opts.AsOf,
		EnrollmentGoal: opts.EnrollmentGoal,
		Candidates:     candidates,
		Patients:       patients,
		Flags:          flags,
		Needs:          needs,
		Specimens:      specimens,
		FollowUp:       results,
		FollowUpGaps:   gaps,
		Reports:        reports,
	})
	digest, err := summary.Digest(dash)
	if err != nil {
		return nil, err
	}

	counts := Counts{
		Candidates:          len(candidates),
		Patients:            len(patients),
		FollowUpRows:        len(rows),
		NeedsExclusionDate:  len(needs.ExclusionDate),
		NeedsEnrollmentDate: len(needs.EnrollmentDate),
		DiscardedDraws:      specimens.Discarded,
	}
	for _, r := range reports {
		counts.UnparsableDates += r.Unparsable
	}

	p.logger.WithFields(logrus.Fields{
		"as_of":           dash.AsOf,
		"candidates":      counts.Candidates,
		"patients":        counts.Patients,
		"follow_up_rows":  counts.FollowUpRows,
		"unparsable":      counts.UnparsableDates,
		"discarded_draws": counts.DiscardedDraws,
		"digest":          digest,
	}).Info("Dashboard computed")

	return &Computation{Dashboard: dash, Digest: digest, Counts: counts}, nil
}
