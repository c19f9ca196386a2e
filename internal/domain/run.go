package domain

import (
	"context"
	"time"
)

// RunStatus is the outcome of one dashboard refresh.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one ledger row describing a dashboard refresh. The digest is
// the SHA-256 of the dashboard JSON, so reruns over an unchanged snapshot
// can be checked for identical output.
type RunRecord struct {
	ID                  string    `json:"id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	AsOf                time.Time `json:"as_of"`
	Source              string    `json:"source"`
	Status              RunStatus `json:"status"`
	Error               string    `json:"error,omitempty"`
	Candidates          int       `json:"candidates"`
	Patients            int       `json:"patients"`
	FollowUpRows        int       `json:"follow_up_rows"`
	NeedsExclusionDate  int       `json:"needs_exclusion_date"`
	NeedsEnrollmentDate int       `json:"needs_enrollment_date"`
	UnparsableDates     int       `json:"unparsable_dates"`
	DiscardedDraws      int       `json:"discarded_draws"`
	Digest              string    `json:"digest,omitempty"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunLedger persists refresh runs.
type RunLedger interface {
	Record(ctx context.Context, run *RunRecord) error
	Get(ctx context.Context, id string) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}
