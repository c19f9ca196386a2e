// Package domain contains the core entities, vocabularies and status types for
// the trial progress dashboard: screening candidates, enrolled patients,
// per-day timelines, specimen draws and follow-up records.
//
// All derived values are recomputed from a full data snapshot on every run.
// Nothing in this package talks to the data capture platform directly.
package domain

import (
	"errors"
)

// CurrentStatus is the single in-hospital status of an enrolled patient as of
// the data snapshot.
type CurrentStatus string

const (
	StatusDischargedAlive CurrentStatus = "Discharged alive"
	StatusDiedInHospital  CurrentStatus = "Died in hospital"
	StatusWithdrew        CurrentStatus = "Withdrew in hospital"
	StatusStillInHospital CurrentStatus = "Still in hospital"
	// StatusUnmapped is returned when no status rule matched. It must be
	// visible in output so data-entry drift is caught.
	StatusUnmapped CurrentStatus = "Unmapped"
)

// CurrentStatusLevels lists the in-hospital status levels in display order.
var CurrentStatusLevels = []CurrentStatus{
	StatusStillInHospital,
	StatusDischargedAlive,
	StatusDiedInHospital,
	StatusWithdrew,
}

// String returns the display label.
func (s CurrentStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the mapped levels.
func (s CurrentStatus) IsValid() bool {
	switch s {
	case StatusDischargedAlive, StatusDiedInHospital, StatusWithdrew, StatusStillInHospital:
		return true
	default:
		return false
	}
}

// DayStatus is the per-day study status on a patient's timeline.
type DayStatus string

const (
	DayInHospital DayStatus = "In hospital"
	DayDeceased   DayStatus = "Deceased"
	DayDischarged DayStatus = "Discharged"
	DayWithdrawn  DayStatus = "Withdrawn"
)

// Terminal reports whether the day status ends active in-hospital follow.
func (s DayStatus) Terminal() bool {
	return s != DayInHospital
}

// FollowUpStatus classifies one (patient, timepoint) follow-up track.
type FollowUpStatus string

const (
	FollowUpCompleted      FollowUpStatus = "Completed"
	FollowUpDied           FollowUpStatus = "Died before follow-up window ended"
	FollowUpWithdrew       FollowUpStatus = "Withdrew before follow-up window ended"
	FollowUpNotYetEligible FollowUpStatus = "Not yet eligible"
	FollowUpRefused        FollowUpStatus = "Refused"
	FollowUpEligible       FollowUpStatus = "Eligible, not yet assessed"
	FollowUpNoCaregiver    FollowUpStatus = "No caregiver available"
	// FollowUpUndetermined marks a patient who is still in hospital. The
	// track is not classifiable and is left out of every denominator.
	FollowUpUndetermined FollowUpStatus = ""
	FollowUpUnmapped     FollowUpStatus = "Unmapped"
)

// Eligible reports whether the status counts toward the follow-up
// denominator.
func (s FollowUpStatus) Eligible() bool {
	switch s {
	case FollowUpCompleted, FollowUpRefused, FollowUpEligible:
		return true
	default:
		return false
	}
}

// Defined reports whether the status carries a value.
func (s FollowUpStatus) Defined() bool {
	return s != FollowUpUndetermined
}

// ReasonCategory buckets exclusion reasons for the cumulative summary.
type ReasonCategory string

const (
	CategoryPatient  ReasonCategory = "Patient characteristics"
	CategoryConsent  ReasonCategory = "Informed consent/research"
	CategoryOther    ReasonCategory = "Other"
	CategoryUnmapped ReasonCategory = "Unmapped"
)

// QualityLabel grades a completion proportion for display.
type QualityLabel string

const (
	QualityExcellent QualityLabel = "Excellent"
	QualityOkay      QualityLabel = "Okay"
	QualityUhOh      QualityLabel = "Uh-oh"
)

// GradeCompletion maps a proportion onto the three display grades.
func GradeCompletion(p float64) QualityLabel {
	switch {
	case p > 0.9:
		return QualityExcellent
	case p > 0.8:
		return QualityOkay
	default:
		return QualityUhOh
	}
}

// Track distinguishes the patient and caregiver follow-up batteries.
type Track string

const (
	TrackPatient   Track = "patient"
	TrackCaregiver Track = "caregiver"
)

// Sentinel errors
var (
	ErrNotFound          = errors.New("not found")
	ErrNoEnrollment      = errors.New("patient has no enrollment date")
	ErrNoDashboard       = errors.New("no dashboard has been computed yet")
	ErrUnknownSource     = errors.New("unknown snapshot source")
	ErrSourceUnavailable = errors.New("snapshot source unavailable")
	ErrInvalidSummary    = errors.New("invalid summary table")
	ErrLedger            = errors.New("run ledger failure")
)
