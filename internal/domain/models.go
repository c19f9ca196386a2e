package domain

import (
	"time"
)

// Candidate is a screened person who was excluded from enrollment.
type Candidate struct {
	ID            string        `json:"id"`
	ExclusionDate *time.Time    `json:"exclusion_date,omitempty"`
	Reasons       map[int]*bool `json:"reasons"` // reason code -> flag, nil when not recorded
}

// HasReason reports whether the reason flag is set to true.
func (c *Candidate) HasReason(code int) bool {
	v, ok := c.Reasons[code]
	return ok && v != nil && *v
}

// Patient is an enrolled study participant.
type Patient struct {
	ID                   string           `json:"id"`
	EnrolledAt           *time.Time       `json:"enrolled_at,omitempty"`
	DiedAt               *time.Time       `json:"died_at,omitempty"`
	DischargedAt         *time.Time       `json:"discharged_at,omitempty"`
	WithdrawalDate       *time.Time       `json:"withdrawal_date,omitempty"`
	WithdrawalReason     string           `json:"withdrawal_reason,omitempty"`
	CaregiverAvailReason string           `json:"caregiver_avail_reason,omitempty"`
	Injuries             map[int]bool     `json:"injuries,omitempty"`
	PreHospital          map[string]*bool `json:"pre_hospital,omitempty"`
	AttitudeEligible     bool             `json:"attitude_eligible"`
	CaregiverEligible    bool             `json:"caregiver_eligible"`
}

// EnrollmentDate returns the calendar date of enrollment.
func (p *Patient) EnrollmentDate() (time.Time, bool) {
	return DateOf(p.EnrolledAt)
}

// DeathDate returns the calendar date of death.
func (p *Patient) DeathDate() (time.Time, bool) {
	return DateOf(p.DiedAt)
}

// DischargeDate returns the calendar date of hospital discharge.
func (p *Patient) DischargeDate() (time.Time, bool) {
	return DateOf(p.DischargedAt)
}

// WithdrawalDay returns the calendar date of study withdrawal.
func (p *Patient) WithdrawalDay() (time.Time, bool) {
	return DateOf(p.WithdrawalDate)
}

// TimelineDay is one calendar day of a patient's 30-day in-hospital window.
type TimelineDay struct {
	PatientID     string    `json:"patient_id"`
	StudyDay      int       `json:"study_day"`
	Date          time.Time `json:"date"`
	Status        DayStatus `json:"status"`
	TransitionDay bool      `json:"transition_day"`
}

// SpecimenDraw is one logged tube collection.
type SpecimenDraw struct {
	PatientID   string        `json:"patient_id"`
	Event       SpecimenEvent `json:"event"`
	Tube        TubeColor     `json:"tube"`
	Quantity    *float64      `json:"quantity,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Drawn reports whether a positive quantity was recorded.
func (d *SpecimenDraw) Drawn() bool {
	return d.Quantity != nil && *d.Quantity > 0
}

// FollowUpRecord holds the assessments captured for one patient at one
// timepoint. Missing follow-up is represented by a record with empty maps.
type FollowUpRecord struct {
	PatientID     string                `json:"patient_id"`
	Timepoint     string                `json:"timepoint"`
	Completed     map[string]*bool      `json:"completed"`
	CompletedOn   map[string]*time.Time `json:"completed_on,omitempty"`
	RefusalReason string                `json:"refusal_reason,omitempty"`
}

// Done reports whether the assessment is marked complete.
func (r *FollowUpRecord) Done(key string) bool {
	v, ok := r.Completed[key]
	return ok && v != nil && *v
}

// DateOf truncates an optional timestamp to its calendar date in UTC.
func DateOf(t *time.Time) (time.Time, bool) {
	if t == nil || t.IsZero() {
		return time.Time{}, false
	}
	return Day(*t), true
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
