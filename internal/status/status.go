// Package status derives each enrolled patient's in-hospital status and the
// day-by-day timeline used by specimen compliance.
package status

import (
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Rule is one (predicate, resulting status) pair. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Name   string
	Status domain.CurrentStatus
	Match  func(p *domain.Patient) bool
}

// CurrentRules is the current-status precedence. Discharge presence wins
// over an earlier death date; corrections to the death record are made by
// clearing the discharge date, not by temporal ordering.
var CurrentRules = []Rule{
	{Name: "discharged", Status: domain.StatusDischargedAlive, Match: func(p *domain.Patient) bool {
		_, ok := p.DischargeDate()
		return ok
	}},
	{Name: "died", Status: domain.StatusDiedInHospital, Match: func(p *domain.Patient) bool {
		_, ok := p.DeathDate()
		return ok
	}},
	{Name: "withdrew", Status: domain.StatusWithdrew, Match: func(p *domain.Patient) bool {
		_, ok := p.WithdrawalDay()
		return ok
	}},
	{Name: "admitted", Status: domain.StatusStillInHospital, Match: func(p *domain.Patient) bool {
		return !hasTerminal(p)
	}},
}

// Current returns the patient's single current status, or StatusUnmapped
// when no rule matched.
func Current(p *domain.Patient) domain.CurrentStatus {
	return evaluate(CurrentRules, p)
}

func evaluate(rules []Rule, p *domain.Patient) domain.CurrentStatus {
	for _, r := range rules {
		if r.Match(p) {
			return r.Status
		}
	}
	return domain.StatusUnmapped
}

func hasTerminal(p *domain.Patient) bool {
	_, died := p.DeathDate()
	_, discharged := p.DischargeDate()
	_, withdrew := p.WithdrawalDay()
	return died || discharged || withdrew
}

// dayRule maps a terminal date reached on or before a timeline day onto a
// per-day status.
type dayRule struct {
	status domain.DayStatus
	date   func(p *domain.Patient) (time.Time, bool)
}

// dayRules holds the per-day precedence: death over discharge over
// withdrawal. This deliberately differs from CurrentRules.
var dayRules = []dayRule{
	{status: domain.DayDeceased, date: (*domain.Patient).DeathDate},
	{status: domain.DayDischarged, date: (*domain.Patient).DischargeDate},
	{status: domain.DayWithdrawn, date: (*domain.Patient).WithdrawalDay},
}

// DayStatus returns the study status on the given calendar date.
func DayStatus(p *domain.Patient, day time.Time) domain.DayStatus {
	day = domain.Day(day)
	for _, r := range dayRules {
		if d, ok := r.date(p); ok && !d.After(day) {
			return r.status
		}
	}
	return domain.DayInHospital
}

// IsTransition reports whether the date equals any terminal-event date.
func IsTransition(p *domain.Patient, day time.Time) bool {
	day = domain.Day(day)
	for _, r := range dayRules {
		if d, ok := r.date(p); ok && d.Equal(day) {
			return true
		}
	}
	return false
}

// Timeline projects the patient's first domain.TimelineDays calendar days
// starting at the enrollment date. A patient without an enrollment date has
// no timeline and ErrNoEnrollment is returned.
func Timeline(p *domain.Patient) ([]domain.TimelineDay, error) {
	start, ok := p.EnrollmentDate()
	if !ok {
		return nil, domain.ErrNoEnrollment
	}
	days := make([]domain.TimelineDay, 0, domain.TimelineDays)
	for i := 0; i < domain.TimelineDays; i++ {
		date := start.AddDate(0, 0, i)
		days = append(days, domain.TimelineDay{
			PatientID:     p.ID,
			StudyDay:      i + 1,
			Date:          date,
			Status:        DayStatus(p, date),
			TransitionDay: IsTransition(p, date),
		})
	}
	return days, nil
}

// Timelines builds the timelines of every patient with an enrollment date,
// keyed by patient id, and returns the ids of patients that were skipped.
func Timelines(patients []domain.Patient) (map[string][]domain.TimelineDay, []string) {
	out := make(map[string][]domain.TimelineDay, len(patients))
	var missing []string
	for i := range patients {
		days, err := Timeline(&patients[i])
		if err != nil {
			missing = append(missing, patients[i].ID)
			continue
		}
		out[patients[i].ID] = days
	}
	return out, missing
}

// Distribution counts current statuses in display order. Unmapped is
// appended only when at least one patient hit it.
type Distribution struct {
	Status domain.CurrentStatus `json:"status"`
	Count  int                  `json:"count"`
}

// Distribute counts the current status of every patient.
func Distribute(patients []domain.Patient) []Distribution {
	counts := make(map[domain.CurrentStatus]int)
	for i := range patients {
		counts[Current(&patients[i])]++
	}
	out := make([]Distribution, 0, len(domain.CurrentStatusLevels)+1)
	for _, s := range domain.CurrentStatusLevels {
		out = append(out, Distribution{Status: s, Count: counts[s]})
	}
	if n := counts[domain.StatusUnmapped]; n > 0 {
		out = append(out, Distribution{Status: domain.StatusUnmapped, Count: n})
	}
	return out
}
