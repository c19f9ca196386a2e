package followup

import (
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/status"
)

// trackInput is what a rule sees when classifying one track.
type trackInput struct {
	patient *domain.Patient
	record  *domain.FollowUpRecord
	tp      domain.Timepoint
	window  *Window
	track   domain.Track
	asOf    time.Time
}

// Rule is one (predicate, resulting status) pair of a track classifier.
type Rule struct {
	Name   string
	Status domain.FollowUpStatus
	Match  func(in *trackInput) bool
}

var (
	ruleCompleted = Rule{Name: "completed", Status: domain.FollowUpCompleted, Match: func(in *trackInput) bool {
		for _, a := range in.tp.Assessments(in.track) {
			if in.record.Done(a.Key) {
				return true
			}
		}
		return false
	}}
	ruleDied = Rule{Name: "died", Status: domain.FollowUpDied, Match: func(in *trackInput) bool {
		return endedBeforeExit(in, (*domain.Patient).DeathDate)
	}}
	ruleWithdrew = Rule{Name: "withdrew", Status: domain.FollowUpWithdrew, Match: func(in *trackInput) bool {
		return endedBeforeExit(in, (*domain.Patient).WithdrawalDay)
	}}
	// A patient still in hospital is not classifiable yet.
	ruleHospitalized = Rule{Name: "hospitalized", Status: domain.FollowUpUndetermined, Match: func(in *trackInput) bool {
		return status.Current(in.patient) == domain.StatusStillInHospital
	}}
	ruleNotYetEligible = Rule{Name: "not_yet_eligible", Status: domain.FollowUpNotYetEligible, Match: func(in *trackInput) bool {
		return in.window != nil && !in.window.Opened(in.asOf)
	}}
	ruleRefused = Rule{Name: "refused", Status: domain.FollowUpRefused, Match: func(in *trackInput) bool {
		return in.track == domain.TrackPatient && in.record.RefusalReason == domain.PatientRefusalCode
	}}
	ruleEligible = Rule{Name: "eligible", Status: domain.FollowUpEligible, Match: func(in *trackInput) bool {
		return in.window.Opened(in.asOf)
	}}
	ruleNoCaregiver = Rule{Name: "no_caregiver", Status: domain.FollowUpNoCaregiver, Match: func(in *trackInput) bool {
		return !in.patient.CaregiverEligible
	}}
)

// PatientRules classifies the patient track, first match wins.
var PatientRules = []Rule{
	ruleCompleted,
	ruleDied,
	ruleWithdrew,
	ruleHospitalized,
	ruleNotYetEligible,
	ruleRefused,
	ruleEligible,
}

// CaregiverRules classifies the caregiver track. General-questions refusal
// is recorded for the patient only, so there is no refused rule.
var CaregiverRules = []Rule{
	ruleNoCaregiver,
	ruleCompleted,
	ruleDied,
	ruleWithdrew,
	ruleHospitalized,
	ruleNotYetEligible,
	ruleEligible,
}

// endedBeforeExit reports whether the terminal date happened during the
// index hospitalization or before the timepoint's window closed.
func endedBeforeExit(in *trackInput, date func(*domain.Patient) (time.Time, bool)) bool {
	d, ok := date(in.patient)
	if !ok {
		return false
	}
	discharge, discharged := in.patient.DischargeDate()
	if !discharged || !d.After(discharge) {
		return true
	}
	return in.window != nil && d.Before(in.window.Exit)
}

func classify(rules []Rule, in *trackInput) domain.FollowUpStatus {
	for _, r := range rules {
		if r.Match(in) {
			return r.Status
		}
	}
	return domain.FollowUpUnmapped
}

// TrackResult is the classification of one track at one timepoint.
type TrackResult struct {
	Status   domain.FollowUpStatus `json:"status"`
	Eligible bool                  `json:"eligible"`
	// Completed is nil when the track is not eligible.
	Completed *bool `json:"completed"`
	// Instruments holds per-assessment completion. For eligible tracks a
	// missing flag reads as not completed.
	Instruments map[string]*bool `json:"instruments"`
}

// Result is the evaluated follow-up state of one (patient, timepoint) row.
type Result struct {
	PatientID string      `json:"patient_id"`
	Timepoint string      `json:"timepoint"`
	Window    *Window     `json:"window,omitempty"`
	InWindow  bool        `json:"in_window"`
	Patient   TrackResult `json:"patient"`
	Caregiver TrackResult `json:"caregiver"`
}

// Track returns the result for the requested track.
func (r *Result) Track(track domain.Track) TrackResult {
	if track == domain.TrackCaregiver {
		return r.Caregiver
	}
	return r.Patient
}

// Engine classifies follow-up rows relative to an explicit as-of date.
type Engine struct {
	AsOf time.Time
}

// NewEngine creates an engine evaluating eligibility as of the given date.
func NewEngine(asOf time.Time) *Engine {
	return &Engine{AsOf: domain.Day(asOf)}
}

// Evaluate classifies both tracks of a row.
func (e *Engine) Evaluate(row Row) Result {
	window := WindowFor(row.Patient, row.Timepoint)
	res := Result{
		PatientID: row.Patient.ID,
		Timepoint: row.Timepoint.Label,
		Window:    window,
		InWindow:  window.Opened(e.AsOf),
	}
	for _, track := range []domain.Track{domain.TrackPatient, domain.TrackCaregiver} {
		in := &trackInput{
			patient: row.Patient,
			record:  &row.Record,
			tp:      row.Timepoint,
			window:  window,
			track:   track,
			asOf:    e.AsOf,
		}
		rules := PatientRules
		if track == domain.TrackCaregiver {
			rules = CaregiverRules
		}
		tr := e.trackResult(classify(rules, in), in)
		if track == domain.TrackCaregiver {
			res.Caregiver = tr
		} else {
			res.Patient = tr
		}
	}
	return res
}

func (e *Engine) trackResult(st domain.FollowUpStatus, in *trackInput) TrackResult {
	tr := TrackResult{
		Status:      st,
		Eligible:    st.Eligible(),
		Instruments: make(map[string]*bool),
	}
	if tr.Eligible {
		done := st == domain.FollowUpCompleted
		tr.Completed = &done
	}
	for _, a := range in.tp.Assessments(in.track) {
		v := in.record.Completed[a.Key]
		if v == nil && tr.Eligible {
			v = new(bool)
		}
		if v != nil {
			c := *v
			v = &c
		}
		tr.Instruments[a.Key] = v
	}
	return tr
}

// EvaluateAll evaluates every row in order.
func (e *Engine) EvaluateAll(rows []Row) []Result {
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, e.Evaluate(row))
	}
	return out
}
