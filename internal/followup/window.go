// Package followup materializes the patient x timepoint follow-up grid,
// computes eligibility windows and classifies each follow-up track.
package followup

import (
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Window is the [Entry, Exit] date range in which a timepoint is due.
type Window struct {
	Entry time.Time `json:"entry"`
	Exit  time.Time `json:"exit"`
}

// WindowFor computes the timepoint window from the discharge date. A patient
// without a discharge date has no window.
func WindowFor(p *domain.Patient, tp domain.Timepoint) *Window {
	discharge, ok := p.DischargeDate()
	if !ok {
		return nil
	}
	entry := discharge.AddDate(0, 0, tp.EntryOffset)
	return &Window{
		Entry: entry,
		Exit:  entry.AddDate(0, 0, tp.WindowDays),
	}
}

// Opened reports whether the window has been entered as of the given date.
func (w *Window) Opened(asOf time.Time) bool {
	return w != nil && !domain.Day(asOf).Before(w.Entry)
}

// Row is one materialized (patient, timepoint) pair.
type Row struct {
	Patient   *domain.Patient
	Timepoint domain.Timepoint
	Record    domain.FollowUpRecord
}

// JoinGaps counts follow-up records the dense join could not place.
type JoinGaps struct {
	Orphans    int `json:"orphan_follow_ups"`
	Duplicates int `json:"duplicate_follow_ups"`
}

// Materialize builds the dense cross product of patients and timepoints so
// that missing follow-up is an explicit row with an empty record. Rows are
// ordered by patient, then by timepoint schedule order.
func Materialize(patients []domain.Patient, records []domain.FollowUpRecord) []Row {
	rows, _ := Join(patients, records)
	return rows
}

// Join is Materialize that also reports the records it set aside: records
// for a patient missing from the enrolled set are orphans, and a repeated
// (patient, timepoint) record is a duplicate. The first record of a pair is
// kept.
func Join(patients []domain.Patient, records []domain.FollowUpRecord) ([]Row, JoinGaps) {
	type key struct {
		patient   string
		timepoint string
	}
	enrolled := make(map[string]bool, len(patients))
	for i := range patients {
		enrolled[patients[i].ID] = true
	}

	var gaps JoinGaps
	byKey := make(map[key]domain.FollowUpRecord, len(records))
	for _, r := range records {
		if !enrolled[r.PatientID] {
			gaps.Orphans++
			continue
		}
		k := key{r.PatientID, r.Timepoint}
		if _, dup := byKey[k]; dup {
			gaps.Duplicates++
			continue
		}
		byKey[k] = r
	}

	rows := make([]Row, 0, len(patients)*len(domain.FollowUpSchedule))
	for i := range patients {
		p := &patients[i]
		for _, tp := range domain.FollowUpSchedule {
			rec, ok := byKey[key{p.ID, tp.Label}]
			if !ok {
				rec = domain.FollowUpRecord{
					PatientID:   p.ID,
					Timepoint:   tp.Label,
					Completed:   map[string]*bool{},
					CompletedOn: map[string]*time.Time{},
				}
			}
			rows = append(rows, Row{Patient: p, Timepoint: tp, Record: rec})
		}
	}
	return rows, gaps
}
