// Package specimen evaluates blood specimen collection compliance against
// the day-indexed collection schedule.
package specimen

import (
	"regexp"

	"github.com/trial-progress-dashboard/internal/domain"
)

var dischargeMention = regexp.MustCompile(`(?i)\b(discharge[ds]?|d/c|dc)\b`)

// IsDoubleDuty reports whether a draw description says the scheduled draw
// also served as the discharge collection.
func IsDoubleDuty(description string) bool {
	return dischargeMention.MatchString(description)
}

// ExpandDoubleDuty returns draws plus a synthesized Discharge draw for every
// drawn Day 5 tube whose description says it also served as the discharge
// collection. A tube already drawn at Discharge is not duplicated; a blank
// Discharge draw does not count as drawn. The number of synthesized draws is
// returned.
func ExpandDoubleDuty(draws []domain.SpecimenDraw) ([]domain.SpecimenDraw, int) {
	type key struct {
		patient string
		tube    domain.TubeColor
	}
	logged := make(map[key]bool)
	for i := range draws {
		d := &draws[i]
		if d.Event == domain.SpecimenDischarge && d.Drawn() {
			logged[key{d.PatientID, d.Tube}] = true
		}
	}

	out := make([]domain.SpecimenDraw, 0, len(draws))
	out = append(out, draws...)
	synthesized := 0
	for i := range draws {
		d := draws[i]
		if d.Event != domain.SpecimenDay5 || !d.Drawn() || !IsDoubleDuty(d.Description) {
			continue
		}
		k := key{d.PatientID, d.Tube}
		if logged[k] {
			continue
		}
		logged[k] = true
		d.Event = domain.SpecimenDischarge
		out = append(out, d)
		synthesized++
	}
	return out, synthesized
}

// Expected returns the collection events a patient was expected to attend.
// Day N is expected when study day N was spent in hospital or was the
// transition day. Discharge is expected on the discharge date unless the
// patient was already deceased or withdrawn that day.
func Expected(p *domain.Patient, timeline []domain.TimelineDay) map[domain.SpecimenEvent]bool {
	out := make(map[domain.SpecimenEvent]bool)
	discharge, discharged := p.DischargeDate()
	for _, slot := range domain.CollectionSchedule {
		for _, day := range timeline {
			if slot.StudyDay > 0 {
				if day.StudyDay != slot.StudyDay {
					continue
				}
				if day.Status == domain.DayInHospital || day.TransitionDay {
					out[slot.Event] = true
				}
				break
			}
			if discharged && day.Date.Equal(discharge) {
				if day.Status != domain.DayDeceased && day.Status != domain.DayWithdrawn {
					out[slot.Event] = true
				}
				break
			}
		}
	}
	return out
}

// Cell is compliance for one (event, tube) pair of the schedule.
type Cell struct {
	Event      domain.SpecimenEvent `json:"event"`
	Tube       domain.TubeColor     `json:"tube"`
	Eligible   int                  `json:"eligible"`
	Compliant  int                  `json:"compliant"`
	Proportion float64              `json:"proportion"`
}

// Result is the specimen compliance table plus the noise it absorbed.
type Result struct {
	Cells       []Cell `json:"cells"`
	Discarded   int    `json:"discarded_draws"`
	Synthesized int    `json:"double_duty_draws"`
}

// Cell returns the cell for (event, tube), if the schedule defines one.
func (r *Result) Cell(event domain.SpecimenEvent, tube domain.TubeColor) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Event == event && c.Tube == tube {
			return c, true
		}
	}
	return Cell{}, false
}

// Compliance joins draws onto each patient's expected events. Cells exist
// only for tubes the schedule expects at an event, so an unexpected tube is
// never counted as non-compliant. Draws with a quantity logged against an
// event the patient was not expected at are discarded and counted.
func Compliance(patients []domain.Patient, timelines map[string][]domain.TimelineDay, draws []domain.SpecimenDraw) Result {
	expanded, synthesized := ExpandDoubleDuty(draws)

	type drawKey struct {
		patient string
		event   domain.SpecimenEvent
		tube    domain.TubeColor
	}
	expected := make(map[string]map[domain.SpecimenEvent]bool, len(timelines))
	for i := range patients {
		p := &patients[i]
		if tl, ok := timelines[p.ID]; ok {
			expected[p.ID] = Expected(p, tl)
		}
	}

	drawn := make(map[drawKey]bool)
	res := Result{Synthesized: synthesized}
	for _, d := range expanded {
		if !d.Drawn() {
			continue
		}
		if !expected[d.PatientID][d.Event] {
			res.Discarded++
			continue
		}
		drawn[drawKey{d.PatientID, d.Event, d.Tube}] = true
	}

	for _, slot := range domain.CollectionSchedule {
		for _, tube := range domain.TubeColors {
			if !slot.Expects(tube) {
				continue
			}
			cell := Cell{Event: slot.Event, Tube: tube}
			for i := range patients {
				id := patients[i].ID
				if !expected[id][slot.Event] {
					continue
				}
				cell.Eligible++
				if drawn[drawKey{id, slot.Event, tube}] {
					cell.Compliant++
				}
			}
			if cell.Eligible > 0 {
				cell.Proportion = float64(cell.Compliant) / float64(cell.Eligible)
			}
			res.Cells = append(res.Cells, cell)
		}
	}
	return res
}
