package followup

import (
	"github.com/trial-progress-dashboard/internal/domain"
)

// TrackTotals is the eligible and completed count for one track.
type TrackTotals struct {
	Eligible   int     `json:"eligible"`
	Completed  int     `json:"completed"`
	Proportion float64 `json:"proportion"`
}

func (t *TrackTotals) add(tr TrackResult) {
	if !tr.Eligible {
		return
	}
	t.Eligible++
	if tr.Completed != nil && *tr.Completed {
		t.Completed++
	}
	t.Proportion = float64(t.Completed) / float64(t.Eligible)
}

// TimepointSummary is one row of the overall follow-up completion table.
type TimepointSummary struct {
	Timepoint string         `json:"timepoint"`
	Patient   TrackTotals    `json:"patient"`
	Caregiver TrackTotals    `json:"caregiver"`
	Statuses  map[string]int `json:"statuses"`
}

// Overall summarizes eligibility and completion per timepoint in schedule
// order. Statuses counts patient-track statuses by label.
func Overall(results []Result) []TimepointSummary {
	byLabel := make(map[string]*TimepointSummary, len(domain.FollowUpSchedule))
	out := make([]TimepointSummary, len(domain.FollowUpSchedule))
	for i, tp := range domain.FollowUpSchedule {
		out[i] = TimepointSummary{Timepoint: tp.Label, Statuses: make(map[string]int)}
		byLabel[tp.Label] = &out[i]
	}
	for _, r := range results {
		s, ok := byLabel[r.Timepoint]
		if !ok {
			continue
		}
		s.Patient.add(r.Patient)
		s.Caregiver.add(r.Caregiver)
		s.Statuses[StatusLabel(r.Patient.Status)]++
	}
	return out
}

// StatusLabel is the display label of a follow-up status.
func StatusLabel(s domain.FollowUpStatus) string {
	if !s.Defined() {
		return "Undetermined (in hospital)"
	}
	return string(s)
}

// InstrumentRate is completion of one instrument among attempted tracks.
type InstrumentRate struct {
	Timepoint  string       `json:"timepoint"`
	Track      domain.Track `json:"track"`
	Key        string       `json:"key"`
	Label      string       `json:"label"`
	Attempted  int          `json:"attempted"`
	Completed  int          `json:"completed"`
	Proportion float64      `json:"proportion"`
}

// InstrumentRates computes per-instrument completion over tracks whose
// overall assessment was completed, so that patients who were never reached
// do not dilute the instrument rates.
func InstrumentRates(results []Result) []InstrumentRate {
	type key struct {
		timepoint string
		track     domain.Track
	}
	attempted := make(map[key][]TrackResult)
	for _, r := range results {
		for _, track := range []domain.Track{domain.TrackPatient, domain.TrackCaregiver} {
			tr := r.Track(track)
			if tr.Completed == nil || !*tr.Completed {
				continue
			}
			k := key{r.Timepoint, track}
			attempted[k] = append(attempted[k], tr)
		}
	}

	var out []InstrumentRate
	for _, tp := range domain.FollowUpSchedule {
		for _, track := range []domain.Track{domain.TrackPatient, domain.TrackCaregiver} {
			trs := attempted[key{tp.Label, track}]
			for _, a := range tp.Assessments(track) {
				rate := InstrumentRate{
					Timepoint: tp.Label,
					Track:     track,
					Key:       a.Key,
					Label:     a.Label,
					Attempted: len(trs),
				}
				for _, tr := range trs {
					if v := tr.Instruments[a.Key]; v != nil && *v {
						rate.Completed++
					}
				}
				if rate.Attempted > 0 {
					rate.Proportion = float64(rate.Completed) / float64(rate.Attempted)
				}
				out = append(out, rate)
			}
		}
	}
	return out
}
