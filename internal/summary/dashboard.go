// Package summary aggregates derived screening, status, specimen and
// follow-up outputs into the dashboard tables consumed by presentation.
package summary

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/followup"
	"github.com/trial-progress-dashboard/internal/normalize"
	"github.com/trial-progress-dashboard/internal/screening"
	"github.com/trial-progress-dashboard/internal/specimen"
	"github.com/trial-progress-dashboard/internal/status"
)

// Inputs are the derived outputs of one pipeline run.
type Inputs struct {
	AsOf           time.Time
	EnrollmentGoal int
	Candidates     []domain.Candidate
	Patients       []domain.Patient
	Flags          []screening.Flag
	Needs          screening.NeedsEntry
	Specimens      specimen.Result
	FollowUp       []followup.Result
	FollowUpGaps   followup.JoinGaps
	Reports        []normalize.Report
}

// Dashboard is every summary table of one run.
type Dashboard struct {
	AsOf        string            `json:"as_of"`
	Screening   ScreeningSection  `json:"screening"`
	InHospital  InHospitalSection `json:"in_hospital"`
	PreHospital []CompletionRate  `json:"pre_hospital"`
	Specimens   []specimen.Cell   `json:"specimens"`
	FollowUp    FollowUpSection   `json:"follow_up"`
	DataQuality DataQuality       `json:"data_quality"`
}

// ScreeningSection holds the screening and exclusion tables.
type ScreeningSection struct {
	Metrics    screening.Metrics             `json:"metrics"`
	Monthly    []screening.MonthlyCount      `json:"monthly"`
	Reasons    []screening.ReasonCount       `json:"reasons"`
	Categories map[domain.ReasonCategory]int `json:"categories"`
}

// InHospitalSection holds the status distribution and injury counts. Only
// patients with an enrollment date are counted, so Enrolled matches the
// screening total; the rest are listed under data quality.
type InHospitalSection struct {
	Enrolled     int                   `json:"enrolled"`
	Distribution []status.Distribution `json:"distribution"`
	Injuries     []InjuryCount         `json:"injuries"`
}

// InjuryCount is the number of patients with one injury category.
type InjuryCount struct {
	Code     int    `json:"code"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CompletionRate is one pre-hospital assessment completion proportion.
type CompletionRate struct {
	Key        string              `json:"key"`
	Assessment string              `json:"assessment"`
	Eligible   int                 `json:"eligible"`
	Completed  int                 `json:"completed"`
	Proportion float64             `json:"proportion"`
	Quality    domain.QualityLabel `json:"quality"`
}

// FollowUpSection holds the overall and per-instrument follow-up tables.
type FollowUpSection struct {
	Overall     []followup.TimepointSummary `json:"overall"`
	Instruments []followup.InstrumentRate   `json:"instruments"`
}

// DataQuality surfaces the noise recovered during the run.
type DataQuality struct {
	NeedsExclusionDate  []string           `json:"needs_exclusion_date"`
	NeedsEnrollmentDate []string           `json:"needs_enrollment_date"`
	UnmappedReasonCodes []int              `json:"unmapped_reason_codes"`
	UnmappedStatuses    int                `json:"unmapped_statuses"`
	UnmappedFollowUps   int                `json:"unmapped_follow_ups"`
	OrphanFollowUps     int                `json:"orphan_follow_ups"`
	DuplicateFollowUps  int                `json:"duplicate_follow_ups"`
	DiscardedDraws      int                `json:"discarded_draws"`
	DoubleDutyDraws     int                `json:"double_duty_draws"`
	Tables              []normalize.Report `json:"tables"`
}

// Build aggregates the run inputs into a dashboard. It derives nothing new:
// every number is a count or proportion over the inputs.
func Build(in Inputs) *Dashboard {
	reasons := screening.Cumulative(in.Candidates)
	enrolled := withEnrollmentDate(in.Patients)
	dist := status.Distribute(enrolled)

	d := &Dashboard{
		AsOf: domain.Day(in.AsOf).Format("2006-01-02"),
		Screening: ScreeningSection{
			Metrics:    screening.Summarize(in.Flags, in.EnrollmentGoal),
			Monthly:    screening.Monthly(in.Flags),
			Reasons:    reasons,
			Categories: screening.CategoryTotals(reasons),
		},
		InHospital: InHospitalSection{
			Enrolled:     len(enrolled),
			Distribution: dist,
			Injuries:     injuryCounts(enrolled),
		},
		PreHospital: PreHospitalRates(in.Patients),
		Specimens:   in.Specimens.Cells,
		FollowUp: FollowUpSection{
			Overall:     followup.Overall(in.FollowUp),
			Instruments: followup.InstrumentRates(in.FollowUp),
		},
	}

	dq := DataQuality{
		NeedsExclusionDate:  sortedIDs(in.Needs.ExclusionDate),
		NeedsEnrollmentDate: sortedIDs(in.Needs.EnrollmentDate),
		UnmappedReasonCodes: []int{},
		OrphanFollowUps:     in.FollowUpGaps.Orphans,
		DuplicateFollowUps:  in.FollowUpGaps.Duplicates,
		DiscardedDraws:      in.Specimens.Discarded,
		DoubleDutyDraws:     in.Specimens.Synthesized,
		Tables:              in.Reports,
	}
	for _, r := range reasons {
		if !r.Mapped {
			dq.UnmappedReasonCodes = append(dq.UnmappedReasonCodes, r.Code)
		}
	}
	for _, s := range dist {
		if s.Status == domain.StatusUnmapped {
			dq.UnmappedStatuses = s.Count
		}
	}
	for _, r := range in.FollowUp {
		if r.Patient.Status == domain.FollowUpUnmapped {
			dq.UnmappedFollowUps++
		}
		if r.Caregiver.Status == domain.FollowUpUnmapped {
			dq.UnmappedFollowUps++
		}
	}
	if dq.Tables == nil {
		dq.Tables = []normalize.Report{}
	}
	d.DataQuality = dq
	return d
}

// PreHospitalRates computes battery completion sorted by descending
// proportion. The attitude survey counts attitude-eligible patients only and
// the caregiver survey counts caregiver-eligible patients only. A missing
// flag reads as not completed; an assessment absent from every patient is
// left out.
func PreHospitalRates(patients []domain.Patient) []CompletionRate {
	out := make([]CompletionRate, 0, len(domain.PreHospitalBattery))
	for _, a := range domain.PreHospitalBattery {
		rate := CompletionRate{Key: a.Key, Assessment: a.Label}
		present := false
		for i := range patients {
			p := &patients[i]
			v, ok := p.PreHospital[a.Key]
			present = present || ok
			switch a.Key {
			case domain.AssessmentAttitude:
				if !p.AttitudeEligible {
					continue
				}
			case domain.AssessmentCaregiverSurvey:
				if !p.CaregiverEligible {
					continue
				}
			}
			rate.Eligible++
			if v != nil && *v {
				rate.Completed++
			}
		}
		if !present {
			continue
		}
		if rate.Eligible > 0 {
			rate.Proportion = float64(rate.Completed) / float64(rate.Eligible)
		}
		rate.Quality = domain.GradeCompletion(rate.Proportion)
		out = append(out, rate)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Proportion > out[j].Proportion
	})
	return out
}

func injuryCounts(patients []domain.Patient) []InjuryCount {
	counts := make(map[int]int)
	for code := range domain.InjuryCategories {
		counts[code] = 0
	}
	for i := range patients {
		for code, set := range patients[i].Injuries {
			if set {
				counts[code]++
			}
		}
	}
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	out := make([]InjuryCount, 0, len(codes))
	for _, code := range codes {
		label, ok := domain.InjuryCategories[code]
		if !ok {
			label = fmt.Sprintf("unmapped injury code %d", code)
		}
		out = append(out, InjuryCount{Code: code, Category: label, Count: counts[code]})
	}
	return out
}

func withEnrollmentDate(patients []domain.Patient) []domain.Patient {
	out := make([]domain.Patient, 0, len(patients))
	for i := range patients {
		if _, ok := patients[i].EnrollmentDate(); ok {
			out = append(out, patients[i])
		}
	}
	return out
}

func sortedIDs(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

// Digest returns the SHA-256 of the dashboard's JSON encoding. Two runs over
// the same snapshot produce the same digest.
func Digest(d *Dashboard) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode dashboard: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
