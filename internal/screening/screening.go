// Package screening aggregates screening, approach, refusal and enrollment
// flags and the exclusion reason summaries.
package screening

import (
	"sort"
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Flag is one screened person in the month they were excluded or enrolled.
type Flag struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Screened   bool      `json:"screened"`
	Approached bool      `json:"approached"`
	Refused    bool      `json:"refused"`
	Enrolled   bool      `json:"enrolled"`
}

// NeedsEntry lists records held out of the time series for missing dates.
type NeedsEntry struct {
	ExclusionDate  []string `json:"needs_exclusion_date"`
	EnrollmentDate []string `json:"needs_enrollment_date"`
}

// Flags unions excluded candidates and enrolled patients into one flag
// table. Records without their date are returned in NeedsEntry instead.
func Flags(candidates []domain.Candidate, patients []domain.Patient) ([]Flag, NeedsEntry) {
	var (
		flags []Flag
		needs NeedsEntry
	)
	for i := range candidates {
		c := &candidates[i]
		d, ok := domain.DateOf(c.ExclusionDate)
		if !ok {
			needs.ExclusionDate = append(needs.ExclusionDate, c.ID)
			continue
		}
		refused := c.HasReason(domain.RefusalReasonCode)
		flags = append(flags, Flag{
			ID:         c.ID,
			Date:       d,
			Screened:   true,
			Approached: refused,
			Refused:    refused,
		})
	}
	for i := range patients {
		p := &patients[i]
		d, ok := p.EnrollmentDate()
		if !ok {
			needs.EnrollmentDate = append(needs.EnrollmentDate, p.ID)
			continue
		}
		flags = append(flags, Flag{
			ID:         p.ID,
			Date:       d,
			Screened:   true,
			Approached: true,
			Enrolled:   true,
		})
	}
	return flags, needs
}

// MonthlyCount sums the four flags for one calendar month.
type MonthlyCount struct {
	Key        string `json:"key"`   // YYYY-MM
	Label      string `json:"label"` // Jan 2024
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Screened   int    `json:"screened"`
	Approached int    `json:"approached"`
	Refused    int    `json:"refused"`
	Enrolled   int    `json:"enrolled"`
}

// Monthly groups flags by numeric (year, month) and returns them in
// chronological order.
func Monthly(flags []Flag) []MonthlyCount {
	byMonth := make(map[int]*MonthlyCount)
	for _, f := range flags {
		y, m, _ := f.Date.Date()
		k := y*100 + int(m)
		mc, ok := byMonth[k]
		if !ok {
			first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
			mc = &MonthlyCount{
				Key:   first.Format("2006-01"),
				Label: first.Format("Jan 2006"),
				Year:  y,
				Month: int(m),
			}
			byMonth[k] = mc
		}
		if f.Screened {
			mc.Screened++
		}
		if f.Approached {
			mc.Approached++
		}
		if f.Refused {
			mc.Refused++
		}
		if f.Enrolled {
			mc.Enrolled++
		}
	}

	keys := make([]int, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]MonthlyCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byMonth[k])
	}
	return out
}

// ReasonCount is one row of the cumulative exclusion reason table.
type ReasonCount struct {
	Code     int                   `json:"code"`
	Reason   string                `json:"reason"`
	Count    int                   `json:"count"`
	Category domain.ReasonCategory `json:"category"`
	Mapped   bool                  `json:"mapped"`
}

// Cumulative counts exclusion reasons over candidates with an exclusion
// date. Every defined reason appears, even at zero; codes outside the
// reason table are appended as Unmapped rows.
func Cumulative(candidates []domain.Candidate) []ReasonCount {
	counts := make(map[int]int)
	for i := range candidates {
		c := &candidates[i]
		if _, ok := domain.DateOf(c.ExclusionDate); !ok {
			continue
		}
		for code := range c.Reasons {
			if c.HasReason(code) {
				counts[code]++
			}
		}
	}

	codes := make([]int, 0, len(domain.ExclusionReasons)+len(counts))
	for code := range domain.ExclusionReasons {
		codes = append(codes, code)
	}
	for code := range counts {
		if _, ok := domain.ExclusionReasons[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)

	out := make([]ReasonCount, 0, len(codes))
	for _, code := range codes {
		r, mapped := domain.LookupExclusionReason(code)
		out = append(out, ReasonCount{
			Code:     code,
			Reason:   r.Label,
			Count:    counts[code],
			Category: r.Category,
			Mapped:   mapped,
		})
	}
	return out
}

// CategoryTotals sums the cumulative table per category. Unmapped appears
// only when non-zero.
func CategoryTotals(reasons []ReasonCount) map[domain.ReasonCategory]int {
	out := map[domain.ReasonCategory]int{
		domain.CategoryPatient: 0,
		domain.CategoryConsent: 0,
		domain.CategoryOther:   0,
	}
	for _, r := range reasons {
		if r.Category == domain.CategoryUnmapped && r.Count == 0 {
			continue
		}
		out[r.Category] += r.Count
	}
	return out
}

// Metrics are the headline screening numbers.
type Metrics struct {
	TotalScreened         int     `json:"total_screened"`
	ProportionApproached  float64 `json:"proportion_approached"`
	ProportionExcluded    float64 `json:"proportion_excluded"`
	RefusedAmongApproach  float64 `json:"proportion_refused_among_approached"`
	TotalEnrolled         int     `json:"total_enrolled"`
	EnrolledAmongApproach float64 `json:"proportion_enrolled_among_approached"`
	EnrollmentGoal        int     `json:"enrollment_goal"`
}

// Summarize computes the headline metrics. Any proportion with a zero
// denominator is 0.
func Summarize(flags []Flag, goal int) Metrics {
	var screened, approached, refused, enrolled int
	for _, f := range flags {
		if f.Screened {
			screened++
		}
		if f.Approached {
			approached++
		}
		if f.Refused {
			refused++
		}
		if f.Enrolled {
			enrolled++
		}
	}
	m := Metrics{
		TotalScreened:         screened,
		ProportionApproached:  ratio(approached, screened),
		RefusedAmongApproach:  ratio(refused, approached),
		TotalEnrolled:         enrolled,
		EnrolledAmongApproach: ratio(enrolled, approached),
		EnrollmentGoal:        goal,
	}
	if screened > 0 {
		m.ProportionExcluded = 1 - m.ProportionApproached
	}
	return m
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
