package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			panic(err)
		}
	}
	return &t
}

func TestCurrent(t *testing.T) {
	tests := []struct {
		name     string
		patient  domain.Patient
		expected domain.CurrentStatus
	}{
		{
			name:     "still admitted",
			patient:  domain.Patient{ID: "1", EnrolledAt: date("2024-01-01")},
			expected: domain.StatusStillInHospital,
		},
		{
			name:     "discharged",
			patient:  domain.Patient{ID: "2", EnrolledAt: date("2024-01-01"), DischargedAt: date("2024-01-10 12:00")},
			expected: domain.StatusDischargedAlive,
		},
		{
			name:     "died",
			patient:  domain.Patient{ID: "3", EnrolledAt: date("2024-01-01"), DiedAt: date("2024-01-04 03:10")},
			expected: domain.StatusDiedInHospital,
		},
		{
			name:     "withdrew",
			patient:  domain.Patient{ID: "4", EnrolledAt: date("2024-01-01"), WithdrawalDate: date("2024-01-03")},
			expected: domain.StatusWithdrew,
		},
		{
			name:     "death before discharge still reads as discharged",
			patient:  domain.Patient{ID: "5", EnrolledAt: date("2024-01-01"), DiedAt: date("2024-01-02"), DischargedAt: date("2024-01-08")},
			expected: domain.StatusDischargedAlive,
		},
		{
			name:     "death outranks withdrawal",
			patient:  domain.Patient{ID: "6", EnrolledAt: date("2024-01-01"), DiedAt: date("2024-01-09"), WithdrawalDate: date("2024-01-03")},
			expected: domain.StatusDiedInHospital,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Current(&tt.patient))
		})
	}
}

func TestCurrent_DischargeAlwaysWins(t *testing.T) {
	discharge := date("2024-03-15")
	others := []*time.Time{nil, date("2024-03-01"), date("2024-03-15"), date("2024-04-01")}
	for _, died := range others {
		for _, withdrew := range others {
			p := domain.Patient{EnrolledAt: date("2024-02-28"), DischargedAt: discharge, DiedAt: died, WithdrawalDate: withdrew}
			assert.Equal(t, domain.StatusDischargedAlive, Current(&p))
		}
	}
}

func TestCurrent_UnmappedSentinel(t *testing.T) {
	rules := []Rule{{Name: "never", Status: domain.StatusStillInHospital, Match: func(*domain.Patient) bool { return false }}}
	assert.Equal(t, domain.StatusUnmapped, evaluate(rules, &domain.Patient{}))
}

func TestTimeline(t *testing.T) {
	p := domain.Patient{ID: "101", EnrolledAt: date("2024-01-01 09:30"), DischargedAt: date("2024-01-10 16:00")}

	days, err := Timeline(&p)
	require.NoError(t, err)
	require.Len(t, days, domain.TimelineDays)

	assert.Equal(t, 1, days[0].StudyDay)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), days[0].Date)
	assert.Equal(t, time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), days[29].Date)

	for _, d := range days {
		switch {
		case d.StudyDay < 10:
			assert.Equal(t, domain.DayInHospital, d.Status, "day %d", d.StudyDay)
			assert.False(t, d.TransitionDay)
		case d.StudyDay == 10:
			assert.Equal(t, domain.DayDischarged, d.Status)
			assert.True(t, d.TransitionDay)
		default:
			assert.Equal(t, domain.DayDischarged, d.Status, "day %d", d.StudyDay)
			assert.False(t, d.TransitionDay)
		}
	}
}

func TestTimeline_DeathOutranksDischargePerDay(t *testing.T) {
	p := domain.Patient{
		ID:           "102",
		EnrolledAt:   date("2024-01-01"),
		DiedAt:       date("2024-01-06"),
		DischargedAt: date("2024-01-04"),
	}

	days, err := Timeline(&p)
	require.NoError(t, err)

	assert.Equal(t, domain.DayInHospital, days[2].Status)
	assert.Equal(t, domain.DayDischarged, days[3].Status)
	assert.Equal(t, domain.DayDischarged, days[4].Status)
	for _, d := range days[5:] {
		assert.Equal(t, domain.DayDeceased, d.Status, "day %d", d.StudyDay)
	}
	assert.True(t, days[3].TransitionDay)
	assert.True(t, days[5].TransitionDay)

	assert.Equal(t, domain.StatusDischargedAlive, Current(&p), "current status keeps discharge precedence")
}

func TestTimeline_InHospitalBeforeEarliestTerminal(t *testing.T) {
	p := domain.Patient{
		ID:             "103",
		EnrolledAt:     date("2024-05-30"),
		WithdrawalDate: date("2024-06-12"),
		DiedAt:         date("2024-06-20"),
	}

	days, err := Timeline(&p)
	require.NoError(t, err)

	earliest := *date("2024-06-12")
	for _, d := range days {
		if d.Date.Before(earliest) {
			assert.Equal(t, domain.DayInHospital, d.Status)
		}
		if !d.Date.Before(*date("2024-06-20")) {
			assert.Equal(t, domain.DayDeceased, d.Status)
		}
	}
	assert.Equal(t, domain.DayWithdrawn, days[13].Status)
}

func TestTimeline_NoEnrollment(t *testing.T) {
	_, err := Timeline(&domain.Patient{ID: "104"})
	assert.True(t, errors.Is(err, domain.ErrNoEnrollment))
}

func TestTimelines(t *testing.T) {
	patients := []domain.Patient{
		{ID: "1", EnrolledAt: date("2024-01-01")},
		{ID: "2"},
	}

	timelines, missing := Timelines(patients)
	assert.Len(t, timelines, 1)
	assert.Contains(t, timelines, "1")
	assert.Equal(t, []string{"2"}, missing)
}

func TestDistribute(t *testing.T) {
	patients := []domain.Patient{
		{ID: "1", EnrolledAt: date("2024-01-01")},
		{ID: "2", DischargedAt: date("2024-01-05")},
		{ID: "3", DischargedAt: date("2024-01-06")},
		{ID: "4", DiedAt: date("2024-01-03")},
	}

	dist := Distribute(patients)
	require.Len(t, dist, 4)
	assert.Equal(t, Distribution{Status: domain.StatusStillInHospital, Count: 1}, dist[0])
	assert.Equal(t, Distribution{Status: domain.StatusDischargedAlive, Count: 2}, dist[1])
	assert.Equal(t, Distribution{Status: domain.StatusDiedInHospital, Count: 1}, dist[2])
	assert.Equal(t, Distribution{Status: domain.StatusWithdrew, Count: 0}, dist[3])
}
