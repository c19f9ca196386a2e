package followup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
)

func evaluateFixture(t *testing.T) []Result {
	t.Helper()
	patients := []domain.Patient{
		*discharged("1"),
		*discharged("2"),
		*discharged("3"),
		{ID: "4", EnrolledAt: at(2024, 1, 1), CaregiverEligible: true},
	}
	records := []domain.FollowUpRecord{
		{PatientID: "1", Timepoint: "1 Month", Completed: map[string]*bool{"gq": flag(true), "phq9": flag(true), "cg_gq": flag(true)}},
		{PatientID: "2", Timepoint: "1 Month", Completed: map[string]*bool{"gq": flag(true)}},
		{PatientID: "3", Timepoint: "1 Month", RefusalReason: domain.PatientRefusalCode, Completed: map[string]*bool{}},
	}
	return NewEngine(day(2024, 3, 1)).EvaluateAll(Materialize(patients, records))
}

func TestOverall(t *testing.T) {
	overall := Overall(evaluateFixture(t))
	require.Len(t, overall, len(domain.FollowUpSchedule))

	m1 := overall[0]
	assert.Equal(t, "1 Month", m1.Timepoint)
	assert.Equal(t, TrackTotals{Eligible: 3, Completed: 2, Proportion: 2.0 / 3.0}, m1.Patient)
	assert.Equal(t, 3, m1.Caregiver.Eligible)
	assert.Equal(t, 1, m1.Caregiver.Completed)
	assert.Equal(t, 2, m1.Statuses["Completed"])
	assert.Equal(t, 1, m1.Statuses["Refused"])
	assert.Equal(t, 1, m1.Statuses["Undetermined (in hospital)"])

	m3 := overall[2]
	assert.Equal(t, "3 Month", m3.Timepoint)
	assert.Zero(t, m3.Patient.Eligible)
	assert.Equal(t, 3, m3.Statuses["Not yet eligible"])
}

func TestInstrumentRates_OnlyAttemptedTracks(t *testing.T) {
	rates := InstrumentRates(evaluateFixture(t))

	find := func(tp string, track domain.Track, key string) InstrumentRate {
		for _, r := range rates {
			if r.Timepoint == tp && r.Track == track && r.Key == key {
				return r
			}
		}
		t.Fatalf("no rate for %s/%s/%s", tp, track, key)
		return InstrumentRate{}
	}

	gq := find("1 Month", domain.TrackPatient, "gq")
	assert.Equal(t, 2, gq.Attempted, "the refusing patient is not part of the denominator")
	assert.Equal(t, 2, gq.Completed)
	assert.Equal(t, 1.0, gq.Proportion)

	phq9 := find("1 Month", domain.TrackPatient, "phq9")
	assert.Equal(t, 2, phq9.Attempted)
	assert.Equal(t, 1, phq9.Completed)
	assert.InDelta(t, 0.5, phq9.Proportion, 1e-9)

	cg := find("1 Month", domain.TrackCaregiver, "cg_gq")
	assert.Equal(t, 1, cg.Attempted)
	assert.Equal(t, 1.0, cg.Proportion)

	pcl5 := find("12 Month", domain.TrackPatient, "pcl5")
	assert.Zero(t, pcl5.Attempted)
	assert.Zero(t, pcl5.Proportion)
}

func TestInstrumentRates_ScheduleOrder(t *testing.T) {
	rates := InstrumentRates(nil)

	var want int
	for _, tp := range domain.FollowUpSchedule {
		want += len(tp.Patient) + len(tp.Caregiver)
	}
	require.Len(t, rates, want)
	assert.Equal(t, "1 Month", rates[0].Timepoint)
	assert.Equal(t, domain.TrackPatient, rates[0].Track)
	assert.Equal(t, "12 Month", rates[len(rates)-1].Timepoint)
	assert.Equal(t, domain.TrackCaregiver, rates[len(rates)-1].Track)
}
