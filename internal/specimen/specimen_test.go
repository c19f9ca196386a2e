package specimen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/normalize"
	"github.com/trial-progress-dashboard/internal/status"
)

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
	return &t
}

func qty(v float64) *float64 {
	return &v
}

func draw(id string, event domain.SpecimenEvent, tube domain.TubeColor, q *float64) domain.SpecimenDraw {
	return domain.SpecimenDraw{PatientID: id, Event: event, Tube: tube, Quantity: q}
}

func fullDraws(id string) []domain.SpecimenDraw {
	var out []domain.SpecimenDraw
	for _, slot := range domain.CollectionSchedule {
		for _, tube := range slot.Tubes {
			out = append(out, draw(id, slot.Event, tube, qty(4)))
		}
	}
	return out
}

func timelinesFor(t *testing.T, patients []domain.Patient) map[string][]domain.TimelineDay {
	t.Helper()
	tl, missing := status.Timelines(patients)
	require.Empty(t, missing)
	return tl
}

func TestCompliance_FullScheduleScenario(t *testing.T) {
	patients := []domain.Patient{{ID: "101", EnrolledAt: at(2024, 1, 1), DischargedAt: at(2024, 1, 10)}}

	res := Compliance(patients, timelinesFor(t, patients), fullDraws("101"))

	require.Len(t, res.Cells, 14)
	for _, c := range res.Cells {
		assert.Equal(t, 1, c.Eligible, "%s/%s", c.Event, c.Tube)
		assert.Equal(t, 1.0, c.Proportion, "%s/%s", c.Event, c.Tube)
	}
	_, ok := res.Cell(domain.SpecimenDay3, domain.TubeRed)
	assert.False(t, ok)
	_, ok = res.Cell(domain.SpecimenDay5, domain.TubeRed)
	assert.False(t, ok)
	assert.Zero(t, res.Discarded)
}

func TestCompliance_RedOnDay3NotCounted(t *testing.T) {
	patients := []domain.Patient{{ID: "101", EnrolledAt: at(2024, 1, 1)}}
	draws := []domain.SpecimenDraw{
		draw("101", domain.SpecimenDay3, domain.TubeRed, qty(2)),
		draw("101", domain.SpecimenDay3, domain.TubeBlue, qty(2)),
	}

	res := Compliance(patients, timelinesFor(t, patients), draws)

	_, ok := res.Cell(domain.SpecimenDay3, domain.TubeRed)
	assert.False(t, ok, "red is not collected on day 3")
	blue, ok := res.Cell(domain.SpecimenDay3, domain.TubeBlue)
	require.True(t, ok)
	assert.Equal(t, 1, blue.Compliant)
	purple, _ := res.Cell(domain.SpecimenDay3, domain.TubePurple)
	assert.Equal(t, 1, purple.Eligible)
	assert.Equal(t, 0, purple.Compliant)
}

func TestCompliance_DiscardsDrawsAfterTerminalDay(t *testing.T) {
	patients := []domain.Patient{
		{ID: "101", EnrolledAt: at(2024, 1, 1), DiedAt: at(2024, 1, 2)},
		{ID: "102", EnrolledAt: at(2024, 1, 1)},
	}
	draws := []domain.SpecimenDraw{
		draw("101", domain.SpecimenDay1, domain.TubeBlue, qty(3)),
		draw("101", domain.SpecimenDay5, domain.TubeBlue, qty(3)),
		draw("102", domain.SpecimenDay5, domain.TubeBlue, qty(0)),
	}

	res := Compliance(patients, timelinesFor(t, patients), draws)

	assert.Equal(t, 1, res.Discarded, "day 5 draw for a deceased patient is a data-entry artifact")
	day5, _ := res.Cell(domain.SpecimenDay5, domain.TubeBlue)
	assert.Equal(t, 1, day5.Eligible)
	assert.Equal(t, 0, day5.Compliant, "zero quantity is not a draw")
	day1, _ := res.Cell(domain.SpecimenDay1, domain.TubeBlue)
	assert.Equal(t, 2, day1.Eligible)
	assert.Equal(t, 1, day1.Compliant)
	assert.InDelta(t, 0.5, day1.Proportion, 1e-9)
}

func TestExpected(t *testing.T) {
	tests := []struct {
		name     string
		patient  domain.Patient
		expected map[domain.SpecimenEvent]bool
	}{
		{
			name:    "still admitted",
			patient: domain.Patient{ID: "1", EnrolledAt: at(2024, 1, 1)},
			expected: map[domain.SpecimenEvent]bool{
				domain.SpecimenDay1: true, domain.SpecimenDay3: true, domain.SpecimenDay5: true,
			},
		},
		{
			name:    "discharged on day 3",
			patient: domain.Patient{ID: "2", EnrolledAt: at(2024, 1, 1), DischargedAt: at(2024, 1, 3)},
			expected: map[domain.SpecimenEvent]bool{
				domain.SpecimenDay1: true, domain.SpecimenDay3: true, domain.SpecimenDischarge: true,
			},
		},
		{
			name:     "died before discharge date",
			patient:  domain.Patient{ID: "3", EnrolledAt: at(2024, 1, 1), DiedAt: at(2024, 1, 2), DischargedAt: at(2024, 1, 4)},
			expected: map[domain.SpecimenEvent]bool{domain.SpecimenDay1: true},
		},
		{
			name:    "withdrew on day 5",
			patient: domain.Patient{ID: "4", EnrolledAt: at(2024, 1, 1), WithdrawalDate: at(2024, 1, 5)},
			expected: map[domain.SpecimenEvent]bool{
				domain.SpecimenDay1: true, domain.SpecimenDay3: true, domain.SpecimenDay5: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := status.Timeline(&tt.patient)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, Expected(&tt.patient, tl))
		})
	}
}

func TestExpandDoubleDuty(t *testing.T) {
	draws := []domain.SpecimenDraw{
		{PatientID: "101", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Quantity: qty(4), Description: "Day 5 + D/C draw"},
		{PatientID: "101", Event: domain.SpecimenDay5, Tube: domain.TubeRed, Quantity: qty(4), Description: "Day 5 + D/C draw"},
		{PatientID: "101", Event: domain.SpecimenDischarge, Tube: domain.TubeRed, Quantity: qty(2)},
		{PatientID: "102", Event: domain.SpecimenDay3, Tube: domain.TubeBlue, Quantity: qty(4), Description: "routine"},
	}

	out, n := ExpandDoubleDuty(draws)

	assert.Equal(t, 1, n, "an existing discharge red draw is not duplicated")
	require.Len(t, out, 5)
	assert.Equal(t, domain.SpecimenDischarge, out[4].Event)
	assert.Equal(t, domain.TubeBlue, out[4].Tube)
	assert.Equal(t, "101", out[4].PatientID)
}

func TestExpandDoubleDuty_Rules(t *testing.T) {
	tests := []struct {
		name  string
		draws []domain.SpecimenDraw
		want  int
	}{
		{
			name: "blank discharge draw does not block",
			draws: []domain.SpecimenDraw{
				{PatientID: "1", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Quantity: qty(3), Description: "also discharge"},
				{PatientID: "1", Event: domain.SpecimenDischarge, Tube: domain.TubeBlue},
			},
			want: 1,
		},
		{
			name: "zero quantity discharge draw does not block",
			draws: []domain.SpecimenDraw{
				{PatientID: "1", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Quantity: qty(3), Description: "also discharge"},
				{PatientID: "1", Event: domain.SpecimenDischarge, Tube: domain.TubeBlue, Quantity: qty(0)},
			},
			want: 1,
		},
		{
			name: "drawn discharge tube is kept",
			draws: []domain.SpecimenDraw{
				{PatientID: "1", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Quantity: qty(3), Description: "also discharge"},
				{PatientID: "1", Event: domain.SpecimenDischarge, Tube: domain.TubeBlue, Quantity: qty(2)},
			},
			want: 0,
		},
		{
			name: "earlier scheduled days never mirror",
			draws: []domain.SpecimenDraw{
				{PatientID: "1", Event: domain.SpecimenDay1, Tube: domain.TubeBlue, Quantity: qty(3), Description: "pre-DC labs"},
				{PatientID: "1", Event: domain.SpecimenDay3, Tube: domain.TubeBlue, Quantity: qty(3), Description: "discharge planning"},
			},
			want: 0,
		},
		{
			name: "undrawn day 5 tube is not mirrored",
			draws: []domain.SpecimenDraw{
				{PatientID: "1", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Description: "discharge"},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, n := ExpandDoubleDuty(tt.draws)
			assert.Equal(t, tt.want, n)
			assert.Len(t, out, len(tt.draws)+tt.want)
		})
	}
}

func TestCompliance_DoubleDutyFromNormalizedRecords(t *testing.T) {
	fields := []string{
		domain.FieldRecordID, domain.FieldEventName,
		domain.FieldEnrolledAt, domain.FieldDiedAt, domain.FieldDischargedAt, domain.FieldWithdrawalDate,
		domain.FieldSpecimenDesc,
	}
	for _, tube := range domain.TubeColors {
		fields = append(fields, domain.TubeQuantityField(tube))
	}
	withTubes := func(row map[string]string, q string) map[string]string {
		for _, tube := range domain.TubeColors {
			row[domain.TubeQuantityField(tube)] = q
		}
		return row
	}
	raw := &domain.RawRecords{
		Fields: fields,
		Rows: []map[string]string{
			{"record_id": "101", "redcap_event_name": domain.EventEnrollment, "enroll_dttm": "2024-01-01 08:00"},
			withTubes(map[string]string{"record_id": "101", "redcap_event_name": domain.EventDay1}, "3"),
			withTubes(map[string]string{"record_id": "101", "redcap_event_name": domain.EventDay3}, "3"),
			withTubes(map[string]string{"record_id": "101", "redcap_event_name": domain.EventDay5, "blood_event_desc": "Day 5 draw also used as discharge"}, "3"),
			withTubes(map[string]string{"record_id": "101", "redcap_event_name": domain.EventDischarge, "dc_dttm": "2024-01-05 15:00"}, ""),
		},
	}
	table, _, err := normalize.Normalize(domain.TableInHospital, raw, domain.FieldRecordID)
	require.NoError(t, err)
	patients, err := normalize.Patients(table)
	require.NoError(t, err)
	draws, err := normalize.SpecimenDraws(table)
	require.NoError(t, err)

	res := Compliance(patients, timelinesFor(t, patients), draws)

	assert.Equal(t, 4, res.Synthesized)
	assert.Zero(t, res.Discarded)
	for _, tube := range domain.TubeColors {
		c, ok := res.Cell(domain.SpecimenDischarge, tube)
		require.True(t, ok)
		assert.Equal(t, 1, c.Eligible, string(tube))
		assert.Equal(t, 1, c.Compliant, string(tube))
	}
}

func TestCompliance_DoubleDutyKeepsLoggedDischarge(t *testing.T) {
	patients := []domain.Patient{{ID: "101", EnrolledAt: at(2024, 1, 1), DischargedAt: at(2024, 1, 5)}}
	draws := []domain.SpecimenDraw{
		{PatientID: "101", Event: domain.SpecimenDay5, Tube: domain.TubeBlue, Quantity: qty(3), Description: "discharge"},
		{PatientID: "101", Event: domain.SpecimenDischarge, Tube: domain.TubeBlue, Quantity: qty(5)},
	}

	out, n := ExpandDoubleDuty(draws)
	require.Zero(t, n)
	discharge := 0
	for _, d := range out {
		if d.Event == domain.SpecimenDischarge && d.Tube == domain.TubeBlue {
			discharge++
			assert.Equal(t, 5.0, *d.Quantity)
		}
	}
	assert.Equal(t, 1, discharge)

	res := Compliance(patients, timelinesFor(t, patients), draws)
	blue, _ := res.Cell(domain.SpecimenDischarge, domain.TubeBlue)
	assert.Equal(t, 1, blue.Compliant)
	assert.Zero(t, res.Synthesized)
}

func TestCompliance_DoubleDutyCoversDischarge(t *testing.T) {
	patients := []domain.Patient{{ID: "101", EnrolledAt: at(2024, 1, 1), DischargedAt: at(2024, 1, 5)}}
	var draws []domain.SpecimenDraw
	for _, tube := range domain.TubeColors {
		draws = append(draws, domain.SpecimenDraw{
			PatientID: "101", Event: domain.SpecimenDay5, Tube: tube, Quantity: qty(3), Description: "Discharge",
		})
	}

	res := Compliance(patients, timelinesFor(t, patients), draws)

	assert.Equal(t, 4, res.Synthesized)
	for _, tube := range domain.TubeColors {
		c, ok := res.Cell(domain.SpecimenDischarge, tube)
		require.True(t, ok)
		assert.Equal(t, 1, c.Compliant, string(tube))
	}
	assert.Zero(t, res.Discarded)
	_, ok := res.Cell(domain.SpecimenDay5, domain.TubeRed)
	assert.False(t, ok)
}

func TestIsDoubleDuty(t *testing.T) {
	assert.True(t, IsDoubleDuty("discharge"))
	assert.True(t, IsDoubleDuty("Day 5/DC"))
	assert.True(t, IsDoubleDuty("drawn at d/c"))
	assert.True(t, IsDoubleDuty("Discharged same day"))
	assert.False(t, IsDoubleDuty("routine day 5"))
	assert.False(t, IsDoubleDuty("dictated"))
	assert.False(t, IsDoubleDuty(""))
}
