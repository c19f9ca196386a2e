package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
)

func normalizeTable(t *testing.T, name, idField string, fields []string, rows ...map[string]string) *Table {
	t.Helper()
	table, _, err := Normalize(name, &domain.RawRecords{Fields: fields, Rows: rows}, idField)
	require.NoError(t, err)
	return table
}

func TestCandidates(t *testing.T) {
	table := normalizeTable(t, domain.TableExclusion, domain.FieldScreenID,
		[]string{"screen_id", "exclusion_date", "exclusion_reason___1", "exclusion_reason___9", "exclusion_reason___15"},
		map[string]string{"screen_id": "S1", "exclusion_date": "2023-09-14", "exclusion_reason___1": "1", "exclusion_reason___9": "0", "exclusion_reason___15": ""},
		map[string]string{"screen_id": "S2", "exclusion_date": "", "exclusion_reason___9": "1"},
	)

	candidates, err := Candidates(table)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	s1 := candidates[0]
	require.NotNil(t, s1.ExclusionDate)
	assert.Equal(t, time.Date(2023, 9, 14, 0, 0, 0, 0, time.UTC), *s1.ExclusionDate)
	assert.True(t, s1.HasReason(1))
	assert.False(t, s1.HasReason(9))
	assert.Contains(t, s1.Reasons, 15)
	assert.Nil(t, s1.Reasons[15])

	s2 := candidates[1]
	assert.Nil(t, s2.ExclusionDate)
	assert.True(t, s2.HasReason(domain.RefusalReasonCode))
}

func TestPatients_MergesEventRows(t *testing.T) {
	fields := []string{
		"record_id", "redcap_event_name", "enroll_dttm", "death_dttm", "dc_dttm",
		"withdraw_date", "withdraw_reason", "cg_avail_reason", "injury_type___1",
		"demographics_comp_ph", "attitude_comp_ph",
	}
	table := normalizeTable(t, domain.TableInHospital, domain.FieldRecordID, fields,
		map[string]string{"record_id": "101", "redcap_event_name": "enrollment_arm_1", "enroll_dttm": "2024-01-01 09:00", "injury_type___1": "1", "demographics_comp_ph": "1", "attitude_comp_ph": ""},
		map[string]string{"record_id": "101", "redcap_event_name": "discharge_arm_1", "dc_dttm": "2024-01-10 14:00"},
		map[string]string{"record_id": "102", "redcap_event_name": "enrollment_arm_1", "enroll_dttm": "2024-01-03 10:00", "withdraw_date": "2024-01-05", "withdraw_reason": "1", "cg_avail_reason": "1"},
	)

	patients, err := Patients(table)
	require.NoError(t, err)
	require.Len(t, patients, 2)

	p1 := patients[0]
	assert.Equal(t, "101", p1.ID)
	require.NotNil(t, p1.DischargedAt)
	assert.Equal(t, time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC), *p1.DischargedAt)
	assert.True(t, p1.Injuries[1])
	require.NotNil(t, p1.PreHospital["demographics"])
	assert.True(t, *p1.PreHospital["demographics"])
	assert.Nil(t, p1.PreHospital["attitude"])
	assert.NotContains(t, p1.PreHospital, "phq9", "columns absent from the export are not represented")
	assert.True(t, p1.AttitudeEligible)
	assert.True(t, p1.CaregiverEligible)

	p2 := patients[1]
	require.NotNil(t, p2.WithdrawalDate)
	assert.False(t, p2.AttitudeEligible, "full consent withdrawal removes attitude eligibility")
	assert.False(t, p2.CaregiverEligible)
}

func TestPatients_MissingTerminalColumn(t *testing.T) {
	table := normalizeTable(t, domain.TableInHospital, domain.FieldRecordID,
		[]string{"record_id", "enroll_dttm", "death_dttm", "withdraw_date"},
		map[string]string{"record_id": "101"},
	)

	_, err := Patients(table)

	var schemaErr *domain.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{domain.FieldDischargedAt}, schemaErr.Missing)
}

func TestSpecimenDraws(t *testing.T) {
	table := normalizeTable(t, domain.TableInHospital, domain.FieldRecordID,
		[]string{"record_id", "redcap_event_name", "blood_blue_qty", "blood_red_qty", "blood_event_desc"},
		map[string]string{"record_id": "101", "redcap_event_name": "enrollment_arm_1"},
		map[string]string{"record_id": "101", "redcap_event_name": "day_5_arm_1", "blood_blue_qty": "4.5", "blood_red_qty": "", "blood_event_desc": "Day 5 / discharge"},
	)

	draws, err := SpecimenDraws(table)
	require.NoError(t, err)
	require.Len(t, draws, 2)

	assert.Equal(t, domain.SpecimenDay5, draws[0].Event)
	assert.Equal(t, domain.TubeBlue, draws[0].Tube)
	assert.True(t, draws[0].Drawn())
	assert.Equal(t, "Day 5 / discharge", draws[0].Description)

	assert.Equal(t, domain.TubeRed, draws[1].Tube)
	assert.Nil(t, draws[1].Quantity)
	assert.False(t, draws[1].Drawn())
}

func TestFollowUps(t *testing.T) {
	table := normalizeTable(t, domain.TableFollowUp, domain.FieldRecordID,
		[]string{"record_id", "redcap_event_name", "gq_comp", "gq_comp_date", "phq9_comp", "cg_gq_comp", "gq_refusal_reason"},
		map[string]string{"record_id": "101", "redcap_event_name": "month_1_arm_1", "gq_comp": "1", "gq_comp_date": "2024-02-12", "phq9_comp": "", "cg_gq_comp": "0"},
		map[string]string{"record_id": "102", "redcap_event_name": "month_3_arm_1", "gq_refusal_reason": "1"},
		map[string]string{"record_id": "103", "redcap_event_name": "unscheduled_arm_1", "gq_comp": "1"},
	)

	records, err := FollowUps(table)
	require.NoError(t, err)
	require.Len(t, records, 2, "unknown events are skipped")

	r1 := records[0]
	assert.Equal(t, "1 Month", r1.Timepoint)
	assert.True(t, r1.Done("gq"))
	assert.False(t, r1.Done("phq9"))
	assert.Nil(t, r1.Completed["phq9"])
	require.NotNil(t, r1.CompletedOn["gq"])
	assert.Equal(t, time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC), *r1.CompletedOn["gq"])

	r2 := records[1]
	assert.Equal(t, "3 Month", r2.Timepoint)
	assert.Equal(t, domain.PatientRefusalCode, r2.RefusalReason)
}
