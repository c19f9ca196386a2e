package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Candidates extracts screening exclusion records.
func Candidates(t *Table) ([]domain.Candidate, error) {
	if err := t.Require(domain.FieldScreenID, domain.FieldExclusionDate); err != nil {
		return nil, err
	}
	reasonFields := codedFields(t, domain.FieldReasonPrefix)

	out := make([]domain.Candidate, 0, len(t.Rows))
	for _, row := range t.Rows {
		c := domain.Candidate{
			ID:            row.ID,
			ExclusionDate: row.Time(domain.FieldExclusionDate),
			Reasons:       make(map[int]*bool, len(reasonFields)),
		}
		for _, rf := range reasonFields {
			c.Reasons[rf.code] = row.Bool(rf.field)
		}
		out = append(out, c)
	}
	return out, nil
}

// Patients extracts enrolled patients from the in-hospital record set. A
// patient's fields may be spread across event rows; the first non-empty
// value in row order wins.
func Patients(t *Table) ([]domain.Patient, error) {
	if err := t.Require(
		domain.FieldRecordID,
		domain.FieldEnrolledAt,
		domain.FieldDiedAt,
		domain.FieldDischargedAt,
		domain.FieldWithdrawalDate,
	); err != nil {
		return nil, err
	}
	injuryFields := codedFields(t, domain.FieldInjuryPrefix)

	index := make(map[string]int)
	var out []domain.Patient
	for _, row := range t.Rows {
		if row.ID == "" {
			continue
		}
		i, seen := index[row.ID]
		if !seen {
			i = len(out)
			index[row.ID] = i
			out = append(out, domain.Patient{
				ID:          row.ID,
				Injuries:    make(map[int]bool),
				PreHospital: make(map[string]*bool),
			})
		}
		p := &out[i]
		p.EnrolledAt = firstTime(p.EnrolledAt, row.Time(domain.FieldEnrolledAt))
		p.DiedAt = firstTime(p.DiedAt, row.Time(domain.FieldDiedAt))
		p.DischargedAt = firstTime(p.DischargedAt, row.Time(domain.FieldDischargedAt))
		p.WithdrawalDate = firstTime(p.WithdrawalDate, row.Time(domain.FieldWithdrawalDate))
		if p.WithdrawalReason == "" {
			p.WithdrawalReason = row.Text(domain.FieldWithdrawalReason)
		}
		if p.CaregiverAvailReason == "" {
			p.CaregiverAvailReason = row.Text(domain.FieldCaregiverReason)
		}
		for _, inj := range injuryFields {
			if v := row.Bool(inj.field); v != nil && *v {
				p.Injuries[inj.code] = true
			}
		}
		for _, a := range domain.PreHospitalBattery {
			field := a.Key + domain.SuffixPreHospital
			if !t.Has(field) || p.PreHospital[a.Key] != nil {
				continue
			}
			p.PreHospital[a.Key] = row.Bool(field)
		}
	}
	for i := range out {
		out[i].AttitudeEligible = out[i].WithdrawalReason != domain.WithdrawalFullConsent
		out[i].CaregiverEligible = out[i].CaregiverAvailReason == ""
	}
	return out, nil
}

// SpecimenDraws extracts one draw per tube column on every specimen event
// row. A blank quantity is kept as a logged draw with no amount.
func SpecimenDraws(t *Table) ([]domain.SpecimenDraw, error) {
	if err := t.Require(domain.FieldRecordID, domain.FieldEventName); err != nil {
		return nil, err
	}
	var out []domain.SpecimenDraw
	for _, row := range t.Rows {
		event, ok := domain.SpecimenEventByName[row.Event]
		if !ok || row.ID == "" {
			continue
		}
		for _, tube := range domain.TubeColors {
			field := domain.TubeQuantityField(tube)
			if !t.Has(field) {
				continue
			}
			out = append(out, domain.SpecimenDraw{
				PatientID:   row.ID,
				Event:       event,
				Tube:        tube,
				Quantity:    row.Float(field),
				Description: row.Text(domain.FieldSpecimenDesc),
			})
		}
	}
	return out, nil
}

// FollowUps extracts follow-up records for every known timepoint event.
func FollowUps(t *Table) ([]domain.FollowUpRecord, error) {
	if err := t.Require(domain.FieldRecordID, domain.FieldEventName); err != nil {
		return nil, err
	}
	var out []domain.FollowUpRecord
	for _, row := range t.Rows {
		tp, ok := domain.TimepointByEvent(row.Event)
		if !ok || row.ID == "" {
			continue
		}
		rec := domain.FollowUpRecord{
			PatientID:     row.ID,
			Timepoint:     tp.Label,
			Completed:     make(map[string]*bool),
			CompletedOn:   make(map[string]*time.Time),
			RefusalReason: row.Text(domain.FieldRefusalReason),
		}
		for _, track := range []domain.Track{domain.TrackPatient, domain.TrackCaregiver} {
			for _, a := range tp.Assessments(track) {
				if t.Has(a.Key + domain.SuffixFollowUp) {
					rec.Completed[a.Key] = row.Bool(a.Key + domain.SuffixFollowUp)
				}
				if d := row.Time(a.Key + domain.SuffixFollowUpDate); d != nil {
					rec.CompletedOn[a.Key] = d
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

type codedField struct {
	field string
	code  int
}

// codedFields finds checkbox columns "prefix<code>" sorted by code.
func codedFields(t *Table, prefix string) []codedField {
	var out []codedField
	for _, f := range t.FieldsWithPrefix(prefix) {
		code, err := strconv.Atoi(strings.TrimPrefix(f, prefix))
		if err != nil {
			continue
		}
		out = append(out, codedField{field: f, code: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

func firstTime(cur, next *time.Time) *time.Time {
	if cur != nil {
		return cur
	}
	return next
}
