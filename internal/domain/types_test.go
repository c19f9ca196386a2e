package domain

import (
	"testing"
)

func TestCurrentStatusIsValid(t *testing.T) {
	tests := []struct {
		name     string
		value    CurrentStatus
		expected bool
	}{
		{"Discharged", StatusDischargedAlive, true},
		{"Died", StatusDiedInHospital, true},
		{"Withdrew", StatusWithdrew, true},
		{"Still in hospital", StatusStillInHospital, true},
		{"Unmapped", StatusUnmapped, false},
		{"Empty", CurrentStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsValid(); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, expected %v", tt.value, got, tt.expected)
			}
		})
	}

	if len(CurrentStatusLevels) != 4 {
		t.Errorf("Expected 4 status levels, got %d", len(CurrentStatusLevels))
	}
}

func TestFollowUpStatusEligible(t *testing.T) {
	tests := []struct {
		value    FollowUpStatus
		eligible bool
		defined  bool
	}{
		{FollowUpCompleted, true, true},
		{FollowUpRefused, true, true},
		{FollowUpEligible, true, true},
		{FollowUpDied, false, true},
		{FollowUpWithdrew, false, true},
		{FollowUpNotYetEligible, false, true},
		{FollowUpNoCaregiver, false, true},
		{FollowUpUnmapped, false, true},
		{FollowUpUndetermined, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.value), func(t *testing.T) {
			if got := tt.value.Eligible(); got != tt.eligible {
				t.Errorf("Eligible() = %v, expected %v", got, tt.eligible)
			}
			if got := tt.value.Defined(); got != tt.defined {
				t.Errorf("Defined() = %v, expected %v", got, tt.defined)
			}
		})
	}
}

func TestGradeCompletion(t *testing.T) {
	tests := []struct {
		proportion float64
		expected   QualityLabel
	}{
		{1.0, QualityExcellent},
		{0.91, QualityExcellent},
		{0.9, QualityOkay},
		{0.81, QualityOkay},
		{0.8, QualityUhOh},
		{0, QualityUhOh},
	}

	for _, tt := range tests {
		if got := GradeCompletion(tt.proportion); got != tt.expected {
			t.Errorf("GradeCompletion(%v) = %s, expected %s", tt.proportion, got, tt.expected)
		}
	}
}

func TestDayStatusTerminal(t *testing.T) {
	if DayInHospital.Terminal() {
		t.Error("In hospital should not be terminal")
	}
	for _, s := range []DayStatus{DayDeceased, DayDischarged, DayWithdrawn} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestLookupExclusionReason(t *testing.T) {
	r, ok := LookupExclusionReason(RefusalReasonCode)
	if !ok || r.Category != CategoryConsent {
		t.Errorf("Expected refusal to be a mapped consent reason, got %+v (mapped %v)", r, ok)
	}

	r, ok = LookupExclusionReason(31)
	if ok {
		t.Error("Expected code 31 to be unmapped")
	}
	if r.Category != CategoryUnmapped || r.Code != 31 {
		t.Errorf("Unexpected unmapped entry %+v", r)
	}
}

func TestFollowUpSchedule(t *testing.T) {
	for i := 1; i < len(FollowUpSchedule); i++ {
		if FollowUpSchedule[i].EntryOffset <= FollowUpSchedule[i-1].EntryOffset {
			t.Errorf("Timepoint %s is out of order", FollowUpSchedule[i].Label)
		}
	}

	tp, ok := TimepointByEvent("month_3_arm_1")
	if !ok || tp.Label != "3 Month" {
		t.Errorf("Expected 3 Month timepoint, got %+v", tp)
	}
	if got := tp.Assessments(TrackCaregiver); len(got) != 3 {
		t.Errorf("Expected 3 caregiver assessments, got %d", len(got))
	}
	if _, ok := TimepointByEvent("baseline_arm_1"); ok {
		t.Error("Expected baseline event to have no timepoint")
	}
}
