package domain

import (
	"fmt"
)

// Field names after normalization. Checkbox columns exported as
// "name___code" arrive here as "name_code".
const (
	FieldScreenID      = "screen_id"
	FieldExclusionDate = "exclusion_date"
	FieldReasonPrefix  = "exclusion_reason_"

	FieldRecordID  = "record_id"
	FieldEventName = "redcap_event_name"

	FieldEnrolledAt       = "enroll_dttm"
	FieldDiedAt           = "death_dttm"
	FieldDischargedAt     = "dc_dttm"
	FieldWithdrawalDate   = "withdraw_date"
	FieldWithdrawalReason = "withdraw_reason"
	FieldCaregiverReason  = "cg_avail_reason"
	FieldInjuryPrefix     = "injury_type_"

	FieldSpecimenDesc   = "blood_event_desc"
	FieldRefusalReason  = "gq_refusal_reason"
	SuffixPreHospital   = "_comp_ph"
	SuffixFollowUp      = "_comp"
	SuffixFollowUpDate  = "_comp_date"
	SuffixTimestamp     = "_dttm"
	SuffixDate          = "_date"
	tubeQuantityPattern = "blood_%s_qty"
)

// TubeQuantityField returns the quantity column for a tube color.
func TubeQuantityField(c TubeColor) string {
	return fmt.Sprintf(tubeQuantityPattern, c)
}

// Event names on the in-hospital arm.
const (
	EventEnrollment = "enrollment_arm_1"
	EventDay1       = "day_1_arm_1"
	EventDay3       = "day_3_arm_1"
	EventDay5       = "day_5_arm_1"
	EventDischarge  = "discharge_arm_1"
)

// SpecimenEvent is a scheduled specimen collection.
type SpecimenEvent string

const (
	SpecimenDay1      SpecimenEvent = "Day 1"
	SpecimenDay3      SpecimenEvent = "Day 3"
	SpecimenDay5      SpecimenEvent = "Day 5"
	SpecimenDischarge SpecimenEvent = "Discharge"
)

// SpecimenEventByName maps in-hospital event names to specimen events.
var SpecimenEventByName = map[string]SpecimenEvent{
	EventDay1:      SpecimenDay1,
	EventDay3:      SpecimenDay3,
	EventDay5:      SpecimenDay5,
	EventDischarge: SpecimenDischarge,
}

// TubeColor identifies a blood collection tube.
type TubeColor string

const (
	TubeBlue   TubeColor = "blue"
	TubePurple TubeColor = "purple"
	TubeGreen  TubeColor = "green"
	TubeRed    TubeColor = "red"
)

// TubeColors lists every tube in display order.
var TubeColors = []TubeColor{TubeBlue, TubePurple, TubeGreen, TubeRed}

// CollectionSlot is one scheduled collection event and the tubes expected at
// it. StudyDay is zero for the discharge collection.
type CollectionSlot struct {
	Event    SpecimenEvent
	StudyDay int
	Tubes    []TubeColor
}

// CollectionSchedule is the expected specimen schedule.
var CollectionSchedule = []CollectionSlot{
	{Event: SpecimenDay1, StudyDay: 1, Tubes: []TubeColor{TubeBlue, TubePurple, TubeGreen, TubeRed}},
	{Event: SpecimenDay3, StudyDay: 3, Tubes: []TubeColor{TubeBlue, TubePurple, TubeGreen}},
	{Event: SpecimenDay5, StudyDay: 5, Tubes: []TubeColor{TubeBlue, TubePurple, TubeGreen}},
	{Event: SpecimenDischarge, Tubes: []TubeColor{TubeBlue, TubePurple, TubeGreen, TubeRed}},
}

// Expects reports whether the tube is collected at this slot.
func (s CollectionSlot) Expects(c TubeColor) bool {
	for _, t := range s.Tubes {
		if t == c {
			return true
		}
	}
	return false
}

// TimelineDays is the length of the per-patient in-hospital timeline.
const TimelineDays = 30

// ExclusionReason describes one enumerated exclusion reason code.
type ExclusionReason struct {
	Code     int
	Label    string
	Category ReasonCategory
}

// RefusalReasonCode is the patient/surrogate refusal exclusion reason.
const RefusalReasonCode = 9

// ExclusionReasons is the fixed reason code table.
var ExclusionReasons = map[int]ExclusionReason{
	1:  {1, "Age under 18 years", CategoryPatient},
	2:  {2, "Non-English speaking", CategoryPatient},
	3:  {3, "Prisoner or in police custody", CategoryPatient},
	4:  {4, "Known pregnancy", CategoryPatient},
	5:  {5, "Pre-existing cognitive impairment", CategoryPatient},
	6:  {6, "Not expected to survive 48 hours", CategoryPatient},
	7:  {7, "Admitted more than 72 hours before screening", CategoryPatient},
	8:  {8, "No legally authorized representative available", CategoryConsent},
	9:  {9, "Patient/surrogate refusal", CategoryConsent},
	10: {10, "Co-enrolled in a conflicting study", CategoryConsent},
	11: {11, "Attending physician declined approach", CategoryConsent},
	12: {12, "Discharged before approach", CategoryOther},
	13: {13, "Research staff unavailable", CategoryOther},
	14: {14, "Other", CategoryOther},
}

// LookupExclusionReason maps a code onto its reason. Unknown codes return an
// Unmapped entry instead of being dropped.
func LookupExclusionReason(code int) (ExclusionReason, bool) {
	r, ok := ExclusionReasons[code]
	if !ok {
		return ExclusionReason{
			Code:     code,
			Label:    fmt.Sprintf("unmapped reason code %d", code),
			Category: CategoryUnmapped,
		}, false
	}
	return r, true
}

// Withdrawal and caregiver availability codes.
const (
	WithdrawalFullConsent  = "1" // withdrew consent for all study activities
	WithdrawalFollowUpOnly = "2"
	WithdrawalInvestigator = "3"

	PatientRefusalCode = "1" // general questions refusal recorded as patient refusal
)

// InjuryCategories labels the trauma category checkbox codes.
var InjuryCategories = map[int]string{
	1: "Traumatic brain injury",
	2: "Spinal cord injury",
	3: "Burn",
	4: "Orthopedic",
	5: "Thoracoabdominal",
	6: "Other",
}

// Assessment is one instrument of a battery.
type Assessment struct {
	Key   string
	Label string
}

// Pre-hospital battery assessment keys with a restricted denominator.
const (
	AssessmentAttitude        = "attitude"
	AssessmentCaregiverSurvey = "cg_survey"
)

// PreHospitalBattery lists the assessments with a "_comp_ph" flag.
var PreHospitalBattery = []Assessment{
	{Key: "demographics", Label: "Demographics"},
	{Key: "medhx", Label: "Medical history"},
	{Key: "injury", Label: "Injury characteristics"},
	{Key: "promis", Label: "PROMIS Global Health"},
	{Key: "phq9", Label: "PHQ-9"},
	{Key: "gad7", Label: "GAD-7"},
	{Key: AssessmentAttitude, Label: "Attitudes toward research"},
	{Key: AssessmentCaregiverSurvey, Label: "Caregiver survey"},
}

// Timepoint is a follow-up visit with its eligibility window offsets and
// assessment sets.
type Timepoint struct {
	Label       string
	EventName   string
	EntryOffset int // days after discharge
	WindowDays  int // days after entry
	Patient     []Assessment
	Caregiver   []Assessment
}

// Assessments returns the set for the given track.
func (tp Timepoint) Assessments(track Track) []Assessment {
	if track == TrackCaregiver {
		return tp.Caregiver
	}
	return tp.Patient
}

// GeneralQuestionsKey is the patient general questions instrument; its
// refusal reason drives the Refused follow-up state.
const GeneralQuestionsKey = "gq"

var (
	shortPatientSet = []Assessment{
		{Key: GeneralQuestionsKey, Label: "General questions"},
		{Key: "phq9", Label: "PHQ-9"},
	}
	fullPatientSet = []Assessment{
		{Key: GeneralQuestionsKey, Label: "General questions"},
		{Key: "promis", Label: "PROMIS Global Health"},
		{Key: "phq9", Label: "PHQ-9"},
		{Key: "gad7", Label: "GAD-7"},
		{Key: "pcl5", Label: "PCL-5"},
		{Key: "eq5d", Label: "EQ-5D-5L"},
	}
	shortCaregiverSet = []Assessment{
		{Key: "cg_gq", Label: "Caregiver general questions"},
	}
	fullCaregiverSet = []Assessment{
		{Key: "cg_gq", Label: "Caregiver general questions"},
		{Key: "zbi", Label: "Zarit Burden Interview"},
		{Key: "cg_phq9", Label: "Caregiver PHQ-9"},
	}
)

// FollowUpSchedule lists the follow-up timepoints in chronological order.
var FollowUpSchedule = []Timepoint{
	{Label: "1 Month", EventName: "month_1_arm_1", EntryOffset: 30, WindowDays: 14, Patient: shortPatientSet, Caregiver: shortCaregiverSet},
	{Label: "2 Month", EventName: "month_2_arm_1", EntryOffset: 60, WindowDays: 14, Patient: shortPatientSet, Caregiver: shortCaregiverSet},
	{Label: "3 Month", EventName: "month_3_arm_1", EntryOffset: 83, WindowDays: 56, Patient: fullPatientSet, Caregiver: fullCaregiverSet},
	{Label: "6 Month", EventName: "month_6_arm_1", EntryOffset: 180, WindowDays: 30, Patient: fullPatientSet, Caregiver: fullCaregiverSet},
	{Label: "12 Month", EventName: "month_12_arm_1", EntryOffset: 335, WindowDays: 90, Patient: fullPatientSet, Caregiver: fullCaregiverSet},
}

// TimepointByEvent finds the timepoint for a follow-up event name.
func TimepointByEvent(eventName string) (Timepoint, bool) {
	for _, tp := range FollowUpSchedule {
		if tp.EventName == eventName {
			return tp, true
		}
	}
	return Timepoint{}, false
}

// DefaultEnrollmentGoal is the target enrollment shown on the dashboard.
const DefaultEnrollmentGoal = 400
