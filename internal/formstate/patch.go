package formstate

import "chata-intake/internal/domain"

// ClinicianPatch partial clinician update; nil fields are left untouched
type ClinicianPatch struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Clinic         *string `json:"clinic,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	ChildName      *string `json:"child_name,omitempty"`
	ChildAgeMonths *int    `json:"child_age_months,omitempty"`
	ChildGender    *string `json:"child_gender,omitempty"`
	ReferralReason *string `json:"referral_reason,omitempty"`
}

// ClinicalFormPatch partial update of the free-text sections
type ClinicalFormPatch struct {
	PresentingConcerns    *string `json:"presenting_concerns,omitempty"`
	DevelopmentalHistory  *string `json:"developmental_history,omitempty"`
	ClinicalObservations  *string `json:"clinical_observations,omitempty"`
	Strengths             *string `json:"strengths,omitempty"`
	PriorityAreas         *string `json:"priority_areas,omitempty"`
	DifferentialDiagnosis *string `json:"differential_diagnosis,omitempty"`
	Recommendations       *string `json:"recommendations,omitempty"`
	DiagnosticFormulation *string `json:"diagnostic_formulation,omitempty"`
}

// DomainPatch update for one rated domain.
// Unset clears the rating; a non-nil Observations replaces the list.
type DomainPatch struct {
	Value        *int     `json:"value,omitempty"`
	Unset        bool     `json:"unset,omitempty"`
	Observations []string `json:"observations,omitempty"`
}

// MilestonePatch places, unplaces, adds or removes a milestone.
// An unknown ID with a Name appends a custom milestone.
type MilestonePatch struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Category    string `json:"category,omitempty"`
	ExpectedAge *int   `json:"expected_age,omitempty"`
	ActualAge   *int   `json:"actual_age,omitempty"`
	Unplace     bool   `json:"unplace,omitempty"`
	Remove      bool   `json:"remove,omitempty"`
}

// LogEntryPatch partial date/notes update for one instrument
type LogEntryPatch struct {
	Date  *string `json:"date,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// AssessmentPatch partial update for one sub-form. Which fields apply
// depends on Type: Domains for rated forms, Milestones for the tracker,
// Selected/Entries for the log.
type AssessmentPatch struct {
	Type       domain.AssessmentType    `json:"type"`
	Domains    map[string]DomainPatch   `json:"domains,omitempty"`
	Milestones []MilestonePatch         `json:"milestones,omitempty"`
	Selected   []string                 `json:"selected,omitempty"`
	Entries    map[string]LogEntryPatch `json:"entries,omitempty"`
}
