package domain

import (
	"time"
)

// Status lifecycle flag of a form
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

// FormState aggregate record for one assessment session.
// Key in the draft store: chata:draft:{chata_id}
type FormState struct {
	ChataID      string        `json:"chata_id"`
	Clinician    ClinicianInfo `json:"clinician"`
	ClinicalForm ClinicalForm  `json:"clinical_form"`
	Assessments  Assessments   `json:"assessments"`
	Status       Status        `json:"status"`
	Progress     int           `json:"progress"` // aggregate 0..100, never decreases
	CreatedAt    time.Time     `json:"created_at"`
	LastUpdated  time.Time     `json:"last_updated"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
}

// ClinicianInfo clinician contact fields plus the child being assessed
type ClinicianInfo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Clinic         string `json:"clinic,omitempty"`
	Phone          string `json:"phone,omitempty"`
	ChildName      string `json:"child_name,omitempty"`
	ChildAgeMonths *int   `json:"child_age_months,omitempty"`
	ChildGender    string `json:"child_gender,omitempty"`
	ReferralReason string `json:"referral_reason,omitempty"`
}

// ClinicalForm free-text clinical sections
type ClinicalForm struct {
	PresentingConcerns    string `json:"presenting_concerns,omitempty"`
	DevelopmentalHistory  string `json:"developmental_history,omitempty"`
	ClinicalObservations  string `json:"clinical_observations,omitempty"`
	Strengths             string `json:"strengths,omitempty"`
	PriorityAreas         string `json:"priority_areas,omitempty"`
	DifferentialDiagnosis string `json:"differential_diagnosis,omitempty"`
	Recommendations       string `json:"recommendations,omitempty"`
	DiagnosticFormulation string `json:"diagnostic_formulation,omitempty"`
}

// IsDraft reports whether the record still accepts edits
func (s *FormState) IsDraft() bool {
	return s.Status != StatusSubmitted
}

// Clone deep-copies the record so snapshots can leave the store lock
func (s *FormState) Clone() *FormState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Clinician.ChildAgeMonths != nil {
		v := *s.Clinician.ChildAgeMonths
		c.Clinician.ChildAgeMonths = &v
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		c.SubmittedAt = &t
	}
	c.Assessments = s.Assessments.Clone()
	return &c
}
