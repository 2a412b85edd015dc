package domain

import (
	"fmt"
	"slices"
)

// AssessmentType tag of one of the five sub-forms
type AssessmentType string

const (
	SensoryProfile      AssessmentType = "sensory_profile"
	SocialCommunication AssessmentType = "social_communication"
	BehaviorInterests   AssessmentType = "behavior_interests"
	MilestoneTracker    AssessmentType = "milestone_tracker"
	AssessmentLog       AssessmentType = "assessment_log"
)

// AllAssessmentTypes fixed order used for progress breakdowns and export
var AllAssessmentTypes = []AssessmentType{
	SensoryProfile,
	SocialCommunication,
	BehaviorInterests,
	MilestoneTracker,
	AssessmentLog,
}

// IsRated reports whether the sub-form is slider/domain based
func (t AssessmentType) IsRated() bool {
	switch t {
	case SensoryProfile, SocialCommunication, BehaviorInterests:
		return true
	default:
		return false
	}
}

// ParseAssessmentType validates a type tag from a URL or payload
func ParseAssessmentType(s string) (AssessmentType, error) {
	for _, t := range AllAssessmentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown assessment type %q", ErrValidation, s)
}

const (
	MinRating = 1
	MaxRating = 5
)

// DomainRating one slider domain of a rated sub-form
type DomainRating struct {
	Value        *int     `json:"value"` // 1..5, nil = unset
	Observations []string `json:"observations,omitempty"`
	Label        string   `json:"label,omitempty"` // derived from Value
}

// RatedAssessment sensory / social / behavior sub-record
type RatedAssessment struct {
	Type     AssessmentType          `json:"type"`
	Domains  map[string]DomainRating `json:"domains"`
	Progress int                     `json:"progress"`
}

// Milestone developmental milestone; placed once ActualAge is set
type Milestone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	ExpectedAge int    `json:"expected_age"` // months
	ActualAge   *int   `json:"actual_age,omitempty"`
	Custom      bool   `json:"custom,omitempty"`
}

// Placed reports whether the clinician has positioned the milestone
func (m Milestone) Placed() bool {
	return m.ActualAge != nil
}

// MilestoneAssessment milestone tracker sub-record
type MilestoneAssessment struct {
	Type       AssessmentType `json:"type"`
	Milestones []Milestone    `json:"milestones"`
	Progress   int            `json:"progress"`
}

// LogEntry date/notes pair for one selected instrument
type LogEntry struct {
	Date  string `json:"date,omitempty"` // YYYY-MM-DD
	Notes string `json:"notes,omitempty"`
}

// LogAssessment assessment log sub-record
type LogAssessment struct {
	Type     AssessmentType      `json:"type"`
	Selected []string            `json:"selected"`
	Entries  map[string]LogEntry `json:"entries"`
	Progress int                 `json:"progress"`
}

// Assessments the fixed set of five sub-records
type Assessments struct {
	SensoryProfile      RatedAssessment     `json:"sensory_profile"`
	SocialCommunication RatedAssessment     `json:"social_communication"`
	BehaviorInterests   RatedAssessment     `json:"behavior_interests"`
	MilestoneTracker    MilestoneAssessment `json:"milestone_tracker"`
	AssessmentLog       LogAssessment       `json:"assessment_log"`
}

// Rated returns the rated sub-record for t, nil for non-rated types
func (a *Assessments) Rated(t AssessmentType) *RatedAssessment {
	switch t {
	case SensoryProfile:
		return &a.SensoryProfile
	case SocialCommunication:
		return &a.SocialCommunication
	case BehaviorInterests:
		return &a.BehaviorInterests
	}
	return nil
}

// ProgressOf returns the stored progress of sub-form t
func (a *Assessments) ProgressOf(t AssessmentType) int {
	switch t {
	case MilestoneTracker:
		return a.MilestoneTracker.Progress
	case AssessmentLog:
		return a.AssessmentLog.Progress
	}
	if r := a.Rated(t); r != nil {
		return r.Progress
	}
	return 0
}

// SetProgress stores the progress of sub-form t
func (a *Assessments) SetProgress(t AssessmentType, p int) {
	switch t {
	case MilestoneTracker:
		a.MilestoneTracker.Progress = p
		return
	case AssessmentLog:
		a.AssessmentLog.Progress = p
		return
	}
	if r := a.Rated(t); r != nil {
		r.Progress = p
	}
}

// Clone deep copy
func (a Assessments) Clone() Assessments {
	c := a
	c.SensoryProfile = a.SensoryProfile.clone()
	c.SocialCommunication = a.SocialCommunication.clone()
	c.BehaviorInterests = a.BehaviorInterests.clone()

	c.MilestoneTracker.Milestones = make([]Milestone, len(a.MilestoneTracker.Milestones))
	for i, m := range a.MilestoneTracker.Milestones {
		if m.ActualAge != nil {
			v := *m.ActualAge
			m.ActualAge = &v
		}
		c.MilestoneTracker.Milestones[i] = m
	}

	c.AssessmentLog.Selected = slices.Clone(a.AssessmentLog.Selected)
	c.AssessmentLog.Entries = make(map[string]LogEntry, len(a.AssessmentLog.Entries))
	for k, v := range a.AssessmentLog.Entries {
		c.AssessmentLog.Entries[k] = v
	}
	return c
}

func (r RatedAssessment) clone() RatedAssessment {
	c := r
	c.Domains = make(map[string]DomainRating, len(r.Domains))
	for k, d := range r.Domains {
		if d.Value != nil {
			v := *d.Value
			d.Value = &v
		}
		d.Observations = slices.Clone(d.Observations)
		c.Domains[k] = d
	}
	return c
}
