package formstate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"
)

const (
	// MaxAgeMonths upper bound for child and milestone ages
	MaxAgeMonths = 216
	dateLayout   = "2006-01-02"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// ValidateClinician checks the fields required to open a session
func ValidateClinician(info domain.ClinicianInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return validationErr("clinician name is required")
	}
	if strings.TrimSpace(info.Email) == "" {
		return validationErr("clinician email is required")
	}
	if _, err := mail.ParseAddress(info.Email); err != nil {
		return validationErr("clinician email %q is invalid", info.Email)
	}
	if info.ChildAgeMonths != nil && (*info.ChildAgeMonths < 0 || *info.ChildAgeMonths > MaxAgeMonths) {
		return validationErr("child age must be between 0 and %d months", MaxAgeMonths)
	}
	return nil
}

func applyClinician(info *domain.ClinicianInfo, p ClinicianPatch) error {
	setString(&info.Name, p.Name)
	setString(&info.Email, p.Email)
	setString(&info.Clinic, p.Clinic)
	setString(&info.Phone, p.Phone)
	setString(&info.ChildName, p.ChildName)
	setString(&info.ChildGender, p.ChildGender)
	setString(&info.ReferralReason, p.ReferralReason)
	if p.ChildAgeMonths != nil {
		v := *p.ChildAgeMonths
		info.ChildAgeMonths = &v
	}
	return ValidateClinician(*info)
}

func applyClinicalForm(f *domain.ClinicalForm, p ClinicalFormPatch) {
	setString(&f.PresentingConcerns, p.PresentingConcerns)
	setString(&f.DevelopmentalHistory, p.DevelopmentalHistory)
	setString(&f.ClinicalObservations, p.ClinicalObservations)
	setString(&f.Strengths, p.Strengths)
	setString(&f.PriorityAreas, p.PriorityAreas)
	setString(&f.DifferentialDiagnosis, p.DifferentialDiagnosis)
	setString(&f.Recommendations, p.Recommendations)
	setString(&f.DiagnosticFormulation, p.DiagnosticFormulation)
}

func applyAssessment(c *catalog.Catalog, a *domain.Assessments, p AssessmentPatch) error {
	switch {
	case p.Type.IsRated():
		if len(p.Milestones) > 0 || p.Selected != nil || len(p.Entries) > 0 {
			return validationErr("%s only accepts domain updates", p.Type)
		}
		return applyRated(c, a.Rated(p.Type), p.Domains)
	case p.Type == domain.MilestoneTracker:
		if len(p.Domains) > 0 || p.Selected != nil || len(p.Entries) > 0 {
			return validationErr("%s only accepts milestone updates", p.Type)
		}
		return applyMilestones(&a.MilestoneTracker, p.Milestones)
	case p.Type == domain.AssessmentLog:
		if len(p.Domains) > 0 || len(p.Milestones) > 0 {
			return validationErr("%s only accepts instrument updates", p.Type)
		}
		return applyLog(&a.AssessmentLog, p.Selected, p.Entries)
	default:
		return validationErr("unknown assessment type %q", p.Type)
	}
}

func applyRated(c *catalog.Catalog, r *domain.RatedAssessment, patches map[string]DomainPatch) error {
	if r.Domains == nil {
		r.Domains = map[string]domain.DomainRating{}
	}
	for key, dp := range patches {
		if !c.HasDomain(r.Type, key) {
			return validationErr("unknown %s domain %q", r.Type, key)
		}
		if dp.Unset && dp.Value != nil {
			return validationErr("domain %q: value and unset are exclusive", key)
		}
		d := r.Domains[key]
		switch {
		case dp.Unset:
			d.Value = nil
		case dp.Value != nil:
			if *dp.Value < domain.MinRating || *dp.Value > domain.MaxRating {
				return validationErr("domain %q: rating %d outside %d-%d", key, *dp.Value, domain.MinRating, domain.MaxRating)
			}
			v := *dp.Value
			d.Value = &v
		}
		if dp.Observations != nil {
			obs := make([]string, 0, len(dp.Observations))
			for _, o := range dp.Observations {
				if o = strings.TrimSpace(o); o != "" {
					obs = append(obs, o)
				}
			}
			d.Observations = obs
		}
		r.Domains[key] = d
	}
	return nil
}

func applyMilestones(m *domain.MilestoneAssessment, patches []MilestonePatch) error {
	for _, mp := range patches {
		if mp.ActualAge != nil && mp.Unplace {
			return validationErr("milestone %q: actual_age and unplace are exclusive", mp.ID)
		}
		if err := checkAge("actual_age", mp.ActualAge); err != nil {
			return err
		}
		if err := checkAge("expected_age", mp.ExpectedAge); err != nil {
			return err
		}

		idx := indexOfMilestone(m.Milestones, mp.ID)
		if idx < 0 {
			if mp.Remove {
				return validationErr("milestone %q not found", mp.ID)
			}
			if strings.TrimSpace(mp.Name) == "" {
				return validationErr("milestone %q not found; custom milestones need a name", mp.ID)
			}
			custom := domain.Milestone{
				ID:       customMilestoneID(m.Milestones, mp.ID, mp.Name),
				Name:     strings.TrimSpace(mp.Name),
				Category: strings.TrimSpace(mp.Category),
				Custom:   true,
			}
			if custom.Category == "" {
				custom.Category = "custom"
			}
			if mp.ExpectedAge != nil {
				custom.ExpectedAge = *mp.ExpectedAge
			}
			if mp.ActualAge != nil {
				v := *mp.ActualAge
				custom.ActualAge = &v
			}
			m.Milestones = append(m.Milestones, custom)
			continue
		}

		ms := &m.Milestones[idx]
		if mp.Remove {
			if !ms.Custom {
				return validationErr("milestone %q is a standard milestone and cannot be removed", mp.ID)
			}
			m.Milestones = append(m.Milestones[:idx], m.Milestones[idx+1:]...)
			continue
		}
		switch {
		case mp.Unplace:
			ms.ActualAge = nil
		case mp.ActualAge != nil:
			v := *mp.ActualAge
			ms.ActualAge = &v
		}
		if ms.Custom {
			if name := strings.TrimSpace(mp.Name); name != "" {
				ms.Name = name
			}
			if cat := strings.TrimSpace(mp.Category); cat != "" {
				ms.Category = cat
			}
			if mp.ExpectedAge != nil {
				ms.ExpectedAge = *mp.ExpectedAge
			}
		}
	}
	return nil
}

func applyLog(l *domain.LogAssessment, selected []string, entries map[string]LogEntryPatch) error {
	if l.Entries == nil {
		l.Entries = map[string]domain.LogEntry{}
	}
	if selected != nil {
		seen := make(map[string]bool, len(selected))
		next := make([]string, 0, len(selected))
		for _, name := range selected {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			next = append(next, name)
		}
		l.Selected = next
	}

	for name, ep := range entries {
		if !contains(l.Selected, name) {
			return validationErr("instrument %q is not selected", name)
		}
		e := l.Entries[name]
		if ep.Date != nil {
			date := strings.TrimSpace(*ep.Date)
			if date != "" {
				if _, err := time.Parse(dateLayout, date); err != nil {
					return validationErr("instrument %q: date %q is not YYYY-MM-DD", name, date)
				}
			}
			e.Date = date
		}
		if ep.Notes != nil {
			e.Notes = *ep.Notes
		}
		l.Entries[name] = e
	}
	return nil
}

// refreshLabels re-derives rating labels from values
func refreshLabels(c *catalog.Catalog, a *domain.Assessments) {
	for _, t := range domain.AllAssessmentTypes {
		r := a.Rated(t)
		if r == nil {
			continue
		}
		for key, d := range r.Domains {
			d.Label = c.Label(t, d.Value)
			r.Domains[key] = d
		}
	}
}

func checkAge(field string, age *int) error {
	if age != nil && (*age < 0 || *age > MaxAgeMonths) {
		return validationErr("%s must be between 0 and %d months", field, MaxAgeMonths)
	}
	return nil
}

func indexOfMilestone(ms []domain.Milestone, id string) int {
	if id == "" {
		return -1
	}
	for i := range ms {
		if ms[i].ID == id {
			return i
		}
	}
	return -1
}

func customMilestoneID(existing []domain.Milestone, requested, name string) string {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = "custom_" + strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	}
	id := base
	for n := 2; indexOfMilestone(existing, id) >= 0; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
