// Package submission flattens an assessment record into the spreadsheet
// schema and delivers it to Sheety.
package submission

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"
)

const (
	// MaxFieldLength cap on a single cell; the spreadsheet limit is 50 000
	MaxFieldLength = 45000
	// TruncationSuffix marks a field cut to MaxFieldLength
	TruncationSuffix = "...[truncated]"
	// DefaultSheet Sheety sheet (and payload wrapper) name
	DefaultSheet = "assessment"

	chartPrefix = "data:image/png;base64,"
)

// Fields spreadsheet columns in schema order
var Fields = []string{
	"chataId",
	"clinicianName",
	"clinicianEmail",
	"clinicName",
	"clinicianPhone",
	"childName",
	"childAgeMonths",
	"childGender",
	"referralReason",
	"sensoryProfile",
	"socialCommunication",
	"behaviorInterests",
	"milestones",
	"assessmentLog",
	"presentingConcerns",
	"developmentalHistory",
	"clinicalObservations",
	"strengths",
	"priorityAreas",
	"differentialDiagnosis",
	"recommendations",
	"diagnosticFormulation",
	"progress",
	"status",
	"submittedAt",
	"sensoryChart",
	"socialChart",
	"behaviorChart",
}

// Charts optional PNG renderings of the three rated sub-forms
type Charts struct {
	Sensory  []byte
	Social   []byte
	Behavior []byte
}

// Record one flattened spreadsheet row keyed by Fields
type Record map[string]any

// Formatter maps FormState to Record
type Formatter struct {
	catalog  *catalog.Catalog
	maxField int
}

func NewFormatter(cat *catalog.Catalog, maxField int) *Formatter {
	if maxField <= 0 || maxField > MaxFieldLength {
		maxField = MaxFieldLength
	}
	return &Formatter{catalog: cat, maxField: maxField}
}

// Format flattens state. Every entry of Fields is present in the result.
func (f *Formatter) Format(state *domain.FormState, charts Charts) (Record, error) {
	if state == nil || state.ChataID == "" {
		return nil, fmt.Errorf("%w: record without chata id", domain.ErrValidation)
	}
	ci := state.Clinician
	cf := state.ClinicalForm
	a := state.Assessments

	rec := Record{
		"chataId":               state.ChataID,
		"clinicianName":         f.text(ci.Name),
		"clinicianEmail":        f.text(ci.Email),
		"clinicName":            f.text(ci.Clinic),
		"clinicianPhone":        f.text(ci.Phone),
		"childName":             f.text(ci.ChildName),
		"childAgeMonths":        "",
		"childGender":           f.text(ci.ChildGender),
		"referralReason":        f.text(ci.ReferralReason),
		"sensoryProfile":        f.text(f.rated(a.SensoryProfile)),
		"socialCommunication":   f.text(f.rated(a.SocialCommunication)),
		"behaviorInterests":     f.text(f.rated(a.BehaviorInterests)),
		"milestones":            f.text(milestones(a.MilestoneTracker)),
		"assessmentLog":         f.text(assessmentLog(a.AssessmentLog)),
		"presentingConcerns":    f.text(cf.PresentingConcerns),
		"developmentalHistory":  f.text(cf.DevelopmentalHistory),
		"clinicalObservations":  f.text(cf.ClinicalObservations),
		"strengths":             f.text(cf.Strengths),
		"priorityAreas":         f.text(cf.PriorityAreas),
		"differentialDiagnosis": f.text(cf.DifferentialDiagnosis),
		"recommendations":       f.text(cf.Recommendations),
		"diagnosticFormulation": f.text(cf.DiagnosticFormulation),
		"progress":              state.Progress,
		"status":                string(state.Status),
		"submittedAt":           "",
		"sensoryChart":          EncodeChart(charts.Sensory, f.maxField),
		"socialChart":           EncodeChart(charts.Social, f.maxField),
		"behaviorChart":         EncodeChart(charts.Behavior, f.maxField),
	}
	if ci.ChildAgeMonths != nil {
		rec["childAgeMonths"] = *ci.ChildAgeMonths
	}
	if state.SubmittedAt != nil {
		rec["submittedAt"] = state.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return rec, nil
}

// Payload wraps a record in the sheet envelope Sheety expects
func Payload(sheet string, rec Record) map[string]any {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return map[string]any{sheet: map[string]any(rec)}
}

// Truncate cuts s to limit characters, suffix included
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(TruncationSuffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + TruncationSuffix
}

// EncodeChart data URL for a PNG; "" when absent or too large for a cell
func EncodeChart(png []byte, limit int) string {
	if len(png) == 0 {
		return ""
	}
	if len(chartPrefix)+base64.StdEncoding.EncodedLen(len(png)) > limit {
		return ""
	}
	return chartPrefix + base64.StdEncoding.EncodeToString(png)
}

func (f *Formatter) text(s string) string {
	return Truncate(s, f.maxField)
}

// rated one line per catalog domain: "Name: 4 (Label) | obs; obs"
func (f *Formatter) rated(r domain.RatedAssessment) string {
	keys := f.catalog.DomainKeys(r.Type)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		d := r.Domains[key]
		var b strings.Builder
		b.WriteString(f.catalog.DomainName(r.Type, key))
		b.WriteString(": ")
		if d.Value == nil {
			b.WriteString("not rated")
		} else {
			fmt.Fprintf(&b, "%d", *d.Value)
			if label := f.catalog.Label(r.Type, d.Value); label != "" {
				fmt.Fprintf(&b, " (%s)", label)
			}
		}
		if obs := nonBlank(d.Observations); len(obs) > 0 {
			b.WriteString(" | ")
			b.WriteString(strings.Join(obs, "; "))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func milestones(m domain.MilestoneAssessment) string {
	lines := make([]string, 0, len(m.Milestones))
	for _, ms := range m.Milestones {
		actual := "not placed"
		if ms.Placed() {
			actual = fmt.Sprintf("actual %dm", *ms.ActualAge)
		}
		lines = append(lines, fmt.Sprintf("%s (%s): expected %dm, %s", ms.Name, ms.Category, ms.ExpectedAge, actual))
	}
	return strings.Join(lines, "\n")
}

func assessmentLog(l domain.LogAssessment) string {
	lines := make([]string, 0, len(l.Selected))
	for _, name := range l.Selected {
		e := l.Entries[name]
		date := strings.TrimSpace(e.Date)
		if date == "" {
			date = "no date"
		}
		line := name + ": " + date
		if notes := strings.TrimSpace(e.Notes); notes != "" {
			line += " | " + notes
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
