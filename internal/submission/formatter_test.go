package submission

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleState() *domain.FormState {
	cat := catalog.Default()
	a := cat.NewAssessments()
	a.SensoryProfile.Domains["auditory"] = domain.DomainRating{
		Value:        intPtr(4),
		Observations: []string{"covers ears at hand dryers", " ", "avoids assemblies"},
	}
	a.MilestoneTracker.Milestones[6].ActualAge = intPtr(20)
	a.AssessmentLog.Selected = []string{"ADOS-2", "SRS-2"}
	a.AssessmentLog.Entries["ADOS-2"] = domain.LogEntry{Date: "2026-02-20", Notes: "Module 1"}

	submitted := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	return &domain.FormState{
		ChataID: "CHATA-1A2B3C4D",
		Clinician: domain.ClinicianInfo{
			Name:           "Dr. Amara Okafor",
			Email:          "a.okafor@clinic.example",
			Clinic:         "Northside",
			ChildName:      "Sam",
			ChildAgeMonths: intPtr(38),
		},
		ClinicalForm: domain.ClinicalForm{Strengths: "Strong visual memory"},
		Assessments:  a,
		Status:       domain.StatusSubmitted,
		Progress:     42,
		SubmittedAt:  &submitted,
	}
}

func TestFormat_AllSchemaFieldsPresent(t *testing.T) {
	rec, err := NewFormatter(catalog.Default(), 0).Format(sampleState(), Charts{})
	require.NoError(t, err)

	assert.Len(t, rec, len(Fields))
	for _, f := range Fields {
		assert.Contains(t, rec, f)
	}
	assert.Equal(t, "CHATA-1A2B3C4D", rec["chataId"])
	assert.Equal(t, 38, rec["childAgeMonths"])
	assert.Equal(t, 42, rec["progress"])
	assert.Equal(t, "submitted", rec["status"])
	assert.Equal(t, "2026-03-02T10:30:00Z", rec["submittedAt"])
	assert.Equal(t, "Strong visual memory", rec["strengths"])
	assert.Equal(t, "", rec["sensoryChart"])
}

func TestFormat_Serializations(t *testing.T) {
	rec, err := NewFormatter(catalog.Default(), 0).Format(sampleState(), Charts{})
	require.NoError(t, err)

	sensory := strings.Split(rec["sensoryProfile"].(string), "\n")
	require.Len(t, sensory, 6)
	assert.Equal(t, "Visual Processing: not rated", sensory[0])
	assert.Equal(t, "Auditory Processing: 4 (Mildly hyper-responsive) | covers ears at hand dryers; avoids assemblies", sensory[1])

	ms := strings.Split(rec["milestones"].(string), "\n")
	assert.Equal(t, "Social smile (social): expected 2m, not placed", ms[0])
	assert.Equal(t, "First words (language): expected 12m, actual 20m", ms[6])

	assert.Equal(t, "ADOS-2: 2026-02-20 | Module 1\nSRS-2: no date", rec["assessmentLog"])
}

func TestFormat_RequiresID(t *testing.T) {
	_, err := NewFormatter(catalog.Default(), 0).Format(&domain.FormState{}, Charts{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFormat_TruncatesLongText(t *testing.T) {
	st := sampleState()
	st.ClinicalForm.ClinicalObservations = strings.Repeat("é", 200)

	rec, err := NewFormatter(catalog.Default(), 100).Format(st, Charts{})
	require.NoError(t, err)

	got := rec["clinicalObservations"].(string)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, TruncationSuffix))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exactly10!", Truncate("exactly10!", 10))
	assert.Equal(t, "abcdef"+TruncationSuffix, Truncate(strings.Repeat("abcdef", 10), 6+len(TruncationSuffix)))
	assert.Equal(t, TruncationSuffix, Truncate(strings.Repeat("x", 50), 3))
}

func TestEncodeChart(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	got := EncodeChart(png, MaxFieldLength)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png), got)

	assert.Empty(t, EncodeChart(nil, MaxFieldLength))
	assert.Empty(t, EncodeChart(make([]byte, 40000), MaxFieldLength), "oversized chart is dropped")
}

func TestFormat_Charts(t *testing.T) {
	rec, err := NewFormatter(catalog.Default(), 0).Format(sampleState(), Charts{Social: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", rec["socialChart"])
	assert.Empty(t, rec["behaviorChart"])
}

func TestPayload(t *testing.T) {
	p := Payload("", Record{"chataId": "X"})
	inner, ok := p[DefaultSheet].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "X", inner["chataId"])
}
