package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessmentsClone_KeepsEmptySelection(t *testing.T) {
	a := Assessments{
		AssessmentLog: LogAssessment{
			Type:     AssessmentLog,
			Selected: []string{},
			Entries:  map[string]LogEntry{},
		},
	}

	c := a.Clone()
	require.NotNil(t, c.AssessmentLog.Selected)
	assert.Empty(t, c.AssessmentLog.Selected)

	raw, err := json.Marshal(c.AssessmentLog)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"selected":[]`)
}

func TestAssessmentsClone_IsDeep(t *testing.T) {
	v := 3
	a := Assessments{
		SensoryProfile: RatedAssessment{
			Type: SensoryProfile,
			Domains: map[string]DomainRating{
				"visual": {Value: &v, Observations: []string{"squints"}},
			},
		},
		AssessmentLog: LogAssessment{Selected: []string{"ADOS-2"}},
	}

	c := a.Clone()
	*c.SensoryProfile.Domains["visual"].Value = 5
	c.SensoryProfile.Domains["visual"].Observations[0] = "changed"
	c.AssessmentLog.Selected[0] = "changed"

	assert.Equal(t, 3, *a.SensoryProfile.Domains["visual"].Value)
	assert.Equal(t, "squints", a.SensoryProfile.Domains["visual"].Observations[0])
	assert.Equal(t, "ADOS-2", a.AssessmentLog.Selected[0])
	assert.Nil(t, Assessments{}.Clone().AssessmentLog.Selected)
}
