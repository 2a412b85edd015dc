// Package progress computes completion percentages for the assessment
// sub-forms and the aggregate record.
package progress

import (
	"math"
	"strings"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"
)

const (
	// RatingWeight part of a rated domain earned by a set rating
	RatingWeight = 0.6
	// ObservationWeight part earned by at least one non-blank observation
	ObservationWeight = 0.4
)

// Rated completion of a slider sub-form over the catalog's domains
func Rated(c *catalog.Catalog, r domain.RatedAssessment) int {
	keys := c.DomainKeys(r.Type)
	if len(keys) == 0 {
		return 0
	}
	var score float64
	for _, key := range keys {
		d := r.Domains[key]
		if d.Value != nil {
			score += RatingWeight
		}
		if HasObservation(d.Observations) {
			score += ObservationWeight
		}
	}
	return clamp(int(math.Round(score / float64(len(keys)) * 100)))
}

// Milestones fraction of milestones placed on the timeline
func Milestones(m domain.MilestoneAssessment) int {
	if len(m.Milestones) == 0 {
		return 0
	}
	placed := 0
	for _, ms := range m.Milestones {
		if ms.Placed() {
			placed++
		}
	}
	return clamp(int(math.Round(float64(placed) / float64(len(m.Milestones)) * 100)))
}

// Log fraction of selected instruments with both a date and notes
func Log(l domain.LogAssessment) int {
	if len(l.Selected) == 0 {
		return 0
	}
	complete := 0
	for _, name := range l.Selected {
		e := l.Entries[name]
		if strings.TrimSpace(e.Date) != "" && strings.TrimSpace(e.Notes) != "" {
			complete++
		}
	}
	return clamp(int(math.Round(float64(complete) / float64(len(l.Selected)) * 100)))
}

// Of computes the current (un-ratcheted) completion of sub-form t
func Of(c *catalog.Catalog, a *domain.Assessments, t domain.AssessmentType) int {
	switch t {
	case domain.MilestoneTracker:
		return Milestones(a.MilestoneTracker)
	case domain.AssessmentLog:
		return Log(a.AssessmentLog)
	}
	if r := a.Rated(t); r != nil {
		return Rated(c, *r)
	}
	return 0
}

// Part one sub-form's line in a breakdown
type Part struct {
	Type         domain.AssessmentType `json:"type"`
	Percent      int                   `json:"percent"`
	Share        int                   `json:"share"`
	Contribution float64               `json:"contribution"`
}

// Breakdown aggregate progress with its per-sub-form parts
type Breakdown struct {
	Total int    `json:"total"`
	Parts []Part `json:"parts"`
}

// Aggregate sums each sub-form's stored progress scaled to its share.
// A part never exceeds its share and the total never exceeds 100.
func Aggregate(c *catalog.Catalog, a domain.Assessments) Breakdown {
	b := Breakdown{Parts: make([]Part, 0, len(domain.AllAssessmentTypes))}
	var sum float64
	for _, t := range domain.AllAssessmentTypes {
		share := c.Share(t)
		pct := clamp(a.ProgressOf(t))
		contrib := math.Min(float64(share), float64(pct)*float64(share)/100)
		sum += contrib
		b.Parts = append(b.Parts, Part{
			Type:         t,
			Percent:      pct,
			Share:        share,
			Contribution: contrib,
		})
	}
	b.Total = clamp(int(math.Round(sum)))
	return b
}

// Ratchet keeps progress from going backwards
func Ratchet(prev, next int) int {
	if next < prev {
		return prev
	}
	return next
}

// HasObservation reports whether any observation has visible text
func HasObservation(obs []string) bool {
	for _, o := range obs {
		if strings.TrimSpace(o) != "" {
			return true
		}
	}
	return false
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
