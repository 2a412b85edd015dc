// Package catalog holds the static definition of the five assessment
// sub-forms: which domains a rated form has, how ratings are labelled,
// the default milestone list, the standard instruments, and how much of
// the aggregate progress each sub-form is worth.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"chata-intake/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TotalShare upper bound for the sum of all sub-form shares
const TotalShare = 100

type DomainDef struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name" json:"name"`
}

type RatedForm struct {
	Labels  map[int]string `yaml:"labels" json:"labels"`
	Domains []DomainDef    `yaml:"domains" json:"domains"`
}

type MilestoneDef struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`
	ExpectedAge int    `yaml:"expected_age" json:"expected_age"`
}

type Catalog struct {
	Shares      map[domain.AssessmentType]int       `yaml:"shares" json:"shares"`
	RatedForms  map[domain.AssessmentType]RatedForm `yaml:"rated_forms" json:"rated_forms"`
	Milestones  []MilestoneDef                      `yaml:"milestones" json:"milestones"`
	Instruments []string                            `yaml:"instruments" json:"instruments"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog. It panics only if the embedded
// file is broken, which the package tests guard against.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(bytes.NewReader(defaultCatalog))
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Load parses and validates a YAML catalog
func Load(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile loads an override catalog from disk; empty path means Default()
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks shares and that every rated form has labelled domains
func (c *Catalog) Validate() error {
	total := 0
	for _, t := range domain.AllAssessmentTypes {
		share, ok := c.Shares[t]
		if !ok {
			return fmt.Errorf("catalog: missing share for %s", t)
		}
		if share < 0 {
			return fmt.Errorf("catalog: negative share for %s", t)
		}
		total += share
	}
	if total > TotalShare {
		return fmt.Errorf("catalog: shares sum to %d, must not exceed %d", total, TotalShare)
	}

	for _, t := range domain.AllAssessmentTypes {
		if !t.IsRated() {
			continue
		}
		form, ok := c.RatedForms[t]
		if !ok || len(form.Domains) == 0 {
			return fmt.Errorf("catalog: rated form %s has no domains", t)
		}
		seen := make(map[string]bool, len(form.Domains))
		for _, d := range form.Domains {
			if d.Key == "" {
				return fmt.Errorf("catalog: rated form %s has a domain without key", t)
			}
			if seen[d.Key] {
				return fmt.Errorf("catalog: duplicate domain %s in %s", d.Key, t)
			}
			seen[d.Key] = true
		}
		for v := domain.MinRating; v <= domain.MaxRating; v++ {
			if strings.TrimSpace(form.Labels[v]) == "" {
				return fmt.Errorf("catalog: rated form %s has no label for rating %d", t, v)
			}
		}
	}

	ids := make(map[string]bool, len(c.Milestones))
	for _, m := range c.Milestones {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("catalog: milestone needs id and name")
		}
		if ids[m.ID] {
			return fmt.Errorf("catalog: duplicate milestone %s", m.ID)
		}
		if m.ExpectedAge < 0 {
			return fmt.Errorf("catalog: milestone %s has negative expected age", m.ID)
		}
		ids[m.ID] = true
	}
	return nil
}

// Share weight of sub-form t in the aggregate
func (c *Catalog) Share(t domain.AssessmentType) int {
	return c.Shares[t]
}

// DomainKeys ordered domain keys of a rated form
func (c *Catalog) DomainKeys(t domain.AssessmentType) []string {
	form := c.RatedForms[t]
	keys := make([]string, 0, len(form.Domains))
	for _, d := range form.Domains {
		keys = append(keys, d.Key)
	}
	return keys
}

// DomainName display name of a domain, falling back to the key
func (c *Catalog) DomainName(t domain.AssessmentType, key string) string {
	for _, d := range c.RatedForms[t].Domains {
		if d.Key == key {
			return d.Name
		}
	}
	return key
}

// HasDomain reports whether key belongs to rated form t
func (c *Catalog) HasDomain(t domain.AssessmentType, key string) bool {
	for _, d := range c.RatedForms[t].Domains {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Label derived label for a rating; "" when unset
func (c *Catalog) Label(t domain.AssessmentType, value *int) string {
	if value == nil {
		return ""
	}
	return c.RatedForms[t].Labels[*value]
}

// NewAssessments blank sub-records: every rated domain unset, default
// milestones unplaced, no instruments selected.
func (c *Catalog) NewAssessments() domain.Assessments {
	a := domain.Assessments{
		SensoryProfile:      c.newRated(domain.SensoryProfile),
		SocialCommunication: c.newRated(domain.SocialCommunication),
		BehaviorInterests:   c.newRated(domain.BehaviorInterests),
		MilestoneTracker: domain.MilestoneAssessment{
			Type:       domain.MilestoneTracker,
			Milestones: make([]domain.Milestone, 0, len(c.Milestones)),
		},
		AssessmentLog: domain.LogAssessment{
			Type:     domain.AssessmentLog,
			Selected: []string{},
			Entries:  map[string]domain.LogEntry{},
		},
	}
	for _, m := range c.Milestones {
		a.MilestoneTracker.Milestones = append(a.MilestoneTracker.Milestones, domain.Milestone{
			ID:          m.ID,
			Name:        m.Name,
			Category:    m.Category,
			ExpectedAge: m.ExpectedAge,
		})
	}
	return a
}

func (c *Catalog) newRated(t domain.AssessmentType) domain.RatedAssessment {
	r := domain.RatedAssessment{
		Type:    t,
		Domains: make(map[string]domain.DomainRating, len(c.RatedForms[t].Domains)),
	}
	for _, d := range c.RatedForms[t].Domains {
		r.Domains[d.Key] = domain.DomainRating{}
	}
	return r
}
