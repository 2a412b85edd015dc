// Package formstate is the form state store: it owns the live aggregate
// record of every open assessment session, merges partial updates from
// the five sub-forms, keeps progress monotonic and hands snapshots to the
// debounced draft writer.
package formstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"
	"chata-intake/internal/drafts"
	"chata-intake/internal/progress"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadySubmitted restore refused: the draft was submitted
	ErrAlreadySubmitted = errors.New("draft already submitted")
	// ErrSessionMismatch stored draft belongs to another session identifier
	ErrSessionMismatch = errors.New("draft does not match session identifier")
	// ErrSubmitInProgress the session is being submitted and is read-only
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// IDPrefix prefix of generated session identifiers
const IDPrefix = "CHATA-"

// NewChataID short session code: CHATA- plus 8 upper-case hex digits
func NewChataID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return IDPrefix + strings.ToUpper(hex[:8])
}

// Store live sessions keyed by session identifier
type Store struct {
	catalog   *catalog.Catalog
	drafts    *drafts.Store
	debouncer *drafts.Debouncer
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	sessions   map[string]*domain.FormState
	submitting map[string]bool
}

func New(cat *catalog.Catalog, draftStore *drafts.Store, debouncer *drafts.Debouncer, logger *zap.Logger) *Store {
	return &Store{
		catalog:    cat,
		drafts:     draftStore,
		debouncer:  debouncer,
		logger:     logger,
		now:        time.Now,
		newID:      NewChataID,
		sessions:   map[string]*domain.FormState{},
		submitting: map[string]bool{},
	}
}

// Catalog the catalog sessions are built from
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Start opens a session from the clinician-info step and writes the
// first draft immediately.
func (s *Store) Start(ctx context.Context, info domain.ClinicianInfo) (*domain.FormState, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Email = strings.TrimSpace(info.Email)
	if err := ValidateClinician(info); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	state := &domain.FormState{
		Clinician:   info,
		Assessments: s.catalog.NewAssessments(),
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		LastUpdated: now,
	}

	s.mu.Lock()
	id := s.newID()
	for s.sessions[id] != nil {
		id = s.newID()
	}
	state.ChataID = id
	s.sessions[id] = state
	snap := state.Clone()
	s.mu.Unlock()

	if err := s.drafts.Save(ctx, snap); err != nil {
		s.logger.Warn("Initial draft save failed", zap.String("chata_id", id), zap.Error(err))
	}
	s.logger.Info("Assessment session started",
		zap.String("chata_id", id),
		zap.String("clinician_email", info.Email),
	)
	return snap, nil
}

// Get current record; falls back to the draft store when not live
func (s *Store) Get(ctx context.Context, chataID string) (*domain.FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked(ctx, chataID)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// Restore reconciles a draft against the session identifier taken from
// the URL: the stored record must carry the same identifier and must not
// be submitted. The draft is merged over catalog defaults and becomes live.
func (s *Store) Restore(ctx context.Context, urlID string) (*domain.FormState, error) {
	urlID = strings.TrimSpace(urlID)
	if urlID == "" {
		return nil, validationErr("chata_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if live, ok := s.sessions[urlID]; ok {
		if !live.IsDraft() {
			return nil, fmt.Errorf("%s: %w", urlID, ErrAlreadySubmitted)
		}
		return live.Clone(), nil
	}

	stored, err := s.drafts.Load(ctx, urlID)
	if err != nil {
		return nil, err
	}
	if stored.ChataID != urlID {
		return nil, fmt.Errorf("%w: url %s, draft %s", ErrSessionMismatch, urlID, stored.ChataID)
	}
	if !stored.IsDraft() {
		return nil, fmt.Errorf("%s: %w", urlID, ErrAlreadySubmitted)
	}

	merged := s.mergeOverDefaults(stored)
	s.sessions[urlID] = merged
	s.logger.Info("Draft restored",
		zap.String("chata_id", urlID),
		zap.Int("progress", merged.Progress),
		zap.Time("last_updated", merged.LastUpdated),
	)
	return merged.Clone(), nil
}

// UpdateClinician merges clinician fields
func (s *Store) UpdateClinician(ctx context.Context, chataID string, p ClinicianPatch) (*domain.FormState, error) {
	return s.mutate(ctx, chataID, func(st *domain.FormState) error {
		return applyClinician(&st.Clinician, p)
	})
}

// UpdateClinicalForm merges free-text clinical sections
func (s *Store) UpdateClinicalForm(ctx context.Context, chataID string, p ClinicalFormPatch) (*domain.FormState, error) {
	return s.mutate(ctx, chataID, func(st *domain.FormState) error {
		applyClinicalForm(&st.ClinicalForm, p)
		return nil
	})
}

// UpdateAssessment merges a partial sub-form update
func (s *Store) UpdateAssessment(ctx context.Context, chataID string, p AssessmentPatch) (*domain.FormState, error) {
	if _, err := domain.ParseAssessmentType(string(p.Type)); err != nil {
		return nil, err
	}
	return s.mutate(ctx, chataID, func(st *domain.FormState) error {
		return applyAssessment(s.catalog, &st.Assessments, p)
	})
}

// Progress aggregate breakdown of the stored (ratcheted) values
func (s *Store) Progress(ctx context.Context, chataID string) (progress.Breakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked(ctx, chataID)
	if err != nil {
		return progress.Breakdown{}, err
	}
	b := progress.Aggregate(s.catalog, state.Assessments)
	b.Total = state.Progress
	return b, nil
}

// Clear discards the session and its draft. A session being submitted
// cannot be cleared.
func (s *Store) Clear(ctx context.Context, chataID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting[chataID] {
		return fmt.Errorf("%s: %w", chataID, ErrSubmitInProgress)
	}
	if _, live := s.sessions[chataID]; !live {
		if _, err := s.drafts.Load(ctx, chataID); errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	delete(s.sessions, chataID)

	// waits out a debounced write already under way
	s.debouncer.Cancel(chataID)
	if err := s.drafts.Delete(ctx, chataID); err != nil {
		s.logger.Warn("Draft delete failed", zap.String("chata_id", chataID), zap.Error(err))
		return err
	}
	s.logger.Info("Assessment session cleared", zap.String("chata_id", chataID))
	return nil
}

// BeginSubmit freezes the session for submission and returns the record
// to send. Until MarkSubmitted or AbortSubmit, edits and Clear are
// refused with ErrSubmitInProgress.
func (s *Store) BeginSubmit(ctx context.Context, chataID string) (*domain.FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting[chataID] {
		return nil, fmt.Errorf("%s: %w", chataID, ErrSubmitInProgress)
	}
	state, err := s.loadLocked(ctx, chataID)
	if err != nil {
		return nil, err
	}
	if !state.IsDraft() {
		return nil, fmt.Errorf("%s: %w", chataID, domain.ErrSubmitted)
	}
	s.submitting[chataID] = true
	return state.Clone(), nil
}

// AbortSubmit reopens a session after a failed submission
func (s *Store) AbortSubmit(chataID string) {
	s.mu.Lock()
	delete(s.submitting, chataID)
	s.mu.Unlock()
}

// MarkSubmitted flips the record to submitted, writes it through and
// releases the live session. The stored record stays behind so a later
// restore of the same identifier is refused.
func (s *Store) MarkSubmitted(ctx context.Context, chataID string, at time.Time) (*domain.FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer delete(s.submitting, chataID)

	state, err := s.loadLocked(ctx, chataID)
	if err != nil {
		return nil, err
	}
	if !state.IsDraft() {
		return nil, fmt.Errorf("%s: %w", chataID, domain.ErrSubmitted)
	}
	submittedAt := at.UTC()
	state.Status = domain.StatusSubmitted
	state.SubmittedAt = &submittedAt
	state.LastUpdated = submittedAt
	snap := state.Clone()
	delete(s.sessions, chataID)

	// no earlier draft snapshot may land after the submitted record
	s.debouncer.Cancel(chataID)
	if err := s.drafts.Save(ctx, snap); err != nil {
		s.logger.Warn("Submitted record save failed", zap.String("chata_id", chataID), zap.Error(err))
	}
	return snap, nil
}

// Flush writes all pending debounced drafts
func (s *Store) Flush(ctx context.Context) {
	s.debouncer.Flush(ctx)
}

// Live number of sessions held in memory
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) mutate(ctx context.Context, chataID string, fn func(*domain.FormState) error) (*domain.FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx, chataID)
	if err != nil {
		return nil, err
	}
	if !state.IsDraft() {
		return nil, fmt.Errorf("%s: %w", chataID, domain.ErrSubmitted)
	}
	if s.submitting[chataID] {
		return nil, fmt.Errorf("%s: %w", chataID, ErrSubmitInProgress)
	}

	// patches apply to a copy so a rejected patch leaves no trace
	next := state.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.recompute(next, state)
	next.LastUpdated = s.now().UTC()
	s.sessions[chataID] = next

	s.debouncer.Schedule(next)
	return next.Clone(), nil
}

// recompute refreshes labels and ratchets every progress value against prev
func (s *Store) recompute(next, prev *domain.FormState) {
	refreshLabels(s.catalog, &next.Assessments)
	for _, t := range domain.AllAssessmentTypes {
		current := progress.Of(s.catalog, &next.Assessments, t)
		next.Assessments.SetProgress(t, progress.Ratchet(prev.Assessments.ProgressOf(t), current))
	}
	total := progress.Aggregate(s.catalog, next.Assessments).Total
	next.Progress = progress.Ratchet(prev.Progress, total)
}

// loadLocked returns the live record, reviving it from the draft store if
// needed. Caller holds s.mu.
func (s *Store) loadLocked(ctx context.Context, chataID string) (*domain.FormState, error) {
	if state, ok := s.sessions[chataID]; ok {
		return state, nil
	}
	stored, err := s.drafts.Load(ctx, chataID)
	if err != nil {
		return nil, err
	}
	if stored.ChataID != chataID {
		return nil, fmt.Errorf("%w: requested %s, draft %s", ErrSessionMismatch, chataID, stored.ChataID)
	}
	if !stored.IsDraft() {
		// read-only view, not made live
		return stored, nil
	}
	merged := s.mergeOverDefaults(stored)
	s.sessions[chataID] = merged
	return merged, nil
}

// mergeOverDefaults lays a stored draft over a fresh catalog record:
// stored values win, domains and milestones added to the catalog since
// the draft was written appear unset, domains dropped from it are removed.
func (s *Store) mergeOverDefaults(stored *domain.FormState) *domain.FormState {
	merged := stored.Clone()
	defaults := s.catalog.NewAssessments()

	for _, t := range domain.AllAssessmentTypes {
		r := defaults.Rated(t)
		if r == nil {
			continue
		}
		src := stored.Assessments.Rated(t)
		for key := range r.Domains {
			if d, ok := src.Domains[key]; ok {
				r.Domains[key] = d
			}
		}
		r.Progress = src.Progress
	}

	byID := make(map[string]domain.Milestone, len(stored.Assessments.MilestoneTracker.Milestones))
	for _, m := range stored.Assessments.MilestoneTracker.Milestones {
		byID[m.ID] = m
	}
	for i, m := range defaults.MilestoneTracker.Milestones {
		if old, ok := byID[m.ID]; ok {
			defaults.MilestoneTracker.Milestones[i].ActualAge = old.ActualAge
			delete(byID, m.ID)
		}
	}
	for _, m := range stored.Assessments.MilestoneTracker.Milestones {
		if _, leftover := byID[m.ID]; leftover {
			defaults.MilestoneTracker.Milestones = append(defaults.MilestoneTracker.Milestones, m)
		}
	}
	defaults.MilestoneTracker.Progress = stored.Assessments.MilestoneTracker.Progress

	if stored.Assessments.AssessmentLog.Selected != nil {
		defaults.AssessmentLog.Selected = stored.Assessments.AssessmentLog.Selected
	}
	for k, v := range stored.Assessments.AssessmentLog.Entries {
		defaults.AssessmentLog.Entries[k] = v
	}
	defaults.AssessmentLog.Progress = stored.Assessments.AssessmentLog.Progress

	merged.Assessments = defaults.Clone()
	if merged.Status == "" {
		merged.Status = domain.StatusDraft
	}
	s.recompute(merged, stored)
	return merged
}
