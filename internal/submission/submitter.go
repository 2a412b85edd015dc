package submission

import (
	"context"
	"time"

	"chata-intake/internal/domain"
	"chata-intake/internal/events"
	"chata-intake/internal/formstate"
	"chata-intake/internal/repository"

	"go.uber.org/zap"
)

// ErrInProgress another submission of the same session is running
var ErrInProgress = formstate.ErrSubmitInProgress

// Poster delivers a formatted row; *SheetyClient in production
type Poster interface {
	Post(ctx context.Context, rec Record) (*SheetyResult, error)
}

// Result outcome of a successful submission
type Result struct {
	ChataID      string    `json:"chata_id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	RowID        int       `json:"row_id,omitempty"`
	Attempts     int       `json:"attempts"`
	Progress     int       `json:"progress"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Record       Record    `json:"-"`
}

// Submitter runs the submit workflow: format, post, lock, archive, announce
type Submitter struct {
	forms     *formstate.Store
	formatter *Formatter
	poster    Poster
	repo      repository.SubmissionsRepository
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewSubmitter(forms *formstate.Store, formatter *Formatter, poster Poster, repo repository.SubmissionsRepository, pub events.Publisher, logger *zap.Logger) *Submitter {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Submitter{
		forms:     forms,
		formatter: formatter,
		poster:    poster,
		repo:      repo,
		events:    pub,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit sends the session's record to the spreadsheet. The session is
// read-only while the POST runs, so the row and the stored record match.
// On failure the draft is reopened so the clinician can retry; on
// success the record is locked as submitted.
func (s *Submitter) Submit(ctx context.Context, chataID string, charts Charts) (*Result, error) {
	state, err := s.forms.BeginSubmit(ctx, chataID)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.forms.AbortSubmit(chataID)
		}
	}()

	if err := formstate.ValidateClinician(state.Clinician); err != nil {
		return nil, err
	}

	submittedAt := s.now().UTC()
	outgoing := state.Clone()
	outgoing.Status = domain.StatusSubmitted
	outgoing.SubmittedAt = &submittedAt

	rec, err := s.formatter.Format(outgoing, charts)
	if err != nil {
		return nil, err
	}

	posted, err := s.poster.Post(ctx, rec)
	if err != nil {
		s.logger.Error("Submission failed, draft kept",
			zap.String("chata_id", chataID),
			zap.Error(err),
		)
		return nil, err
	}

	committed = true
	if _, err := s.forms.MarkSubmitted(ctx, chataID, submittedAt); err != nil {
		// the row is already in the sheet; report success regardless
		s.logger.Error("Failed to lock submitted record",
			zap.String("chata_id", chataID),
			zap.Error(err),
		)
	}

	result := &Result{
		ChataID:     chataID,
		RowID:       posted.RowID,
		Attempts:    posted.Attempts,
		Progress:    state.Progress,
		SubmittedAt: submittedAt,
		Record:      rec,
	}
	result.SubmissionID = s.archive(ctx, state, result)
	s.announce(ctx, result)

	s.logger.Info("Assessment submitted",
		zap.String("chata_id", chataID),
		zap.Int("row_id", result.RowID),
		zap.Int("progress", result.Progress),
	)
	return result, nil
}

func (s *Submitter) archive(ctx context.Context, state *domain.FormState, r *Result) string {
	if s.repo == nil {
		return ""
	}
	id, err := s.repo.CreateSubmission(ctx, &repository.Submission{
		ChataID:        r.ChataID,
		ClinicianEmail: state.Clinician.Email,
		ChildName:      state.Clinician.ChildName,
		Progress:       r.Progress,
		SheetRowID:     r.RowID,
		Payload:        map[string]any(r.Record),
		SubmittedAt:    r.SubmittedAt,
	})
	if err != nil {
		s.logger.Warn("Failed to archive submission", zap.String("chata_id", r.ChataID), zap.Error(err))
		return ""
	}
	return id
}

func (s *Submitter) announce(ctx context.Context, r *Result) {
	err := s.events.Publish(ctx, events.Event{
		Type:       events.TypeSubmitted,
		ChataID:    r.ChataID,
		OccurredAt: r.SubmittedAt,
		Data: map[string]any{
			"submission_id": r.SubmissionID,
			"row_id":        r.RowID,
			"progress":      r.Progress,
		},
	})
	if err != nil {
		s.logger.Warn("Failed to publish submission event", zap.String("chata_id", r.ChataID), zap.Error(err))
	}
}
