package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound no archived submission for the session
var ErrNotFound = errors.New("submission not found")

// ErrDuplicate session already archived
var ErrDuplicate = errors.New("submission already archived")

// Submission archived copy of a record accepted by the spreadsheet
type Submission struct {
	SubmissionID   string         `json:"submission_id"`
	ChataID        string         `json:"chata_id"`
	ClinicianEmail string         `json:"clinician_email"`
	ChildName      string         `json:"child_name,omitempty"`
	Progress       int            `json:"progress"`
	SheetRowID     int            `json:"sheet_row_id,omitempty"`
	Payload        map[string]any `json:"payload"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// SubmissionsRepository archive of submitted assessments
type SubmissionsRepository interface {
	// CreateSubmission stores s and returns its submission_id (generated when empty)
	CreateSubmission(ctx context.Context, s *Submission) (string, error)

	// GetSubmission by session identifier
	GetSubmission(ctx context.Context, chataID string) (*Submission, error)

	// ListSubmissions newest first
	ListSubmissions(ctx context.Context, page, size int) ([]*Submission, int, error)
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}
	return page, size
}
