package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SubmissionsSchema DDL for the archive table
const SubmissionsSchema = `
CREATE TABLE IF NOT EXISTS assessment_submissions (
	submission_id   UUID PRIMARY KEY,
	chata_id        TEXT NOT NULL UNIQUE,
	clinician_email TEXT NOT NULL,
	child_name      TEXT NOT NULL DEFAULT '',
	progress        INTEGER NOT NULL DEFAULT 0,
	sheet_row_id    INTEGER,
	payload         JSONB NOT NULL DEFAULT '{}'::jsonb,
	submitted_at    TIMESTAMPTZ NOT NULL
)`

// PostgresSubmissionsRepository archive backed by assessment_submissions
type PostgresSubmissionsRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionsRepository(db *sql.DB) *PostgresSubmissionsRepository {
	return &PostgresSubmissionsRepository{db: db}
}

var _ SubmissionsRepository = (*PostgresSubmissionsRepository)(nil)

// EnsureSchema creates the archive table if missing
func (r *PostgresSubmissionsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, SubmissionsSchema); err != nil {
		return fmt.Errorf("failed to create assessment_submissions: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionsRepository) CreateSubmission(ctx context.Context, s *Submission) (string, error) {
	if s == nil || s.ChataID == "" {
		return "", fmt.Errorf("chata_id is required")
	}
	if s.SubmissionID == "" {
		s.SubmissionID = uuid.NewString()
	}
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	var rowID sql.NullInt64
	if s.SheetRowID > 0 {
		rowID = sql.NullInt64{Int64: int64(s.SheetRowID), Valid: true}
	}

	query := `
		INSERT INTO assessment_submissions (
			submission_id, chata_id, clinician_email, child_name,
			progress, sheet_row_id, payload, submitted_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8)
		RETURNING submission_id::text
	`
	var id string
	err = r.db.QueryRowContext(ctx, query,
		s.SubmissionID,
		s.ChataID,
		s.ClinicianEmail,
		s.ChildName,
		s.Progress,
		rowID,
		string(payload),
		s.SubmittedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", fmt.Errorf("%s: %w", s.ChataID, ErrDuplicate)
		}
		return "", fmt.Errorf("failed to create submission: %w", err)
	}
	return id, nil
}

const submissionColumns = `
	submission_id::text,
	chata_id,
	clinician_email,
	COALESCE(child_name, '') as child_name,
	progress,
	COALESCE(sheet_row_id, 0) as sheet_row_id,
	COALESCE(payload, '{}'::jsonb) as payload,
	submitted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var s Submission
	var payload []byte
	if err := row.Scan(
		&s.SubmissionID,
		&s.ChataID,
		&s.ClinicianEmail,
		&s.ChildName,
		&s.Progress,
		&s.SheetRowID,
		&payload,
		&s.SubmittedAt,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &s.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", s.ChataID, err)
		}
	}
	return &s, nil
}

func (r *PostgresSubmissionsRepository) GetSubmission(ctx context.Context, chataID string) (*Submission, error) {
	if chataID == "" {
		return nil, fmt.Errorf("chata_id is required")
	}
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions WHERE chata_id = $1`

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, chataID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", chataID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionsRepository) ListSubmissions(ctx context.Context, page, size int) ([]*Submission, int, error) {
	page, size = normalizePage(page, size)
	offset := (page - 1) * size

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assessment_submissions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query := `SELECT ` + submissionColumns + `
		FROM assessment_submissions
		ORDER BY submitted_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	items := []*Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
