package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresSubmissionsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresSubmissionsRepository(db)
}

var submissionCols = []string{
	"submission_id", "chata_id", "clinician_email", "child_name",
	"progress", "sheet_row_id", "payload", "submitted_at",
}

func sampleSubmission() *Submission {
	return &Submission{
		ChataID:        "CHATA-1A2B3C4D",
		ClinicianEmail: "a.okafor@clinic.example",
		ChildName:      "Sam",
		Progress:       85,
		SheetRowID:     12,
		Payload:        map[string]any{"chataId": "CHATA-1A2B3C4D"},
		SubmittedAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateSubmission_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	s := sampleSubmission()
	mock.ExpectQuery(`INSERT INTO assessment_submissions`).
		WithArgs(sqlmock.AnyArg(), s.ChataID, s.ClinicianEmail, "Sam", 85, sqlmock.AnyArg(), `{"chataId":"CHATA-1A2B3C4D"}`, s.SubmittedAt).
		WillReturnRows(sqlmock.NewRows([]string{"submission_id"}).AddRow("0b9e1a52-7a43-4c8e-9e57-3c1f2f8e4a10"))

	id, err := repo.CreateSubmission(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "0b9e1a52-7a43-4c8e-9e57-3c1f2f8e4a10", id)
	_, parseErr := uuid.Parse(s.SubmissionID)
	assert.NoError(t, parseErr, "generated id is a uuid")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubmission_Duplicate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO assessment_submissions`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	_, err := repo.CreateSubmission(context.Background(), sampleSubmission())
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubmission_RequiresChataID(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	_, err := repo.CreateSubmission(context.Background(), &Submission{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chata_id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmission_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT`).
		WithArgs("CHATA-1A2B3C4D").
		WillReturnRows(sqlmock.NewRows(submissionCols).AddRow(
			"0b9e1a52-7a43-4c8e-9e57-3c1f2f8e4a10", "CHATA-1A2B3C4D", "a.okafor@clinic.example", "Sam",
			85, 12, []byte(`{"progress":85}`), at,
		))

	s, err := repo.GetSubmission(context.Background(), "CHATA-1A2B3C4D")
	require.NoError(t, err)
	assert.Equal(t, 85, s.Progress)
	assert.Equal(t, 12, s.SheetRowID)
	assert.EqualValues(t, 85, s.Payload["progress"])
	assert.Equal(t, at, s.SubmittedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmission_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("CHATA-MISSING").
		WillReturnError(sql.ErrNoRows)

	s, err := repo.GetSubmission(context.Background(), "CHATA-MISSING")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubmissions_Paginates(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY submitted_at DESC`).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(submissionCols).AddRow(
			uuid.NewString(), "CHATA-00000003", "c@clinic.example", "", 40, 0, []byte(`{}`), at,
		))

	items, total, err := repo.ListSubmissions(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "CHATA-00000003", items[0].ChataID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS assessment_submissions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySubmissions(t *testing.T) {
	repo := NewMemorySubmissionsRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		_, err := repo.CreateSubmission(ctx, &Submission{
			ChataID:     fmt.Sprintf("CHATA-%08d", i),
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	_, err := repo.CreateSubmission(ctx, &Submission{ChataID: "CHATA-00000001"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := repo.GetSubmission(ctx, "CHATA-00000002")
	require.NoError(t, err)
	assert.NotEmpty(t, got.SubmissionID)

	_, err = repo.GetSubmission(ctx, "CHATA-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	items, total, err := repo.ListSubmissions(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "CHATA-00000003", items[0].ChataID, "newest first")

	items, _, err = repo.ListSubmissions(ctx, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, items)
}
