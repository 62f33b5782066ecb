package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniops/clearance-api/internal/models"
)

func TestIssueCommitsCertificateAndFlip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO certificates`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cert := &models.Certificate{
		ID:        "CLR-STU-001-1700000000000",
		RequestID: "req-1",
		IssuedBy:  "hod-1",
		IssuedAt:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	issued, err := repo.Issue(context.Background(), cert, nil)
	require.NoError(t, err)
	assert.True(t, issued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A concurrent approval already finalized the request: the conditional flip
// touches zero rows, the transaction rolls back, and the already-inserted
// certificate row vanishes with it.
func TestIssueRollsBackWhenFlipLosesRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO certificates`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	cert := &models.Certificate{ID: "CLR-STU-001-1700000000001", RequestID: "req-1", IssuedBy: "hod-2"}
	issued, err := repo.Issue(context.Background(), cert, nil)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM certificates`).
		WithArgs("CLR-STU-001-1700000000000").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM certificates`).
		WithArgs("CLR-STU-001-1700000000999").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.Exists(context.Background(), "CLR-STU-001-1700000000000")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(context.Background(), "CLR-STU-001-1700000000999")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
