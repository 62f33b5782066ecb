package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniops/clearance-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func sampleFacts() models.StudentFacts {
	return models.StudentFacts{
		RegistrationNumber: "REG-2024-001",
		GuardianName:       "Jordan Rivers",
		Program:            "BSc Computer Science",
		Term:               "2024-2025",
		DegreeStatus:       "FINAL_YEAR",
	}
}

func fanOutRecords() []models.DepartmentClearanceRecord {
	departments := models.AllDepartments()
	records := make([]models.DepartmentClearanceRecord, 0, len(departments))
	for _, department := range departments {
		records = append(records, models.DepartmentClearanceRecord{
			DepartmentName:    department,
			StudentName:       "Alex Doe",
			StudentIdentifier: "STU-001",
			StudentFacts:      sampleFacts(),
		})
	}
	return records
}

func TestCreateWithRecordsCommitsFullFanOut(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	for range models.AllDepartments() {
		mock.ExpectExec(`INSERT INTO department_clearance_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	request := &models.ClearanceRequest{
		StudentID:         "user-1",
		StudentIdentifier: "STU-001",
		StudentName:       "Alex Doe",
		StudentFacts:      sampleFacts(),
	}
	err := repo.CreateWithRecords(context.Background(), request, fanOutRecords())
	require.NoError(t, err)

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.AggregatePending, request.AggregateStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithRecordsRollsBackOnRecordFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO clearance_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO department_clearance_records`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	request := &models.ClearanceRequest{StudentID: "user-1", StudentFacts: sampleFacts()}
	err := repo.CreateWithRecords(context.Background(), request, fanOutRecords())

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithRecordsMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO clearance_requests`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	request := &models.ClearanceRequest{StudentID: "user-1", StudentFacts: sampleFacts()}
	err := repo.CreateWithRecords(context.Background(), request, fanOutRecords())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniqueViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadyFlipsWhenAllApproved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectExec(`UPDATE clearance_requests SET aggregate_status`).
		WithArgs("req-1", string(models.AggregateReadyForFinalApproval), string(models.AggregatePending), string(models.RecordStatusApproved)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkReady(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadyLosesRaceCleanly(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectExec(`UPDATE clearance_requests SET aggregate_status`).
		WithArgs("req-1", string(models.AggregateReadyForFinalApproval), string(models.AggregatePending), string(models.RecordStatusApproved)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := repo.MarkReady(context.Background(), "req-1")
	require.NoError(t, err)
	assert.False(t, flipped, "a guarded zero-row update must report no flip")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOutstandingByStudentNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClearanceRequestRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM clearance_requests`).
		WithArgs("user-1", string(models.AggregateFinalApproved)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindOutstandingByStudent(context.Background(), "user-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
