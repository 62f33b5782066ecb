package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

func validSubmitRequest() dto.SubmitClearanceRequest {
	return dto.SubmitClearanceRequest{
		RegistrationNumber: "REG-2024-001",
		GuardianName:       "Jordan Rivers",
		Program:            "BSc Computer Science",
		Term:               "2024-2025",
		DegreeStatus:       "FINAL_YEAR",
	}
}

func activeStudent(id, identifier string) *models.User {
	return &models.User{
		ID:         id,
		Email:      "student@example.edu",
		FullName:   "Alex Doe",
		Role:       models.RoleStudent,
		Identifier: identifier,
		Active:     true,
	}
}

func TestSubmitFansOutAllDepartments(t *testing.T) {
	var captured []models.DepartmentClearanceRecord
	requests := &mockRequestStore{
		createFn: func(_ context.Context, request *models.ClearanceRequest, records []models.DepartmentClearanceRecord) error {
			request.ID = "req-1"
			captured = records
			return nil
		},
	}
	users := &mockUserDirectory{
		findByIDFn: func(_ context.Context, _ string) (*models.User, error) {
			return activeStudent("user-1", "STU-001"), nil
		},
	}
	audit := &mockAuditLogger{}
	notifier := &mockNotifier{}

	svc := NewSubmissionService(requests, nil, users, audit, notifier, nil, nil, nil, nil)
	request, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")}, validSubmitRequest())
	require.NoError(t, err)

	assert.Equal(t, models.AggregatePending, request.AggregateStatus)
	assert.Equal(t, "STU-001", request.StudentIdentifier)
	require.Len(t, captured, len(models.AllDepartments()))

	seen := map[models.Department]bool{}
	for _, record := range captured {
		assert.Equal(t, models.RecordStatusPending, record.Status)
		assert.Equal(t, "STU-001", record.StudentIdentifier)
		seen[record.DepartmentName] = true
	}
	for _, department := range models.AllDepartments() {
		assert.True(t, seen[department], "missing fan-out for %s", department)
	}

	assert.Equal(t, []string{models.AuditActionClearanceSubmit}, audit.actions())
	assert.Equal(t, []string{"req-1"}, notifier.submitted)
}

func TestSubmitRejectsOutstandingRequest(t *testing.T) {
	requests := &mockRequestStore{
		createFn: func(_ context.Context, _ *models.ClearanceRequest, _ []models.DepartmentClearanceRecord) error {
			t.Fatal("create must not be called when an outstanding request exists")
			return nil
		},
		findOutstandingFn: func(_ context.Context, _ string) (*models.ClearanceRequest, error) {
			return &models.ClearanceRequest{ID: "req-0", AggregateStatus: models.AggregatePending}, nil
		},
	}
	users := &mockUserDirectory{
		findByIDFn: func(_ context.Context, _ string) (*models.User, error) {
			return activeStudent("user-1", "STU-001"), nil
		},
	}

	svc := NewSubmissionService(requests, nil, users, nil, nil, nil, nil, nil, nil)
	_, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")}, validSubmitRequest())

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSubmitRejectsIncompleteFacts(t *testing.T) {
	svc := NewSubmissionService(&mockRequestStore{}, nil, &mockUserDirectory{}, nil, nil, nil, nil, nil, nil)

	req := validSubmitRequest()
	req.GuardianName = ""
	_, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")}, req)

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSubmitRejectsWhitespaceFacts(t *testing.T) {
	requests := &mockRequestStore{
		createFn: func(_ context.Context, _ *models.ClearanceRequest, _ []models.DepartmentClearanceRecord) error {
			t.Fatal("create must not be called with blank facts")
			return nil
		},
	}

	svc := NewSubmissionService(requests, nil, &mockUserDirectory{}, nil, nil, nil, nil, nil, nil)
	_, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")},
		dto.SubmitClearanceRequest{
			RegistrationNumber: " ",
			GuardianName:       "\t",
			Program:            "  ",
			Term:               " ",
			DegreeStatus:       " ",
		})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSubmitTrimsFactSnapshot(t *testing.T) {
	var created *models.ClearanceRequest
	requests := &mockRequestStore{
		createFn: func(_ context.Context, request *models.ClearanceRequest, _ []models.DepartmentClearanceRecord) error {
			created = request
			return nil
		},
	}
	users := &mockUserDirectory{
		findByIDFn: func(_ context.Context, _ string) (*models.User, error) {
			return activeStudent("user-1", "STU-001"), nil
		},
	}

	svc := NewSubmissionService(requests, nil, users, nil, nil, nil, nil, nil, nil)
	req := validSubmitRequest()
	req.RegistrationNumber = "  REG-2024-001  "
	req.GuardianName = "Jordan Rivers\n"
	_, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")}, req)
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "REG-2024-001", created.StudentFacts.RegistrationNumber)
	assert.Equal(t, "Jordan Rivers", created.StudentFacts.GuardianName)
}

func TestSubmitRejectsNonStudent(t *testing.T) {
	users := &mockUserDirectory{
		findByIDFn: func(_ context.Context, _ string) (*models.User, error) {
			return &models.User{ID: "user-2", Role: models.RoleDepartmentStaff, Active: true}, nil
		},
	}

	svc := NewSubmissionService(&mockRequestStore{}, nil, users, nil, nil, nil, nil, nil, nil)
	_, err := svc.Submit(context.Background(), Actor{Claims: studentClaims("user-2", "")}, validSubmitRequest())

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestGetEnforcesStudentOwnership(t *testing.T) {
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, id string) (*models.ClearanceRequest, error) {
			return &models.ClearanceRequest{ID: id, StudentID: "owner"}, nil
		},
	}

	svc := NewSubmissionService(requests, nil, nil, nil, nil, nil, nil, nil, nil)

	_, err := svc.Get(context.Background(), Actor{Claims: studentClaims("intruder", "STU-002")}, "req-1")
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	request, err := svc.Get(context.Background(), Actor{Claims: studentClaims("owner", "STU-001")}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", request.ID)
}

func TestStatusBuildsSummaryFromRecords(t *testing.T) {
	remarks := "fees outstanding"
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, id string) (*models.ClearanceRequest, error) {
			return &models.ClearanceRequest{ID: id, StudentID: "owner", AggregateStatus: models.AggregatePending}, nil
		},
	}
	records := &mockRecordStore{
		listByRequestFn: func(_ context.Context, _ string) ([]models.DepartmentClearanceRecord, error) {
			return []models.DepartmentClearanceRecord{
				{DepartmentName: models.DepartmentLibrary, Status: models.RecordStatusApproved},
				{DepartmentName: models.DepartmentFee, Status: models.RecordStatusRejected, Remarks: &remarks},
			}, nil
		},
	}

	svc := NewSubmissionService(requests, records, nil, nil, nil, nil, nil, nil, nil)
	summary, err := svc.Status(context.Background(), Actor{Claims: studentClaims("owner", "STU-001")}, "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.AggregatePending, summary.AggregateStatus)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, models.RecordStatusRejected, summary.Records[1].Status)
	require.NotNil(t, summary.Records[1].Remarks)
	assert.Equal(t, remarks, *summary.Records[1].Remarks)
}

func TestListPinsStudentsToOwnRequests(t *testing.T) {
	var capturedFilter models.ClearanceRequestFilter
	requests := &mockRequestStore{
		listFn: func(_ context.Context, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, int, error) {
			capturedFilter = filter
			return []models.ClearanceRequest{{ID: "req-1"}}, 1, nil
		},
	}

	svc := NewSubmissionService(requests, nil, nil, nil, nil, nil, nil, nil, nil)
	_, pagination, err := svc.List(context.Background(), Actor{Claims: studentClaims("user-1", "STU-001")},
		models.ClearanceRequestFilter{StudentID: "someone-else"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", capturedFilter.StudentID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestGetUnknownRequestReturnsNotFound(t *testing.T) {
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, _ string) (*models.ClearanceRequest, error) {
			return nil, sql.ErrNoRows
		},
	}

	svc := NewSubmissionService(requests, nil, nil, nil, nil, nil, nil, nil, nil)
	_, err := svc.Get(context.Background(), Actor{Claims: hodClaims("hod-1")}, "missing")

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
