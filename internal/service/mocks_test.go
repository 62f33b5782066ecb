package service

import (
	"context"
	"database/sql"
	"sync"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/repository"
)

type mockRequestStore struct {
	mu sync.Mutex

	createFn          func(ctx context.Context, request *models.ClearanceRequest, records []models.DepartmentClearanceRecord) error
	findByIDFn        func(ctx context.Context, id string) (*models.ClearanceRequest, error)
	findOutstandingFn func(ctx context.Context, studentID string) (*models.ClearanceRequest, error)
	listFn            func(ctx context.Context, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, int, error)
	markReadyFn       func(ctx context.Context, requestID string) (bool, error)

	markReadyCalls int
}

func (m *mockRequestStore) CreateWithRecords(ctx context.Context, request *models.ClearanceRequest, records []models.DepartmentClearanceRecord) error {
	return m.createFn(ctx, request, records)
}

func (m *mockRequestStore) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	if m.findByIDFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.findByIDFn(ctx, id)
}

func (m *mockRequestStore) FindOutstandingByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	if m.findOutstandingFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.findOutstandingFn(ctx, studentID)
}

func (m *mockRequestStore) List(ctx context.Context, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, int, error) {
	return m.listFn(ctx, filter)
}

func (m *mockRequestStore) MarkReady(ctx context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	m.markReadyCalls++
	m.mu.Unlock()
	return m.markReadyFn(ctx, requestID)
}

type mockRecordStore struct {
	findByIDFn          func(ctx context.Context, id string) (*models.DepartmentClearanceRecord, error)
	findByRequestDeptFn func(ctx context.Context, requestID string, department models.Department) (*models.DepartmentClearanceRecord, error)
	listByRequestFn     func(ctx context.Context, requestID string) ([]models.DepartmentClearanceRecord, error)
	listPendingFn       func(ctx context.Context, department models.Department, page, pageSize int) ([]models.DepartmentClearanceRecord, int, error)
	decideFn            func(ctx context.Context, params repository.DecideRecordParams) error
	resetFn             func(ctx context.Context, id string, facts *models.StudentFacts) error
	resetAllRejectedFn  func(ctx context.Context, requestID string, facts *models.StudentFacts) (int64, models.RecordStatusCounts, error)
}

func (m *mockRecordStore) FindByID(ctx context.Context, id string) (*models.DepartmentClearanceRecord, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockRecordStore) FindByRequestAndDepartment(ctx context.Context, requestID string, department models.Department) (*models.DepartmentClearanceRecord, error) {
	return m.findByRequestDeptFn(ctx, requestID, department)
}

func (m *mockRecordStore) Reset(ctx context.Context, id string, facts *models.StudentFacts) error {
	return m.resetFn(ctx, id, facts)
}

func (m *mockRecordStore) ListByRequest(ctx context.Context, requestID string) ([]models.DepartmentClearanceRecord, error) {
	return m.listByRequestFn(ctx, requestID)
}

func (m *mockRecordStore) ListPendingByDepartment(ctx context.Context, department models.Department, page, pageSize int) ([]models.DepartmentClearanceRecord, int, error) {
	return m.listPendingFn(ctx, department, page, pageSize)
}

func (m *mockRecordStore) Decide(ctx context.Context, params repository.DecideRecordParams) error {
	return m.decideFn(ctx, params)
}

func (m *mockRecordStore) ResetAllRejected(ctx context.Context, requestID string, facts *models.StudentFacts) (int64, models.RecordStatusCounts, error) {
	return m.resetAllRejectedFn(ctx, requestID, facts)
}

type mockUserDirectory struct {
	findByIDFn func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.findByIDFn(ctx, id)
}

type mockAuditLogger struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (m *mockAuditLogger) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockAuditLogger) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, log := range m.logs {
		out = append(out, log.Action)
	}
	return out
}

type mockNotifier struct {
	mu        sync.Mutex
	submitted []string
	ready     []string
	finalized []string
}

func (m *mockNotifier) RequestSubmitted(_ context.Context, request *models.ClearanceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, request.ID)
}

func (m *mockNotifier) AllDepartmentsApproved(_ context.Context, request *models.ClearanceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, request.ID)
}

func (m *mockNotifier) FinalApproved(_ context.Context, _ *models.ClearanceRequest, certificateID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, certificateID)
}

type mockCertificateStore struct {
	existsFn          func(ctx context.Context, id string) (bool, error)
	issueFn           func(ctx context.Context, cert *models.Certificate, remarks *string) (bool, error)
	findByRequestIDFn func(ctx context.Context, requestID string) (*models.Certificate, error)
	findByIDFn        func(ctx context.Context, id string) (*models.Certificate, error)
}

func (m *mockCertificateStore) Exists(ctx context.Context, id string) (bool, error) {
	if m.existsFn == nil {
		return false, nil
	}
	return m.existsFn(ctx, id)
}

func (m *mockCertificateStore) Issue(ctx context.Context, cert *models.Certificate, remarks *string) (bool, error) {
	return m.issueFn(ctx, cert, remarks)
}

func (m *mockCertificateStore) FindByRequestID(ctx context.Context, requestID string) (*models.Certificate, error) {
	return m.findByRequestIDFn(ctx, requestID)
}

func (m *mockCertificateStore) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	return m.findByIDFn(ctx, id)
}

type mockAggregator struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, requestID string) (bool, error)
}

func (m *mockAggregator) Evaluate(ctx context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, requestID)
	m.mu.Unlock()
	if m.fn == nil {
		return false, nil
	}
	return m.fn(ctx, requestID)
}

func studentClaims(userID, identifier string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:     userID,
		Role:       models.RoleStudent,
		Identifier: identifier,
	}
}

func staffClaims(userID string, department models.Department) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:     userID,
		Role:       models.RoleDepartmentStaff,
		Department: &department,
	}
}

func hodClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleHOD}
}
