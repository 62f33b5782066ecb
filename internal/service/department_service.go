package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/repository"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

type departmentRecordStore interface {
	FindByID(ctx context.Context, id string) (*models.DepartmentClearanceRecord, error)
	FindByRequestAndDepartment(ctx context.Context, requestID string, department models.Department) (*models.DepartmentClearanceRecord, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.DepartmentClearanceRecord, error)
	ListPendingByDepartment(ctx context.Context, department models.Department, page, pageSize int) ([]models.DepartmentClearanceRecord, int, error)
	Decide(ctx context.Context, params repository.DecideRecordParams) error
	Reset(ctx context.Context, id string, facts *models.StudentFacts) error
	ResetAllRejected(ctx context.Context, requestID string, facts *models.StudentFacts) (int64, models.RecordStatusCounts, error)
}

type requestReader interface {
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
}

type aggregationEvaluator interface {
	Evaluate(ctx context.Context, requestID string) (bool, error)
}

// DepartmentService serves department staff reviews: the pending queue, the
// approve/reject decision on one track, and the student-driven resubmission
// that re-opens rejected tracks.
type DepartmentService struct {
	records    departmentRecordStore
	requests   requestReader
	aggregator aggregationEvaluator
	audit      auditLogger
	cache      *CacheService
	metrics    *MetricsService
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewDepartmentService constructs the department review service.
func NewDepartmentService(
	records departmentRecordStore,
	requests requestReader,
	aggregator aggregationEvaluator,
	audit auditLogger,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{
		records:    records,
		requests:   requests,
		aggregator: aggregator,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		validate:   validate,
		logger:     logger,
	}
}

// Queue returns the pending review queue for one department. Staff are pinned
// to their own department; HOD and admins may inspect any queue.
func (s *DepartmentService) Queue(ctx context.Context, actor Actor, department models.Department, page, pageSize int) ([]models.DepartmentClearanceRecord, models.Pagination, error) {
	if actor.Claims == nil {
		return nil, models.Pagination{}, appErrors.ErrUnauthorized
	}
	if err := s.authorizeDepartment(actor, department); err != nil {
		return nil, models.Pagination{}, err
	}

	records, total, err := s.records.ListPendingByDepartment(ctx, department, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department queue")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return records, models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Decide records an approve or reject outcome on one pending record. The
// underlying update is conditioned on the record still being PENDING, so a
// concurrent decision on the same record loses cleanly instead of overwriting.
// An approval triggers aggregate re-evaluation for the owning request.
func (s *DepartmentService) Decide(ctx context.Context, actor Actor, recordID string, req dto.DecideRequest) (*models.DepartmentClearanceRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "outcome must be APPROVE or REJECT")
	}
	if actor.Claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Outcome == models.DecisionReject && strings.TrimSpace(req.Remarks) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires remarks explaining the outstanding obligation")
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department record")
	}
	if err := s.authorizeDepartment(actor, record.DepartmentName); err != nil {
		return nil, err
	}

	status := models.RecordStatusApproved
	if req.Outcome == models.DecisionReject {
		status = models.RecordStatusRejected
	}

	var remarks *string
	if trimmed := strings.TrimSpace(req.Remarks); trimmed != "" {
		remarks = &trimmed
	}

	params := repository.DecideRecordParams{
		ID:         recordID,
		Status:     status,
		Remarks:    remarks,
		ReviewedBy: actor.Claims.UserID,
		ReviewedAt: time.Now().UTC(),
	}
	if err := s.records.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "department record was already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record department decision")
	}

	s.metrics.IncDecision(record.DepartmentName, req.Outcome)
	s.cache.InvalidateStatus(ctx, record.RequestID)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionDepartmentDecide, "department_record", recordID, record, params)

	if req.Outcome == models.DecisionApprove && s.aggregator != nil {
		if err := s.evaluateAggregate(ctx, record.RequestID); err != nil {
			s.logger.Error("aggregate evaluation failed after approval",
				zap.String("request_id", record.RequestID),
				zap.String("record_id", recordID),
				zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				"approval recorded but aggregate evaluation failed")
		}
	}

	updated, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload department record")
	}

	s.logger.Info("department decision recorded",
		zap.String("record_id", recordID),
		zap.String("request_id", record.RequestID),
		zap.String("department", string(record.DepartmentName)),
		zap.String("outcome", string(req.Outcome)))
	return updated, nil
}

// Resubmit re-opens every rejected track of the student's request in one
// atomic batch, optionally refreshing the record-held fact snapshot. The
// batch refuses to run while any track is still pending review.
func (s *DepartmentService) Resubmit(ctx context.Context, actor Actor, requestID string, req dto.ResubmitRequest) ([]models.DepartmentClearanceRecord, error) {
	if actor.Claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if actor.Claims.Role == models.RoleStudent && actor.Claims.UserID != request.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance request belongs to another student")
	}
	if request.AggregateStatus != models.AggregatePending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is past department review")
	}

	facts := req.Facts()
	if facts != nil {
		if err := validateFacts(*facts); err != nil {
			return nil, err
		}
	}

	reset, counts, err := s.records.ResetAllRejected(ctx, requestID, facts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-open rejected records")
	}
	if reset == 0 {
		if counts.Pending > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a department review is still in progress")
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "no rejected department tracks to resubmit")
	}

	s.metrics.IncResubmission(int(reset))
	s.cache.InvalidateStatus(ctx, requestID)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionResubmit, "clearance_request", requestID, nil, req)

	records, err := s.records.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload department records")
	}

	s.logger.Info("rejected tracks re-opened",
		zap.String("request_id", requestID),
		zap.Int64("reset", reset))
	return records, nil
}

// ResubmitTrack re-opens one rejected department track of the student's
// request, leaving every other track untouched.
func (s *DepartmentService) ResubmitTrack(ctx context.Context, actor Actor, requestID string, department models.Department, req dto.ResubmitRequest) (*models.DepartmentClearanceRecord, error) {
	if actor.Claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if actor.Claims.Role == models.RoleStudent && actor.Claims.UserID != request.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance request belongs to another student")
	}
	if request.AggregateStatus != models.AggregatePending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is past department review")
	}

	record, err := s.records.FindByRequestAndDepartment(ctx, requestID, department)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department record")
	}

	facts := req.Facts()
	if facts != nil {
		if err := validateFacts(*facts); err != nil {
			return nil, err
		}
	}

	if err := s.records.Reset(ctx, record.ID, facts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "department track is not rejected")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-open department record")
	}

	s.metrics.IncResubmission(1)
	s.cache.InvalidateStatus(ctx, requestID)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionResubmit, "department_record", record.ID, record, req)

	updated, err := s.records.FindByID(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload department record")
	}

	s.logger.Info("rejected track re-opened",
		zap.String("request_id", requestID),
		zap.String("department", string(department)))
	return updated, nil
}

const aggregateEvalAttempts = 3

// evaluateAggregate retries the idempotent aggregate check so a transient
// failure cannot strand a fully-approved request at PENDING.
func (s *DepartmentService) evaluateAggregate(ctx context.Context, requestID string) error {
	var err error
	for attempt := 1; attempt <= aggregateEvalAttempts; attempt++ {
		if _, err = s.aggregator.Evaluate(ctx, requestID); err == nil {
			return nil
		}
		s.logger.Warn("aggregate evaluation attempt failed",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < aggregateEvalAttempts {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}
	return err
}

func (s *DepartmentService) authorizeDepartment(actor Actor, department models.Department) error {
	switch actor.Claims.Role {
	case models.RoleHOD, models.RoleAdmin:
		return nil
	case models.RoleDepartmentStaff:
		if actor.Claims.Department == nil || *actor.Claims.Department != department {
			return appErrors.Clone(appErrors.ErrForbidden, "record belongs to another department")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "department review requires staff privileges")
	}
}

func validateFacts(facts models.StudentFacts) error {
	if strings.TrimSpace(facts.RegistrationNumber) == "" ||
		strings.TrimSpace(facts.GuardianName) == "" ||
		strings.TrimSpace(facts.Program) == "" ||
		strings.TrimSpace(facts.Term) == "" ||
		strings.TrimSpace(facts.DegreeStatus) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "every student fact must be non-empty")
	}
	return nil
}
