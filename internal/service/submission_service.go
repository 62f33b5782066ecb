package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/repository"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

// Actor identifies the authenticated principal performing a workflow
// operation, plus the connection attributes recorded in the audit trail.
type Actor struct {
	Claims    *models.JWTClaims
	IP        string
	UserAgent string
}

func (a Actor) userID() *string {
	if a.Claims == nil || a.Claims.UserID == "" {
		return nil
	}
	id := a.Claims.UserID
	return &id
}

type clearanceRequestStore interface {
	CreateWithRecords(ctx context.Context, request *models.ClearanceRequest, records []models.DepartmentClearanceRecord) error
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	FindOutstandingByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error)
	List(ctx context.Context, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, int, error)
}

type trackReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.DepartmentClearanceRecord, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type clearanceNotifier interface {
	RequestSubmitted(ctx context.Context, request *models.ClearanceRequest)
	AllDepartmentsApproved(ctx context.Context, request *models.ClearanceRequest)
	FinalApproved(ctx context.Context, request *models.ClearanceRequest, certificateID string)
}

// SubmissionService is the student-facing gateway: it accepts one clearance
// request per student at a time, fans it out to every department track, and
// serves progress views.
type SubmissionService struct {
	requests clearanceRequestStore
	records  trackReader
	users    userDirectory
	audit    auditLogger
	notifier clearanceNotifier
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSubmissionService constructs the submission gateway.
func NewSubmissionService(
	requests clearanceRequestStore,
	records trackReader,
	users userDirectory,
	audit auditLogger,
	notifier clearanceNotifier,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		requests: requests,
		records:  records,
		users:    users,
		audit:    audit,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
	}
}

// Submit creates a clearance request with its full department fan-out. A
// student with an outstanding request is refused until that request reaches
// final approval.
func (s *SubmissionService) Submit(ctx context.Context, actor Actor, req dto.SubmitClearanceRequest) (*models.ClearanceRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all student facts are required")
	}
	facts := req.Facts()
	if err := validateFacts(facts); err != nil {
		return nil, err
	}
	if actor.Claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	student, err := s.users.FindByID(ctx, actor.Claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student account")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit clearance requests")
	}
	if !student.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if student.Identifier == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account has no institutional identifier")
	}

	outstanding, err := s.requests.FindOutstandingByStudent(ctx, student.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check outstanding requests")
	}
	if outstanding != nil && outstanding.Outstanding() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active clearance request already exists for this student")
	}

	request := &models.ClearanceRequest{
		StudentID:         student.ID,
		StudentIdentifier: student.Identifier,
		StudentName:       student.FullName,
		StudentFacts:      facts,
		AggregateStatus:   models.AggregatePending,
		CreatedAt:         time.Now().UTC(),
	}

	departments := models.AllDepartments()
	records := make([]models.DepartmentClearanceRecord, 0, len(departments))
	for _, department := range departments {
		records = append(records, models.DepartmentClearanceRecord{
			DepartmentName:    department,
			Status:            models.RecordStatusPending,
			StudentName:       student.FullName,
			StudentIdentifier: student.Identifier,
			StudentFacts:      facts,
		})
	}

	if err := s.requests.CreateWithRecords(ctx, request, records); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active clearance request already exists for this student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance request")
	}

	s.metrics.IncSubmission()
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClearanceSubmit, "clearance_request", request.ID, nil, request)
	if s.notifier != nil {
		s.notifier.RequestSubmitted(ctx, request)
	}

	s.logger.Info("clearance request submitted",
		zap.String("request_id", request.ID),
		zap.String("student_identifier", request.StudentIdentifier),
		zap.Int("departments", len(records)))
	return request, nil
}

// Get returns one clearance request. Students can only read their own.
func (s *SubmissionService) Get(ctx context.Context, actor Actor, requestID string) (*models.ClearanceRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if err := s.authorizeRead(actor, request); err != nil {
		return nil, err
	}
	return request, nil
}

// List returns clearance requests for the actor's scope. Students are pinned
// to their own submissions regardless of the filter.
func (s *SubmissionService) List(ctx context.Context, actor Actor, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, models.Pagination, error) {
	if actor.Claims == nil {
		return nil, models.Pagination{}, appErrors.ErrUnauthorized
	}
	if actor.Claims.Role == models.RoleStudent {
		filter.StudentID = actor.Claims.UserID
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearance requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return requests, models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Status returns the per-department progress view for a request, served from
// cache when enabled.
func (s *SubmissionService) Status(ctx context.Context, actor Actor, requestID string) (*models.ClearanceStatusSummary, error) {
	request, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	if summary, ok := s.cache.GetStatusSummary(ctx, requestID); ok {
		return summary, nil
	}

	records, err := s.records.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department records")
	}

	summary := &models.ClearanceStatusSummary{
		RequestID:       request.ID,
		AggregateStatus: request.AggregateStatus,
		CertificateID:   request.CertificateID,
		Records:         make([]models.DepartmentTrackStatus, 0, len(records)),
		GeneratedAt:     time.Now().UTC(),
	}
	for _, record := range records {
		summary.Records = append(summary.Records, models.DepartmentTrackStatus{
			Department: record.DepartmentName,
			Status:     record.Status,
			Remarks:    record.Remarks,
			ReviewedAt: record.ReviewedAt,
		})
	}

	s.cache.SetStatusSummary(ctx, summary)
	return summary, nil
}

func (s *SubmissionService) authorizeRead(actor Actor, request *models.ClearanceRequest) error {
	if actor.Claims == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Claims.Role == models.RoleStudent && actor.Claims.UserID != request.StudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "clearance request belongs to another student")
	}
	return nil
}

func writeAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor Actor, action, resource, resourceID string, oldValue, newValue interface{}) {
	if audit == nil {
		return
	}

	log := &models.AuditLog{
		UserID:     actor.userID(),
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if oldValue != nil {
		if raw, err := json.Marshal(oldValue); err == nil {
			log.OldValues = raw
		}
	}
	if newValue != nil {
		if raw, err := json.Marshal(newValue); err == nil {
			log.NewValues = raw
		}
	}

	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
