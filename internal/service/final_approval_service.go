package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

type certificateStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Issue(ctx context.Context, cert *models.Certificate, remarks *string) (bool, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Certificate, error)
}

// FinalApprovalService is the head-of-department authority: it grants the
// terminal approval on a request that every department has cleared and mints
// the unique certificate identifier.
type FinalApprovalService struct {
	requests aggregationRequestStore
	certs    certificateStore
	audit    auditLogger
	notifier clearanceNotifier
	cache    *CacheService
	metrics  *MetricsService
	prefix   string
	now      func() time.Time
	logger   *zap.Logger
}

// NewFinalApprovalService constructs the final approval service.
func NewFinalApprovalService(
	requests aggregationRequestStore,
	certs certificateStore,
	audit auditLogger,
	notifier clearanceNotifier,
	cache *CacheService,
	metrics *MetricsService,
	cfg config.ClearanceConfig,
	logger *zap.Logger,
) *FinalApprovalService {
	prefix := cfg.CertificatePrefix
	if prefix == "" {
		prefix = "CLR"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinalApprovalService{
		requests: requests,
		certs:    certs,
		audit:    audit,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		prefix:   prefix,
		now:      time.Now,
		logger:   logger,
	}
}

// Approve grants final approval and issues the certificate. The operation is
// idempotent: approving an already-finalized request returns the certificate
// issued the first time instead of failing or minting a second one. The
// aggregate flip and the certificate insert share one transaction, so a lost
// race between two approvers leaves exactly one certificate behind.
func (s *FinalApprovalService) Approve(ctx context.Context, actor Actor, requestID string, req dto.FinalApproveRequest) (*dto.FinalApprovalResult, error) {
	if actor.Claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.AggregateStatus == models.AggregateFinalApproved {
		return s.existingResult(ctx, request)
	}
	if request.AggregateStatus != models.AggregateReadyForFinalApproval {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "not all departments have approved this request")
	}

	certificateID, err := s.mintCertificateID(ctx, request.StudentIdentifier)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		ID:        certificateID,
		RequestID: request.ID,
		IssuedBy:  actor.Claims.UserID,
		IssuedAt:  s.now().UTC(),
	}

	var remarks *string
	if req.Remarks != "" {
		remarks = &req.Remarks
	}

	issued, err := s.certs.Issue(ctx, cert, remarks)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue certificate")
	}
	if !issued {
		// Lost the race to a concurrent approval. The winner's certificate
		// is the request's certificate; surface it idempotently.
		refreshed, err := s.loadRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if refreshed.AggregateStatus == models.AggregateFinalApproved {
			return s.existingResult(ctx, refreshed)
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer awaiting final approval")
	}

	s.metrics.IncCertificate()
	s.cache.InvalidateStatus(ctx, requestID)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionFinalApprove, "clearance_request", requestID, request, cert)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCertificateIssued, "certificate", cert.ID, nil, cert)

	final, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.FinalApproved(ctx, final, cert.ID)
	}

	s.logger.Info("final approval granted",
		zap.String("request_id", requestID),
		zap.String("certificate_id", cert.ID),
		zap.String("approved_by", actor.Claims.UserID))
	return &dto.FinalApprovalResult{CertificateID: cert.ID, Request: final}, nil
}

func (s *FinalApprovalService) loadRequest(ctx context.Context, requestID string) (*models.ClearanceRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	return request, nil
}

func (s *FinalApprovalService) existingResult(ctx context.Context, request *models.ClearanceRequest) (*dto.FinalApprovalResult, error) {
	if request.CertificateID != nil && *request.CertificateID != "" {
		return &dto.FinalApprovalResult{CertificateID: *request.CertificateID, Request: request}, nil
	}
	cert, err := s.certs.FindByRequestID(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issued certificate")
	}
	return &dto.FinalApprovalResult{CertificateID: cert.ID, Request: request}, nil
}

// mintCertificateID derives the credential identifier from the student's
// institutional identifier and an issuance timestamp, re-stamping on the
// unlikely collision until a free identifier is found.
func (s *FinalApprovalService) mintCertificateID(ctx context.Context, studentIdentifier string) (string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := fmt.Sprintf("%s-%s-%d", s.prefix, studentIdentifier, s.now().UTC().UnixMilli()+int64(attempt))
		exists, err := s.certs.Exists(ctx, id)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate identifier")
		}
		if !exists {
			return id, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not mint a unique certificate identifier")
}
