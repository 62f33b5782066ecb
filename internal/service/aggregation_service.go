package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/models"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

type aggregationRequestStore interface {
	MarkReady(ctx context.Context, requestID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
}

// AggregationService owns the fan-in: it detects the all-approved condition
// and flips the aggregate status exactly once per request. The flip itself is
// a single conditional update, so concurrent evaluations after racing
// last-approvals cannot both report the transition.
type AggregationService struct {
	requests aggregationRequestStore
	notifier clearanceNotifier
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAggregationService constructs the aggregation service.
func NewAggregationService(requests aggregationRequestStore, notifier clearanceNotifier, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{
		requests: requests,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Evaluate re-checks the request's department tracks and promotes the request
// to READY_FOR_FINAL_APPROVAL when every track is APPROVED. Returns whether
// this call performed the transition. Calling it on a request that is not yet
// complete, or already promoted, is a harmless no-op.
func (s *AggregationService) Evaluate(ctx context.Context, requestID string) (bool, error) {
	flipped, err := s.requests.MarkReady(ctx, requestID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate clearance aggregate")
	}
	if !flipped {
		return false, nil
	}

	s.metrics.IncCompletion()
	s.cache.InvalidateStatus(ctx, requestID)

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load promoted request", zap.String("request_id", requestID), zap.Error(err))
		}
		return true, nil
	}

	if s.notifier != nil {
		s.notifier.AllDepartmentsApproved(ctx, request)
	}
	s.logger.Info("all departments approved",
		zap.String("request_id", request.ID),
		zap.String("student_identifier", request.StudentIdentifier))
	return true, nil
}
