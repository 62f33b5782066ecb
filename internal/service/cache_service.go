package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

const statusCacheKeyPrefix = "clearance:status:"

type statusCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the Redis status cache for clearance progress views.
// A nil receiver or disabled config degrades to pass-through: reads miss,
// writes and invalidations are no-ops.
type CacheService struct {
	store   statusCacheStore
	cfg     config.ClearanceConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService constructs the cache service.
func NewCacheService(store statusCacheStore, cfg config.ClearanceConfig, metrics *MetricsService, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

func (s *CacheService) enabled() bool {
	return s != nil && s.store != nil && s.cfg.StatusCacheEnabled
}

// GetStatusSummary returns the cached status view, reporting whether it hit.
func (s *CacheService) GetStatusSummary(ctx context.Context, requestID string) (*models.ClearanceStatusSummary, bool) {
	if !s.enabled() {
		return nil, false
	}

	start := time.Now()
	var summary models.ClearanceStatusSummary
	err := s.store.Get(ctx, statusCacheKeyPrefix+requestID, &summary)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))

	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("status cache read failed", zap.String("request_id", requestID), zap.Error(err))
		}
		return nil, false
	}
	return &summary, true
}

// SetStatusSummary stores the status view with the configured TTL.
func (s *CacheService) SetStatusSummary(ctx context.Context, summary *models.ClearanceStatusSummary) {
	if !s.enabled() || summary == nil {
		return
	}

	start := time.Now()
	if err := s.store.Set(ctx, statusCacheKeyPrefix+summary.RequestID, summary, s.cfg.StatusCacheTTL); err != nil {
		s.logger.Warn("status cache write failed", zap.String("request_id", summary.RequestID), zap.Error(err))
		return
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
}

// InvalidateStatus drops the cached view for a request. Every workflow
// transition calls this so a stale summary never outlives a state change by
// more than the in-flight reads.
func (s *CacheService) InvalidateStatus(ctx context.Context, requestID string) {
	if !s.enabled() {
		return
	}
	pattern := fmt.Sprintf("%s%s*", statusCacheKeyPrefix, requestID)
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("status cache invalidation failed", zap.String("request_id", requestID), zap.Error(err))
	}
}
