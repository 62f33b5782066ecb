package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	"github.com/uniops/clearance-api/pkg/jobs"
)

// NotificationSink delivers a workflow event to an external channel. The
// default sink only logs; mail or messaging integrations implement the same
// interface.
type NotificationSink interface {
	Deliver(ctx context.Context, event models.NotificationEvent) error
}

// LogSink is the default delivery channel: it writes the event to the
// structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs the logging sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, event models.NotificationEvent) error {
	s.logger.Info("clearance notification",
		zap.String("kind", string(event.Kind)),
		zap.String("request_id", event.RequestID),
		zap.String("student_identifier", event.StudentIdentifier),
		zap.String("summary", event.Summary),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// NotificationService dispatches workflow events asynchronously through a
// worker queue. Delivery failures retry per queue policy; they never block or
// fail the workflow operation that raised the event.
type NotificationService struct {
	queue  *jobs.Queue
	sinks  []NotificationSink
	logger *zap.Logger
}

// NewNotificationService builds the dispatcher with its worker queue.
func NewNotificationService(cfg config.NotificationsConfig, logger *zap.Logger, sinks ...NotificationSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(sinks) == 0 {
		sinks = []NotificationSink{NewLogSink(logger)}
	}

	s := &NotificationService{sinks: sinks, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			return fmt.Errorf("deliver %s for request %s: %w", event.Kind, event.RequestID, err)
		}
	}
	return nil
}

func (s *NotificationService) enqueue(event models.NotificationEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Kind),
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("dropping notification",
			zap.String("kind", string(event.Kind)),
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

// RequestSubmitted announces a new clearance request fan-out.
func (s *NotificationService) RequestSubmitted(_ context.Context, request *models.ClearanceRequest) {
	s.enqueue(models.NotificationEvent{
		Kind:              models.NotificationRequestSubmitted,
		RequestID:         request.ID,
		StudentIdentifier: request.StudentIdentifier,
		Summary:           fmt.Sprintf("clearance request submitted by %s", request.StudentName),
	})
}

// AllDepartmentsApproved announces the aggregate ready-flip.
func (s *NotificationService) AllDepartmentsApproved(_ context.Context, request *models.ClearanceRequest) {
	s.enqueue(models.NotificationEvent{
		Kind:              models.NotificationAllDepartmentsApproved,
		RequestID:         request.ID,
		StudentIdentifier: request.StudentIdentifier,
		Summary:           "all departments approved; awaiting final approval",
	})
}

// FinalApproved announces certificate issuance.
func (s *NotificationService) FinalApproved(_ context.Context, request *models.ClearanceRequest, certificateID string) {
	s.enqueue(models.NotificationEvent{
		Kind:              models.NotificationFinalApproved,
		RequestID:         request.ID,
		StudentIdentifier: request.StudentIdentifier,
		Summary:           fmt.Sprintf("final approval granted, certificate %s issued", certificateID),
	})
}
