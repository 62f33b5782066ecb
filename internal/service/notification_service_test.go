package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
)

type channelSink struct {
	events chan models.NotificationEvent
}

func (s *channelSink) Deliver(_ context.Context, event models.NotificationEvent) error {
	s.events <- event
	return nil
}

func collectEvents(t *testing.T, sink *channelSink, n int) []models.NotificationEvent {
	t.Helper()
	events := make([]models.NotificationEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-sink.events:
			events = append(events, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return events
}

func TestNotificationServiceDispatchesWorkflowEvents(t *testing.T) {
	sink := &channelSink{events: make(chan models.NotificationEvent, 8)}
	svc := NewNotificationService(config.NotificationsConfig{Workers: 1, BufferSize: 8}, nil, sink)
	svc.Start(context.Background())
	defer svc.Stop()

	request := &models.ClearanceRequest{ID: "req-1", StudentIdentifier: "STU-001", StudentName: "Alex Doe"}

	svc.RequestSubmitted(context.Background(), request)
	svc.AllDepartmentsApproved(context.Background(), request)
	svc.FinalApproved(context.Background(), request, "CLR-STU-001-1700000000000")

	events := collectEvents(t, sink, 3)
	kinds := map[models.NotificationKind]models.NotificationEvent{}
	for _, event := range events {
		kinds[event.Kind] = event
		assert.Equal(t, "req-1", event.RequestID)
		assert.Equal(t, "STU-001", event.StudentIdentifier)
		assert.False(t, event.OccurredAt.IsZero())
	}

	require.Len(t, kinds, 3)
	assert.Contains(t, kinds[models.NotificationFinalApproved].Summary, "CLR-STU-001-1700000000000")
}

func TestNotificationEnqueueBeforeStartIsDropped(t *testing.T) {
	sink := &channelSink{events: make(chan models.NotificationEvent, 1)}
	svc := NewNotificationService(config.NotificationsConfig{Workers: 1}, nil, sink)

	// Not started: enqueue fails internally and the event is dropped, never
	// panicking or blocking the caller.
	svc.RequestSubmitted(context.Background(), &models.ClearanceRequest{ID: "req-1"})

	select {
	case <-sink.events:
		t.Fatal("no event should be delivered before the queue starts")
	case <-time.After(50 * time.Millisecond):
	}
}
