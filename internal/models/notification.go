package models

import "time"

// NotificationKind enumerates the aggregate-state transitions surfaced to the
// notification collaborator.
type NotificationKind string

const (
	NotificationRequestSubmitted       NotificationKind = "REQUEST_SUBMITTED"
	NotificationAllDepartmentsApproved NotificationKind = "ALL_DEPARTMENTS_APPROVED"
	NotificationFinalApproved          NotificationKind = "FINAL_APPROVED"
)

// NotificationEvent is the payload handed to the notification collaborator.
// Delivery and formatting are the collaborator's responsibility.
type NotificationEvent struct {
	Kind              NotificationKind `json:"kind"`
	RequestID         string           `json:"request_id"`
	StudentIdentifier string           `json:"student_identifier"`
	Summary           string           `json:"summary"`
	OccurredAt        time.Time        `json:"occurred_at"`
}
