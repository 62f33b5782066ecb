package dto

import (
	"strings"

	"github.com/uniops/clearance-api/internal/models"
)

// SubmitClearanceRequest carries the student facts snapshotted at submission.
type SubmitClearanceRequest struct {
	RegistrationNumber string `json:"registration_number" validate:"required"`
	GuardianName       string `json:"guardian_name" validate:"required"`
	Program            string `json:"program" validate:"required"`
	Term               string `json:"term" validate:"required"`
	DegreeStatus       string `json:"degree_status" validate:"required"`
}

// Facts converts the payload into the domain snapshot. Fields are trimmed so
// the stored snapshot never carries padding.
func (r SubmitClearanceRequest) Facts() models.StudentFacts {
	return models.StudentFacts{
		RegistrationNumber: strings.TrimSpace(r.RegistrationNumber),
		GuardianName:       strings.TrimSpace(r.GuardianName),
		Program:            strings.TrimSpace(r.Program),
		Term:               strings.TrimSpace(r.Term),
		DegreeStatus:       strings.TrimSpace(r.DegreeStatus),
	}
}

// DecideRequest is a staff decision on one pending department record.
type DecideRequest struct {
	Outcome models.DecisionOutcome `json:"outcome" validate:"required,oneof=APPROVE REJECT"`
	Remarks string                 `json:"remarks"`
}

// ResubmitRequest optionally refreshes the student fact snapshot carried by
// the re-opened record(s). All fields must be provided together or not at all.
type ResubmitRequest struct {
	RegistrationNumber string `json:"registration_number"`
	GuardianName       string `json:"guardian_name"`
	Program            string `json:"program"`
	Term               string `json:"term"`
	DegreeStatus       string `json:"degree_status"`
}

// Facts returns the updated snapshot, or nil when the payload carries none.
// Fields are trimmed before the empty-payload check.
func (r ResubmitRequest) Facts() *models.StudentFacts {
	facts := models.StudentFacts{
		RegistrationNumber: strings.TrimSpace(r.RegistrationNumber),
		GuardianName:       strings.TrimSpace(r.GuardianName),
		Program:            strings.TrimSpace(r.Program),
		Term:               strings.TrimSpace(r.Term),
		DegreeStatus:       strings.TrimSpace(r.DegreeStatus),
	}
	if (facts == models.StudentFacts{}) {
		return nil
	}
	return &facts
}

// FinalApproveRequest is the terminal approval payload.
type FinalApproveRequest struct {
	Remarks string `json:"remarks"`
}

// FinalApprovalResult returns the issued credential.
type FinalApprovalResult struct {
	CertificateID string                   `json:"certificate_id"`
	Request       *models.ClearanceRequest `json:"request"`
}
