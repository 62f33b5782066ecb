package models

import "time"

// AggregateStatus captures the request-level workflow state derived from all
// department tracks.
type AggregateStatus string

const (
	AggregatePending               AggregateStatus = "PENDING"
	AggregateReadyForFinalApproval AggregateStatus = "READY_FOR_FINAL_APPROVAL"
	AggregateFinalApproved         AggregateStatus = "FINAL_APPROVED"
)

// StudentFacts is the snapshot of student-provided registration data captured
// at submission time.
type StudentFacts struct {
	RegistrationNumber string `db:"registration_number" json:"registration_number"`
	GuardianName       string `db:"guardian_name" json:"guardian_name"`
	Program            string `db:"program" json:"program"`
	Term               string `db:"term" json:"term"`
	DegreeStatus       string `db:"degree_status" json:"degree_status"`
}

// ClearanceRequest is one student submission attempt. Its aggregate status is
// mutated only by the aggregation and final-approval services.
type ClearanceRequest struct {
	ID                string `db:"id" json:"id"`
	StudentID         string `db:"student_id" json:"student_id"`
	StudentIdentifier string `db:"student_identifier" json:"student_identifier"`
	StudentName       string `db:"student_name" json:"student_name"`
	StudentFacts
	AggregateStatus AggregateStatus `db:"aggregate_status" json:"aggregate_status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	FinalApprovedBy *string         `db:"final_approved_by" json:"final_approved_by,omitempty"`
	FinalApprovedAt *time.Time      `db:"final_approved_at" json:"final_approved_at,omitempty"`
	FinalRemarks    *string         `db:"final_remarks" json:"final_remarks,omitempty"`
	CertificateID   *string         `db:"certificate_id" json:"certificate_id,omitempty"`
}

// Outstanding reports whether the request still blocks a new submission for
// the same student.
func (r *ClearanceRequest) Outstanding() bool {
	return r.AggregateStatus != AggregateFinalApproved
}

// ClearanceRequestFilter constrains request listing queries.
type ClearanceRequestFilter struct {
	StudentID string
	Status    AggregateStatus
	Page      int
	PageSize  int
}

// ClearanceStatusSummary is the cached per-request status view returned to
// students polling their clearance progress.
type ClearanceStatusSummary struct {
	RequestID       string                  `json:"request_id"`
	AggregateStatus AggregateStatus         `json:"aggregate_status"`
	CertificateID   *string                 `json:"certificate_id,omitempty"`
	Records         []DepartmentTrackStatus `json:"records"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// DepartmentTrackStatus is one department entry in the status summary.
type DepartmentTrackStatus struct {
	Department Department   `json:"department"`
	Status     RecordStatus `json:"status"`
	Remarks    *string      `json:"remarks,omitempty"`
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty"`
}
