package models

import "time"

// Department is the closed set of review tracks fanned out for every
// clearance request. The head of department is the final approval authority
// and deliberately not part of this set.
type Department string

const (
	DepartmentLibrary         Department = "LIBRARY"
	DepartmentTransport       Department = "TRANSPORT"
	DepartmentLaboratory      Department = "LABORATORY"
	DepartmentStudentServices Department = "STUDENT_SERVICES"
	DepartmentFee             Department = "FEE"
	DepartmentCoordination    Department = "COORDINATION"
)

// AllDepartments returns the fixed fan-out set in canonical order.
func AllDepartments() []Department {
	return []Department{
		DepartmentLibrary,
		DepartmentTransport,
		DepartmentLaboratory,
		DepartmentStudentServices,
		DepartmentFee,
		DepartmentCoordination,
	}
}

// ParseDepartment validates a department name from user input.
func ParseDepartment(raw string) (Department, bool) {
	d := Department(raw)
	switch d {
	case DepartmentLibrary, DepartmentTransport, DepartmentLaboratory,
		DepartmentStudentServices, DepartmentFee, DepartmentCoordination:
		return d, true
	}
	return "", false
}

// RecordStatus is the per-department track state.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "PENDING"
	RecordStatusApproved RecordStatus = "APPROVED"
	RecordStatusRejected RecordStatus = "REJECTED"
)

// DecisionOutcome is a staff decision on a pending record.
type DecisionOutcome string

const (
	DecisionApprove DecisionOutcome = "APPROVE"
	DecisionReject  DecisionOutcome = "REJECT"
)

// DepartmentClearanceRecord is one department's review track for one request.
// The student fields are a denormalized snapshot owned by the record; a
// resubmission may refresh them without touching the parent request.
type DepartmentClearanceRecord struct {
	ID                string       `db:"id" json:"id"`
	RequestID         string       `db:"request_id" json:"request_id"`
	DepartmentName    Department   `db:"department_name" json:"department_name"`
	Status            RecordStatus `db:"status" json:"status"`
	Remarks           *string      `db:"remarks" json:"remarks,omitempty"`
	ReviewedBy        *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	StudentName       string       `db:"student_name" json:"student_name"`
	StudentIdentifier string       `db:"student_identifier" json:"student_identifier"`
	StudentFacts
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RecordStatusCounts aggregates track states for one request.
type RecordStatusCounts struct {
	Pending  int `db:"pending"`
	Approved int `db:"approved"`
	Rejected int `db:"rejected"`
}
