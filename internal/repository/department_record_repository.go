package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniops/clearance-api/internal/models"
)

const recordColumns = `id, request_id, department_name, status, remarks, reviewed_by, reviewed_at,
	student_name, student_identifier, registration_number, guardian_name, program, term, degree_status, created_at`

// DepartmentRecordRepository persists per-department clearance records. All
// state transitions are compare-and-swap updates conditioned on the current
// status; a stale precondition surfaces as sql.ErrNoRows, never as a blind
// overwrite.
type DepartmentRecordRepository struct {
	db *sqlx.DB
}

// NewDepartmentRecordRepository constructs the repository.
func NewDepartmentRecordRepository(db *sqlx.DB) *DepartmentRecordRepository {
	return &DepartmentRecordRepository{db: db}
}

// FindByID returns a record by identifier.
func (r *DepartmentRecordRepository) FindByID(ctx context.Context, id string) (*models.DepartmentClearanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM department_clearance_records WHERE id = $1`, recordColumns)
	var record models.DepartmentClearanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByRequestAndDepartment returns the single record owned by one
// department track of one request.
func (r *DepartmentRecordRepository) FindByRequestAndDepartment(ctx context.Context, requestID string, department models.Department) (*models.DepartmentClearanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM department_clearance_records WHERE request_id = $1 AND department_name = $2`, recordColumns)
	var record models.DepartmentClearanceRecord
	if err := r.db.GetContext(ctx, &record, query, requestID, department); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByRequest returns all department records for a request.
func (r *DepartmentRecordRepository) ListByRequest(ctx context.Context, requestID string) ([]models.DepartmentClearanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM department_clearance_records WHERE request_id = $1 ORDER BY department_name ASC`, recordColumns)
	var records []models.DepartmentClearanceRecord
	if err := r.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("list department records: %w", err)
	}
	return records, nil
}

// ListPendingByDepartment returns the review queue for one department.
func (r *DepartmentRecordRepository) ListPendingByDepartment(ctx context.Context, department models.Department, page, pageSize int) ([]models.DepartmentClearanceRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM department_clearance_records
		WHERE department_name = $1 AND status = $2
		ORDER BY created_at ASC LIMIT %d OFFSET %d`, recordColumns, pageSize, offset)
	var records []models.DepartmentClearanceRecord
	if err := r.db.SelectContext(ctx, &records, query, department, models.RecordStatusPending); err != nil {
		return nil, 0, fmt.Errorf("list department queue: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM department_clearance_records WHERE department_name = $1 AND status = $2`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, department, models.RecordStatusPending); err != nil {
		return nil, 0, fmt.Errorf("count department queue: %w", err)
	}
	return records, total, nil
}

// DecideRecordParams groups the columns written by a staff decision.
type DecideRecordParams struct {
	ID         string
	Status     models.RecordStatus
	Remarks    *string
	ReviewedBy string
	ReviewedAt time.Time
}

// Decide persists a review outcome for a record that is still PENDING.
// Returns sql.ErrNoRows when the record was already decided.
func (r *DepartmentRecordRepository) Decide(ctx context.Context, params DecideRecordParams) error {
	const query = `UPDATE department_clearance_records
		SET status = $2, remarks = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = $6`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.Status, params.Remarks,
		params.ReviewedBy, params.ReviewedAt, models.RecordStatusPending)
	if err != nil {
		return fmt.Errorf("decide department record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decide rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reset re-opens one REJECTED record back to PENDING, clearing the review
// fields and optionally refreshing the student fact snapshot. Returns
// sql.ErrNoRows when the record is not currently REJECTED.
func (r *DepartmentRecordRepository) Reset(ctx context.Context, id string, facts *models.StudentFacts) error {
	query := `UPDATE department_clearance_records
		SET status = $2, remarks = NULL, reviewed_by = NULL, reviewed_at = NULL`
	args := []interface{}{id, models.RecordStatusPending}
	if facts != nil {
		query += fmt.Sprintf(`, registration_number = $%d, guardian_name = $%d, program = $%d, term = $%d, degree_status = $%d`,
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5)
		args = append(args, facts.RegistrationNumber, facts.GuardianName, facts.Program, facts.Term, facts.DegreeStatus)
	}
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", len(args)+1)
	args = append(args, models.RecordStatusRejected)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reset department record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reset rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetAllRejected re-opens every REJECTED record of a request in one atomic
// statement. The guard inside the statement refuses the batch while any
// record of the request is still PENDING, so an in-flight review always
// finishes first. Returns the number of records reset together with the
// per-status counts observed in the same snapshot, so a zero-row outcome can
// be classified without a second, racy read.
func (r *DepartmentRecordRepository) ResetAllRejected(ctx context.Context, requestID string, facts *models.StudentFacts) (int64, models.RecordStatusCounts, error) {
	set := `status = $2, remarks = NULL, reviewed_by = NULL, reviewed_at = NULL`
	args := []interface{}{requestID, models.RecordStatusPending}
	if facts != nil {
		set += fmt.Sprintf(`, registration_number = $%d, guardian_name = $%d, program = $%d, term = $%d, degree_status = $%d`,
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5)
		args = append(args, facts.RegistrationNumber, facts.GuardianName, facts.Program, facts.Term, facts.DegreeStatus)
	}
	rejectedArg := len(args) + 1
	approvedArg := len(args) + 2
	args = append(args, models.RecordStatusRejected, models.RecordStatusApproved)

	query := fmt.Sprintf(`WITH observed AS (
			SELECT
				COUNT(*) FILTER (WHERE status = $2) AS pending,
				COUNT(*) FILTER (WHERE status = $%d) AS approved,
				COUNT(*) FILTER (WHERE status = $%d) AS rejected
			FROM department_clearance_records WHERE request_id = $1
		), reopened AS (
			UPDATE department_clearance_records
			SET %s
			WHERE request_id = $1 AND status = $%d
				AND NOT EXISTS (
					SELECT 1 FROM department_clearance_records p
					WHERE p.request_id = $1 AND p.status = $2
				)
			RETURNING id
		)
		SELECT o.pending, o.approved, o.rejected,
			(SELECT COUNT(*) FROM reopened) AS reopened
		FROM observed o`, approvedArg, rejectedArg, set, rejectedArg)

	var row struct {
		Pending  int   `db:"pending"`
		Approved int   `db:"approved"`
		Rejected int   `db:"rejected"`
		Reopened int64 `db:"reopened"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return 0, models.RecordStatusCounts{}, fmt.Errorf("reset rejected records: %w", err)
	}
	counts := models.RecordStatusCounts{Pending: row.Pending, Approved: row.Approved, Rejected: row.Rejected}
	return row.Reopened, counts, nil
}
