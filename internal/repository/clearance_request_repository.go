package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniops/clearance-api/internal/models"
)

// ErrUniqueViolation signals a uniqueness constraint rejection, e.g. a second
// outstanding request for the same student racing past the service-level
// conflict check.
var ErrUniqueViolation = errors.New("unique constraint violation")

const requestColumns = `id, student_id, student_identifier, student_name,
	registration_number, guardian_name, program, term, degree_status,
	aggregate_status, created_at, final_approved_by, final_approved_at, final_remarks, certificate_id`

// ClearanceRequestRepository persists clearance requests and owns the
// aggregate-status transitions.
type ClearanceRequestRepository struct {
	db *sqlx.DB
}

// NewClearanceRequestRepository constructs the repository.
func NewClearanceRequestRepository(db *sqlx.DB) *ClearanceRequestRepository {
	return &ClearanceRequestRepository{db: db}
}

// CreateWithRecords inserts the request and its full department fan-out in a
// single transaction. A partial fan-out is never visible: any failure rolls
// the whole unit back.
func (r *ClearanceRequestRepository) CreateWithRecords(ctx context.Context, request *models.ClearanceRequest, records []models.DepartmentClearanceRecord) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.AggregateStatus == "" {
		request.AggregateStatus = models.AggregatePending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clearance fan-out: %w", err)
	}

	const insertRequest = `INSERT INTO clearance_requests
		(id, student_id, student_identifier, student_name, registration_number, guardian_name, program, term, degree_status, aggregate_status, created_at)
		VALUES (:id, :student_id, :student_identifier, :student_name, :registration_number, :guardian_name, :program, :term, :degree_status, :aggregate_status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return fmt.Errorf("create clearance request: %w", ErrUniqueViolation)
		}
		return fmt.Errorf("create clearance request: %w", err)
	}

	const insertRecord = `INSERT INTO department_clearance_records
		(id, request_id, department_name, status, student_name, student_identifier, registration_number, guardian_name, program, term, degree_status, created_at)
		VALUES (:id, :request_id, :department_name, :status, :student_name, :student_identifier, :registration_number, :guardian_name, :program, :term, :degree_status, :created_at)`
	for i := range records {
		record := &records[i]
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.RequestID = request.ID
		if record.Status == "" {
			record.Status = models.RecordStatusPending
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = request.CreatedAt
		}
		if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return fmt.Errorf("create department record %s: %w", record.DepartmentName, ErrUniqueViolation)
			}
			return fmt.Errorf("create department record %s: %w", record.DepartmentName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clearance fan-out: %w", err)
	}
	return nil
}

// FindByID returns a clearance request by identifier.
func (r *ClearanceRequestRepository) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests WHERE id = $1`, requestColumns)
	var request models.ClearanceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindOutstandingByStudent returns the student's request that still blocks a
// new submission, if any. sql.ErrNoRows means the student may submit.
func (r *ClearanceRequestRepository) FindOutstandingByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests
		WHERE student_id = $1 AND aggregate_status <> $2
		ORDER BY created_at DESC LIMIT 1`, requestColumns)
	var request models.ClearanceRequest
	if err := r.db.GetContext(ctx, &request, query, studentID, models.AggregateFinalApproved); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter with a total count.
func (r *ClearanceRequestRepository) List(ctx context.Context, filter models.ClearanceRequestFilter) ([]models.ClearanceRequest, int, error) {
	base := "FROM clearance_requests"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("aggregate_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, base+clause, size, offset)

	var requests []models.ClearanceRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearance requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearance requests: %w", err)
	}
	return requests, total, nil
}

// MarkReady flips the aggregate status from PENDING to
// READY_FOR_FINAL_APPROVAL in one conditional statement. The approval check
// runs inside the same UPDATE, so two racing last-approver evaluations cannot
// both win: the loser sees zero rows affected and MarkReady reports false.
func (r *ClearanceRequestRepository) MarkReady(ctx context.Context, requestID string) (bool, error) {
	const query = `UPDATE clearance_requests SET aggregate_status = $2
		WHERE id = $1 AND aggregate_status = $3
		AND NOT EXISTS (
			SELECT 1 FROM department_clearance_records r
			WHERE r.request_id = clearance_requests.id AND r.status <> $4
		)`
	result, err := r.db.ExecContext(ctx, query, requestID,
		models.AggregateReadyForFinalApproval, models.AggregatePending, models.RecordStatusApproved)
	if err != nil {
		return false, fmt.Errorf("mark request ready: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check ready rows: %w", err)
	}
	return rows > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
