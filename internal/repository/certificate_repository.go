package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniops/clearance-api/internal/models"
)

// CertificateRepository persists issued certificates and owns the terminal
// aggregate transition that accompanies issuance.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindByID returns a certificate by its credential identifier.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	const query = `SELECT id, request_id, issued_by, issued_at FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByRequestID returns the certificate issued for a request.
func (r *CertificateRepository) FindByRequestID(ctx context.Context, requestID string) (*models.Certificate, error) {
	const query = `SELECT id, request_id, issued_by, issued_at FROM certificates WHERE request_id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, requestID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// Exists reports whether a credential identifier has already been issued.
func (r *CertificateRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM certificates WHERE id = $1 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check certificate id: %w", err)
	}
	return true, nil
}

// Issue inserts the certificate and flips the owning request from
// READY_FOR_FINAL_APPROVAL to FINAL_APPROVED in one transaction. The flip is
// conditional: when a concurrent approval already finalized the request the
// transaction rolls back, no second certificate survives, and Issue reports
// false without error.
func (r *CertificateRepository) Issue(ctx context.Context, cert *models.Certificate, remarks *string) (bool, error) {
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin certificate issuance: %w", err)
	}

	const insertCert = `INSERT INTO certificates (id, request_id, issued_by, issued_at)
		VALUES (:id, :request_id, :issued_by, :issued_at)`
	if _, err := tx.NamedExecContext(ctx, insertCert, cert); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("insert certificate: %w", err)
	}

	const finalize = `UPDATE clearance_requests
		SET aggregate_status = $2, final_approved_by = $3, final_approved_at = $4, final_remarks = $5, certificate_id = $6
		WHERE id = $1 AND aggregate_status = $7`
	result, err := tx.ExecContext(ctx, finalize, cert.RequestID,
		models.AggregateFinalApproved, cert.IssuedBy, cert.IssuedAt, remarks, cert.ID,
		models.AggregateReadyForFinalApproval)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("finalize clearance request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("check finalize rows: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit certificate issuance: %w", err)
	}
	return true, nil
}
