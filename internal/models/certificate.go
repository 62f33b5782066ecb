package models

import "time"

// Certificate is the issuance-time credential minted by the final approval
// authority. Immutable once created; its ID is the QR payload handed to the
// rendering collaborator.
type Certificate struct {
	ID        string    `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	IssuedBy  string    `db:"issued_by" json:"issued_by"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
}

// CertificateVerification is the public verification view for a certificate
// identifier.
type CertificateVerification struct {
	Valid             bool      `json:"valid"`
	CertificateID     string    `json:"certificate_id"`
	StudentName       string    `json:"student_name,omitempty"`
	StudentIdentifier string    `json:"student_identifier,omitempty"`
	Program           string    `json:"program,omitempty"`
	IssuedBy          string    `json:"issued_by,omitempty"`
	IssuedAt          time.Time `json:"issued_at,omitempty"`
}
