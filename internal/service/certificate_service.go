package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/models"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
	"github.com/uniops/clearance-api/pkg/export"
)

type certificateReader interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Certificate, error)
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// CertificateService serves the public verification view and renders the
// printable certificate artifact.
type CertificateService struct {
	certs    certificateReader
	requests requestReader
	renderer certificateRenderer
	logger   *zap.Logger
}

// NewCertificateService constructs the certificate service.
func NewCertificateService(certs certificateReader, requests requestReader, renderer certificateRenderer, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{certs: certs, requests: requests, renderer: renderer, logger: logger}
}

// Verify reports whether a credential identifier was genuinely issued. An
// unknown identifier is a valid negative answer, not an error.
func (s *CertificateService) Verify(ctx context.Context, certificateID string) (*models.CertificateVerification, error) {
	cert, err := s.certs.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CertificateVerification{Valid: false, CertificateID: certificateID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}

	request, err := s.requests.FindByID(ctx, cert.RequestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certified request")
	}

	return &models.CertificateVerification{
		Valid:             true,
		CertificateID:     cert.ID,
		StudentName:       request.StudentName,
		StudentIdentifier: request.StudentIdentifier,
		Program:           request.Program,
		IssuedBy:          cert.IssuedBy,
		IssuedAt:          cert.IssuedAt,
	}, nil
}

// RenderPDF produces the printable certificate for an issued credential.
func (s *CertificateService) RenderPDF(ctx context.Context, certificateID string) ([]byte, error) {
	cert, err := s.certs.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}

	request, err := s.requests.FindByID(ctx, cert.RequestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certified request")
	}

	pdf, err := s.renderer.Render(export.CertificateData{
		CertificateID:     cert.ID,
		StudentName:       request.StudentName,
		StudentIdentifier: request.StudentIdentifier,
		Program:           request.Program,
		IssuedBy:          cert.IssuedBy,
		IssuedAt:          cert.IssuedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return pdf, nil
}
