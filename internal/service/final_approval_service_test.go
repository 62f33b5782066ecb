package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

func readyRequest(id string) *models.ClearanceRequest {
	return &models.ClearanceRequest{
		ID:                id,
		StudentID:         "owner",
		StudentIdentifier: "STU-001",
		AggregateStatus:   models.AggregateReadyForFinalApproval,
	}
}

func newFinalApprovalService(requests *mockRequestStore, certs *mockCertificateStore, notifier *mockNotifier) *FinalApprovalService {
	// Avoid wrapping a nil *mockNotifier in a non-nil interface value.
	var n clearanceNotifier
	if notifier != nil {
		n = notifier
	}
	return NewFinalApprovalService(requests, certs, nil, n, nil, nil,
		config.ClearanceConfig{CertificatePrefix: "CLR"}, nil)
}

func TestApproveIssuesCertificate(t *testing.T) {
	state := readyRequest("req-1")
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, _ string) (*models.ClearanceRequest, error) {
			return state, nil
		},
	}
	var issuedCert *models.Certificate
	certs := &mockCertificateStore{
		issueFn: func(_ context.Context, cert *models.Certificate, _ *string) (bool, error) {
			issuedCert = cert
			certID := cert.ID
			state = &models.ClearanceRequest{
				ID:                state.ID,
				StudentID:         state.StudentID,
				StudentIdentifier: state.StudentIdentifier,
				AggregateStatus:   models.AggregateFinalApproved,
				CertificateID:     &certID,
			}
			return true, nil
		},
	}
	notifier := &mockNotifier{}

	svc := newFinalApprovalService(requests, certs, notifier)
	result, err := svc.Approve(context.Background(), Actor{Claims: hodClaims("hod-1")}, "req-1", dto.FinalApproveRequest{})
	require.NoError(t, err)

	require.NotNil(t, issuedCert)
	assert.Equal(t, "hod-1", issuedCert.IssuedBy)
	assert.True(t, strings.HasPrefix(result.CertificateID, "CLR-STU-001-"), "got %s", result.CertificateID)
	assert.Equal(t, models.AggregateFinalApproved, result.Request.AggregateStatus)
	assert.Equal(t, []string{result.CertificateID}, notifier.finalized)
}

func TestApproveBeforeAllDepartmentsApproved(t *testing.T) {
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, id string) (*models.ClearanceRequest, error) {
			return &models.ClearanceRequest{ID: id, AggregateStatus: models.AggregatePending}, nil
		},
	}

	svc := newFinalApprovalService(requests, &mockCertificateStore{}, nil)
	_, err := svc.Approve(context.Background(), Actor{Claims: hodClaims("hod-1")}, "req-1", dto.FinalApproveRequest{})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestApproveIsIdempotent(t *testing.T) {
	certID := "CLR-STU-001-1700000000000"
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, id string) (*models.ClearanceRequest, error) {
			return &models.ClearanceRequest{
				ID:              id,
				AggregateStatus: models.AggregateFinalApproved,
				CertificateID:   &certID,
			}, nil
		},
	}
	certs := &mockCertificateStore{
		issueFn: func(_ context.Context, _ *models.Certificate, _ *string) (bool, error) {
			t.Fatal("a finalized request must not mint a second certificate")
			return false, nil
		},
	}

	svc := newFinalApprovalService(requests, certs, nil)
	result, err := svc.Approve(context.Background(), Actor{Claims: hodClaims("hod-1")}, "req-1", dto.FinalApproveRequest{})
	require.NoError(t, err)
	assert.Equal(t, certID, result.CertificateID)
}

func TestApproveMintRestampsOnCollision(t *testing.T) {
	state := readyRequest("req-1")
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, _ string) (*models.ClearanceRequest, error) {
			return state, nil
		},
	}
	seen := make([]string, 0, 2)
	certs := &mockCertificateStore{
		existsFn: func(_ context.Context, id string) (bool, error) {
			seen = append(seen, id)
			return len(seen) == 1, nil
		},
		issueFn: func(_ context.Context, cert *models.Certificate, _ *string) (bool, error) {
			certID := cert.ID
			state = &models.ClearanceRequest{ID: state.ID, AggregateStatus: models.AggregateFinalApproved, CertificateID: &certID}
			return true, nil
		},
	}

	svc := newFinalApprovalService(requests, certs, nil)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000).UTC() }

	result, err := svc.Approve(context.Background(), Actor{Claims: hodClaims("hod-1")}, "req-1", dto.FinalApproveRequest{})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1])
	assert.Equal(t, seen[1], result.CertificateID)
}

// Two approvers race; the transactional flip admits one insert, the loser
// re-reads and returns the winner's certificate.
func TestApproveConcurrentApproversIssueOneCertificate(t *testing.T) {
	var mu sync.Mutex
	state := readyRequest("req-1")
	requests := &mockRequestStore{
		findByIDFn: func(_ context.Context, _ string) (*models.ClearanceRequest, error) {
			mu.Lock()
			defer mu.Unlock()
			snapshot := *state
			return &snapshot, nil
		},
	}
	issued := 0
	certs := &mockCertificateStore{
		issueFn: func(_ context.Context, cert *models.Certificate, _ *string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if issued > 0 {
				return false, nil
			}
			issued++
			certID := cert.ID
			state = &models.ClearanceRequest{
				ID:                state.ID,
				StudentIdentifier: state.StudentIdentifier,
				AggregateStatus:   models.AggregateFinalApproved,
				CertificateID:     &certID,
			}
			return true, nil
		},
	}

	svc := newFinalApprovalService(requests, certs, &mockNotifier{})

	const approvers = 8
	results := make([]*dto.FinalApprovalResult, approvers)
	var wg sync.WaitGroup
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Approve(context.Background(), Actor{Claims: hodClaims("hod-1")}, "req-1", dto.FinalApproveRequest{})
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, issued, "exactly one certificate insert may commit")
	mu.Unlock()
	first := results[0].CertificateID
	for _, result := range results {
		assert.Equal(t, first, result.CertificateID, "every approver must see the same certificate")
	}
}
