package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/service"
	"github.com/uniops/clearance-api/pkg/response"
)

// CertificateHandler exposes certificate verification and rendering.
type CertificateHandler struct {
	certificates *service.CertificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Verify godoc
// @Summary     Verify a certificate identifier
// @Description Public endpoint. An unknown identifier yields a valid=false
// @Description answer rather than an error.
// @Tags        certificates
// @Produce     json
// @Param       id path string true "Certificate ID"
// @Success     200 {object} response.Envelope{data=models.CertificateVerification}
// @Router      /certificates/{id}/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	verification, err := h.certificates.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verification, nil)
}

// Download godoc
// @Summary     Download the printable certificate
// @Tags        certificates
// @Produce     application/pdf
// @Security    BearerAuth
// @Param       id path string true "Certificate ID"
// @Success     200 {file} binary
// @Failure     404 {object} response.Envelope
// @Router      /certificates/{id}/pdf [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	certificateID := c.Param("id")
	pdf, err := h.certificates.RenderPDF(c.Request.Context(), certificateID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, certificateID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
