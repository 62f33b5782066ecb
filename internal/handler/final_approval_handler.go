package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/service"
	"github.com/uniops/clearance-api/pkg/response"
)

// FinalApprovalHandler exposes the head-of-department approval endpoint.
type FinalApprovalHandler struct {
	approvals *service.FinalApprovalService
}

// NewFinalApprovalHandler constructs the handler.
func NewFinalApprovalHandler(approvals *service.FinalApprovalService) *FinalApprovalHandler {
	return &FinalApprovalHandler{approvals: approvals}
}

// Approve godoc
// @Summary     Grant final approval and issue the certificate
// @Description Idempotent: approving an already-finalized request returns the
// @Description certificate issued the first time.
// @Tags        final-approval
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true  "Request ID"
// @Param       payload body dto.FinalApproveRequest false "Remarks"
// @Success     200 {object} response.Envelope{data=dto.FinalApprovalResult}
// @Failure     409 {object} response.Envelope
// @Router      /clearance/{id}/final-approval [post]
func (h *FinalApprovalHandler) Approve(c *gin.Context) {
	var req dto.FinalApproveRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.approvals.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
