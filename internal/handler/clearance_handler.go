package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/dto"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/service"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
	"github.com/uniops/clearance-api/pkg/response"
)

// ClearanceHandler exposes the student-facing clearance request endpoints.
type ClearanceHandler struct {
	submissions *service.SubmissionService
	departments *service.DepartmentService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(submissions *service.SubmissionService, departments *service.DepartmentService) *ClearanceHandler {
	return &ClearanceHandler{submissions: submissions, departments: departments}
}

// Submit godoc
// @Summary     Submit a clearance request
// @Description Creates the request and fans it out to every department track.
// @Tags        clearance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       payload body dto.SubmitClearanceRequest true "Student facts"
// @Success     201 {object} response.Envelope{data=models.ClearanceRequest}
// @Failure     409 {object} response.Envelope
// @Router      /clearance [post]
func (h *ClearanceHandler) Submit(c *gin.Context) {
	var req dto.SubmitClearanceRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.submissions.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary     List clearance requests
// @Tags        clearance
// @Produce     json
// @Security    BearerAuth
// @Param       status    query string false "Aggregate status filter"
// @Param       page      query int    false "Page"
// @Param       page_size query int    false "Page size"
// @Success     200 {object} response.Envelope{data=[]models.ClearanceRequest}
// @Router      /clearance [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	filter := models.ClearanceRequestFilter{
		StudentID: c.Query("student_id"),
		Status:    models.AggregateStatus(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
	}

	requests, pagination, err := h.submissions.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, &pagination)
}

// Get godoc
// @Summary     Get one clearance request
// @Tags        clearance
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Request ID"
// @Success     200 {object} response.Envelope{data=models.ClearanceRequest}
// @Failure     404 {object} response.Envelope
// @Router      /clearance/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	request, err := h.submissions.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Status godoc
// @Summary     Get the per-department progress view
// @Tags        clearance
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Request ID"
// @Success     200 {object} response.Envelope{data=models.ClearanceStatusSummary}
// @Router      /clearance/{id}/status [get]
func (h *ClearanceHandler) Status(c *gin.Context) {
	summary, err := h.submissions.Status(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Resubmit godoc
// @Summary     Re-open rejected department tracks
// @Description Resets every rejected track of the request to pending,
// @Description optionally refreshing the student facts the reviewers see.
// @Tags        clearance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true  "Request ID"
// @Param       payload body dto.ResubmitRequest false "Updated facts"
// @Success     200 {object} response.Envelope{data=[]models.DepartmentClearanceRecord}
// @Failure     400 {object} response.Envelope
// @Failure     409 {object} response.Envelope
// @Router      /clearance/{id}/resubmit [post]
func (h *ClearanceHandler) Resubmit(c *gin.Context) {
	var req dto.ResubmitRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	records, err := h.departments.Resubmit(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ResubmitTrack godoc
// @Summary     Re-open one rejected department track
// @Tags        clearance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id         path string             true  "Request ID"
// @Param       department path string             true  "Department name"
// @Param       payload    body dto.ResubmitRequest false "Updated facts"
// @Success     200 {object} response.Envelope{data=models.DepartmentClearanceRecord}
// @Failure     409 {object} response.Envelope
// @Router      /clearance/{id}/resubmit/{department} [post]
func (h *ClearanceHandler) ResubmitTrack(c *gin.Context) {
	department, ok := models.ParseDepartment(c.Param("department"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown department"))
		return
	}

	var req dto.ResubmitRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	record, err := h.departments.ResubmitTrack(c.Request.Context(), actorFromContext(c), c.Param("id"), department, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
