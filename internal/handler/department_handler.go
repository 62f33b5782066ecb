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

// DepartmentHandler exposes the staff review endpoints.
type DepartmentHandler struct {
	departments *service.DepartmentService
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(departments *service.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{departments: departments}
}

// Queue godoc
// @Summary     List the pending review queue for a department
// @Tags        departments
// @Produce     json
// @Security    BearerAuth
// @Param       department path  string true  "Department name"
// @Param       page       query int    false "Page"
// @Param       page_size  query int    false "Page size"
// @Success     200 {object} response.Envelope{data=[]models.DepartmentClearanceRecord}
// @Failure     403 {object} response.Envelope
// @Router      /departments/{department}/queue [get]
func (h *DepartmentHandler) Queue(c *gin.Context) {
	department, ok := models.ParseDepartment(c.Param("department"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown department"))
		return
	}

	records, pagination, err := h.departments.Queue(c.Request.Context(), actorFromContext(c), department,
		queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, &pagination)
}

// Decide godoc
// @Summary     Approve or reject a pending department record
// @Description A rejection must carry remarks naming the outstanding
// @Description obligation. An approval re-evaluates the aggregate and may
// @Description promote the request to ready-for-final-approval.
// @Tags        departments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string            true "Record ID"
// @Param       payload body dto.DecideRequest true "Decision"
// @Success     200 {object} response.Envelope{data=models.DepartmentClearanceRecord}
// @Failure     409 {object} response.Envelope
// @Router      /records/{id}/decision [post]
func (h *DepartmentHandler) Decide(c *gin.Context) {
	var req dto.DecideRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.departments.Decide(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
