package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/service"
	"github.com/uniops/clearance-api/pkg/response"
)

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary     Authenticate a user
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       payload body models.LoginRequest true "Credentials"
// @Success     200 {object} response.Envelope{data=models.LoginResponse}
// @Failure     401 {object} response.Envelope
// @Router      /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Refresh godoc
// @Summary     Rotate a refresh token
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       payload body models.RefreshTokenRequest true "Refresh token"
// @Success     200 {object} response.Envelope{data=models.RefreshTokenResponse}
// @Failure     401 {object} response.Envelope
// @Router      /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.auth.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Logout godoc
// @Summary     Revoke the caller's sessions
// @Tags        auth
// @Security    BearerAuth
// @Success     204
// @Router      /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
