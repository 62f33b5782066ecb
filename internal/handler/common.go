package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/middleware"
	"github.com/uniops/clearance-api/internal/service"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
	"github.com/uniops/clearance-api/pkg/response"
)

func actorFromContext(c *gin.Context) service.Actor {
	return service.Actor{
		Claims:    middleware.ClaimsFromContext(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed request body"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
