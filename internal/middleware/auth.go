package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uniops/clearance-api/internal/models"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
	"github.com/uniops/clearance-api/pkg/response"
)

// ContextUserKey is the gin context key holding the verified JWT claims.
const ContextUserKey = "auth_user"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT verifies the bearer token and stores the claims in the request context.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// RequireRoles restricts a route to the given roles. Must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the verified claims, or nil outside an
// authenticated route.
func ClaimsFromContext(c *gin.Context) *models.JWTClaims {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := v.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
