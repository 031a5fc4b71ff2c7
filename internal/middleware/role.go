package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/response"
)

// Role returns the authenticated caller's role, or "" when anonymous.
func Role(c *gin.Context) models.Role {
	return models.Role(c.GetString(ContextUserRole))
}

// RequireRole lets through only callers holding one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRole); !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role := Role(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}

// RequireStaff is RequireRole for moderators and admins.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin, models.RoleModerator)
}
