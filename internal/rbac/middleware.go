package rbac

import (
	"net/http"

	"voice-auth/internal/auth"

	"github.com/gin-gonic/gin"
)

// Require enforces policy for the listed roles. It must run after
// auth.RequireAccessToken.
func Require(policy AccessPolicy, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFrom(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if d := policy.Check(claims, roles...); !d.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": d.Reason})
			return
		}
		c.Next()
	}
}

// RequireAnyRole is Require with the default RolePolicy.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	return Require(RolePolicy{}, allowed...)
}
