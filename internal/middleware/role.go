// role.go provides the capability check applied uniformly to admin routes
// instead of per-handler role tests.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin aborts with 403 unless the authenticated user is an admin.
// Must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin access required",
			})
			return
		}
		c.Next()
	}
}
