package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			abortWithStatus(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !principal.IsAdmin() {
			abortWithStatus(c, http.StatusForbidden, "forbidden", "administrator access required")
			return
		}
		c.Next()
	}
}
