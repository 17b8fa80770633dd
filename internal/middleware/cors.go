package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders  = "Content-Type, X-CSRF-Token, X-API-Key, X-Request-Id"
	corsExposeHeaders = "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, X-Request-Id"
)

// CORS reflects allowed origins. Credentials are only allowed for origins
// listed explicitly; with an empty list any origin may make cookie-less calls.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			originMap[origin] = struct{}{}
		}
	}
	allowAll := len(originMap) == 0

	return func(c *gin.Context) {
		header := c.Writer.Header()
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			header.Add("Vary", "Origin")
			if _, ok := originMap[origin]; ok {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
			} else if allowAll {
				header.Set("Access-Control-Allow-Origin", origin)
			}
		}

		header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
