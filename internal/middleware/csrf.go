package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelblog/internal/security"
)

type CSRFVerifier interface {
	VerifyCSRF(sessionToken, cookieValue, headerValue string) bool
}

// CSRF enforces the double-submit token on mutating requests that carry a
// session cookie. Requests without the cookie, such as API-key calls, have
// no ambient credential to abuse and pass through.
func CSRF(verifier CSRFVerifier, sessionCookie, csrfCookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		session, err := c.Cookie(sessionCookie)
		if err != nil || session == "" {
			c.Next()
			return
		}

		cookieValue, _ := c.Cookie(csrfCookie)
		if !verifier.VerifyCSRF(session, cookieValue, c.GetHeader(security.HeaderCSRFToken)) {
			abortWithStatus(c, http.StatusForbidden, "csrf_invalid", "missing or invalid CSRF token")
			return
		}
		c.Next()
	}
}
