package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travelblog/internal/service"
)

func errorBody(code, message string) gin.H {
	return gin.H{"error": code, "message": message}
}

// StatusFor maps a service error kind onto an HTTP status. Token links that
// fail for any reason answer 400.
func StatusFor(err *service.Error) int {
	switch err.Kind {
	case service.KindValidation, service.KindMismatch:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		if err.Code == "token_invalid" {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindTooManyRequests:
		return http.StatusTooManyRequests
	case service.KindExpired:
		if err.Code == "session_expired" {
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// AbortWithError writes the standard error body. Errors that are not typed
// service errors are logged and reported as internal_error without detail.
func AbortWithError(c *gin.Context, log zerolog.Logger, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		log.Error().Err(err).
			Str("request_id", RequestIDFrom(c)).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal_error", "internal server error"))
		return
	}

	body := errorBody(svcErr.Code, svcErr.Message)
	if !svcErr.ResetAt.IsZero() {
		body["resetAt"] = svcErr.ResetAt.UTC().Format(time.RFC3339)
		c.Header("Retry-After", retryAfter(svcErr.ResetAt))
	}
	c.AbortWithStatusJSON(StatusFor(svcErr), body)
}

func abortWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody(code, message))
}
