package httpapi

import (
	"context"
	"errors"
	"net/http"

	"voice-auth/internal/audit"
	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy to an HTTP status. The more specific
// dependency errors are checked before the ErrDependency category they wrap.
func statusFor(err error) int {
	switch {
	case errors.Is(err, voice.ErrValidation), errors.Is(err, audit.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, voice.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, voice.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, voice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, voice.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, voice.ErrDependencyTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, voice.ErrDependencyBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, voice.ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"error": ...}. Internal errors are logged and
// replaced by a generic message.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "status", status, "err", err)
		_ = c.Error(err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
