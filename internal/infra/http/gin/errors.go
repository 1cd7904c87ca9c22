package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentguru/internal/app/middleware"
	"rentguru/internal/app/policies"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
)

const internalErrorMessage = "something went wrong, please try again"

// statusFor maps an application error to its HTTP status and the single
// sentence shown to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, middleware.ErrUnauthenticated), errors.Is(err, policies.ErrInvalidToken):
		return http.StatusUnauthorized, "auth required"
	case errors.Is(err, policies.ErrLockTimeout):
		return http.StatusServiceUnavailable, "the resource is busy, please retry"
	}
	switch chat.KindOf(err) {
	case booking.KindValidation:
		return http.StatusUnprocessableEntity, booking.PublicReason(err)
	case booking.KindConflict:
		return http.StatusConflict, booking.PublicReason(err)
	case booking.KindGateway:
		return http.StatusBadGateway, booking.PublicReason(err)
	case booking.KindNotFound:
		return http.StatusNotFound, booking.PublicReason(err)
	case booking.KindPermission:
		return http.StatusForbidden, booking.PublicReason(err)
	}
	return http.StatusInternalServerError, internalErrorMessage
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if logger != nil {
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		} else {
			logger.DebugContext(c.Request.Context(), "request rejected", "path", c.FullPath(), "status", status, "error", err)
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid: " + err.Error()})
}
