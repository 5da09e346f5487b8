package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Path       string `json:"path"`
	Timestamp  string `json:"timestamp"`
}

// statusFor maps a service error to its HTTP status and client message.
// Unknown errors become a generic 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenBadSignature),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "invalid access token"
	case errors.Is(err, common.ErrRefreshTokenNotFound):
		return http.StatusForbidden, "refresh token is not recognized"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusForbidden, "refresh token expired, sign in again"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		StatusCode: status,
		Message:    msg,
		Path:       c.Request.URL.Path,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// fail writes the mapped error. Server-side failures are logged with the
// full cause; the client only sees the generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(c.Request.Context(), "request failed",
			"path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "error", err)
	}
	writeError(c, status, msg)
}
