package respond

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		fields["is_guest"] = isGuest
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// Err maps a pipeline error onto the error envelope:
// validation 400, quota 402, provider timeout 504, provider failure 502.
func Err(c *gin.Context, err error) {
	var v *apperr.ValidationError
	var p *apperr.ProviderError
	switch {
	case errors.As(err, &v):
		var details interface{}
		if v.Field != "" {
			details = gin.H{"field": v.Field}
		}
		Error(c, http.StatusBadRequest, "validation_error", v.Message, details)
	case errors.Is(err, apperr.ErrQuotaExceeded):
		Error(c, http.StatusPaymentRequired, "quota_exceeded",
			"You have reached your chat limit for this billing period. Upgrade your plan to continue.", nil)
	case errors.As(err, &p) && p.Timeout:
		Error(c, http.StatusGatewayTimeout, "provider_timeout", "the AI provider did not respond in time", gin.H{"operation": p.Operation})
	case errors.As(err, &p):
		Error(c, http.StatusBadGateway, "provider_error", "the AI provider request failed", gin.H{"operation": p.Operation})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		telemetry.Error("http.unhandled_error", map[string]any{"path": c.Request.URL.Path, "error": err})
		Error(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
