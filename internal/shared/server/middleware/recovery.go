package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/shared/telemetry"
)

// Recovery turns a panic in a chat, speech or upload handler into a 500
// internal_error envelope. The stack is logged, never returned.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"path":       c.FullPath(),
				"method":     c.Request.Method,
			}
			if userID := UserIDFromContext(c); userID != "" {
				fields["user_id"] = userID
			}
			if kind := c.GetString("chatKind"); kind != "" {
				fields["chat_kind"] = kind
			}
			telemetry.Error("http.panic", fields)
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
