package usage

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
)

// Handler exposes usage endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getUsage)
}

// RegisterDevRoutes attaches dev-only usage routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/usage/reset", h.resetUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	counter, err := h.Svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err, "failed to fetch usage")
		return
	}
	respond.JSON(c, http.StatusOK, view(counter))
}

func (h *Handler) resetUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	counter, err := h.Svc.Reset(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err, "failed to reset usage")
		return
	}
	respond.JSON(c, http.StatusOK, view(counter))
}

func view(c Counter) gin.H {
	return gin.H{
		"tier":        c.Tier,
		"periodStart": c.PeriodStart,
		"normal": gin.H{
			"used":      c.NormalUsed,
			"limit":     c.NormalLimit,
			"remaining": c.Remaining(KindNormal),
		},
		"interview": gin.H{
			"used":      c.InterviewUsed,
			"limit":     c.InterviewLimit,
			"remaining": c.Remaining(KindInterview),
		},
	}
}

func writeStoreError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
