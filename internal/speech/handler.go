package speech

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/server/bind"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
)

// Handler exposes the speech endpoints.
type Handler struct {
	Bridge *Bridge
}

// NewHandler constructs a Handler.
func NewHandler(b *Bridge) *Handler {
	return &Handler{Bridge: b}
}

// RegisterRoutes attaches speech routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/speech/transcribe", h.transcribe)
	rg.POST("/speech/synthesize", h.synthesize)
}

type synthesizeRequest struct {
	Text  string  `json:"text" validate:"required"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

func (h *Handler) transcribe(c *gin.Context) {
	// multipart overhead on top of the audio cap
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAudioBytes+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	out, err := h.Bridge.Transcribe(c.Request.Context(), TranscribeInput{
		UserID:      middleware.UserIDFromContext(c),
		Audio:       file,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, out)
}

func (h *Handler) synthesize(c *gin.Context) {
	req, err := bind.JSON[synthesizeRequest](c)
	if err != nil {
		respond.Err(c, err)
		return
	}
	out, err := h.Bridge.Synthesize(c.Request.Context(), SynthesizeInput{
		UserID: middleware.UserIDFromContext(c),
		Text:   req.Text,
		Voice:  req.Voice,
		Speed:  req.Speed,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, out)
}
