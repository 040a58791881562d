package audiochat

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/conversation"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/speech"
)

// Handler exposes the voice round trip.
type Handler struct {
	Coordinator *Coordinator
}

// NewHandler constructs a Handler.
func NewHandler(c *Coordinator) *Handler {
	return &Handler{Coordinator: c}
}

// RegisterRoutes attaches the audio chat route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/audio-chat", h.run)
}

// run accepts multipart form data: the audio under "file" plus optional
// persona fields and a JSON-encoded "history" array.
func (h *Handler) run(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, speech.MaxAudioBytes+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	var history []conversation.Turn
	if raw := strings.TrimSpace(c.PostForm("history")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "history must be a JSON array of messages", nil)
			return
		}
	}
	includeText := true
	if raw := c.PostForm("include_text"); raw != "" {
		if includeText, err = strconv.ParseBool(raw); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "include_text must be a boolean", nil)
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	resp, err := h.Coordinator.Run(c.Request.Context(), Request{
		UserID:      middleware.UserIDFromContext(c),
		Audio:       file,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Persona: conversation.PersonaContext{
			Mode:         conversation.Mode(strings.TrimSpace(c.PostForm("mode"))),
			RolePosition: strings.TrimSpace(c.PostForm("role_position")),
			CompanyName:  strings.TrimSpace(c.PostForm("company_name")),
			Difficulty:   conversation.Difficulty(strings.TrimSpace(c.PostForm("difficulty"))),
			Language:     strings.TrimSpace(c.PostForm("language")),
		},
		History:     history,
		Voice:       strings.TrimSpace(c.PostForm("voice")),
		IncludeText: includeText,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, resp)
}
