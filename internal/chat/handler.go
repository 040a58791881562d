package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/conversation"
	"coach-backend/internal/extract"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/server/bind"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/shared/storage/object"
	"coach-backend/internal/shared/util"
	"coach-backend/internal/usage"
)

const maxUploadSize = 10 << 20 // 10MB

var allowedUploadExt = map[string]bool{
	"pdf": true, "txt": true, "md": true, "doc": true, "docx": true,
	"jpg": true, "jpeg": true, "png": true, "gif": true,
}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc   *Service
	Store object.ObjectStore
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, store object.ObjectStore) *Handler {
	return &Handler{Svc: svc, Store: store}
}

// RegisterRoutes attaches chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chats/:kind", h.startSession)
	rg.POST("/chats/:kind/messages", h.reply)
	rg.POST("/files", h.upload)
}

type personaRequest struct {
	RolePosition string `json:"role_position" validate:"max=200"`
	CompanyName  string `json:"company_name" validate:"max=200"`
	Difficulty   string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Language     string `json:"language" validate:"max=16"`
}

func (p personaRequest) context(kind usage.Kind) conversation.PersonaContext {
	mode := conversation.ModeGeneral
	if kind == usage.KindInterview {
		mode = conversation.ModeInterview
	}
	return conversation.PersonaContext{
		Mode:         mode,
		RolePosition: strings.TrimSpace(p.RolePosition),
		CompanyName:  strings.TrimSpace(p.CompanyName),
		Difficulty:   conversation.Difficulty(strings.TrimSpace(p.Difficulty)),
		Language:     strings.TrimSpace(p.Language),
	}
}

type startSessionRequest struct {
	personaRequest
}

type messageRequest struct {
	personaRequest
	Content     string                  `json:"content" validate:"max=20000"`
	History     []conversation.Turn     `json:"history" validate:"max=200"`
	Attachments []extract.AttachmentRef `json:"attachments" validate:"max=10,dive"`
	Narrate     bool                    `json:"narrate"`
	Voice       string                  `json:"voice" validate:"omitempty,oneof=alloy echo fable onyx nova shimmer"`
}

type uploadResponse struct {
	extract.AttachmentRef
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url,omitempty"`
}

func (h *Handler) startSession(c *gin.Context) {
	kind, err := usage.ParseKind(c.Param("kind"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	c.Set("chatKind", string(kind))

	req := startSessionRequest{}
	if c.Request.ContentLength != 0 {
		if req, err = bind.JSON[startSessionRequest](c); err != nil {
			respond.Err(c, err)
			return
		}
	}

	sess, err := h.Svc.StartSession(c.Request.Context(), middleware.UserIDFromContext(c), kind, req.context(kind))
	if err != nil {
		respond.Err(c, err)
		return
	}
	c.Set("sessionId", sess.ID)
	respond.Created(c, sess)
}

func (h *Handler) reply(c *gin.Context) {
	kind, err := usage.ParseKind(c.Param("kind"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	c.Set("chatKind", string(kind))

	req, err := bind.JSON[messageRequest](c)
	if err != nil {
		respond.Err(c, err)
		return
	}

	userID := middleware.UserIDFromContext(c)
	if err := checkOwnership(userID, req.Attachments); err != nil {
		respond.Err(c, err)
		return
	}

	reply, err := h.Svc.Reply(c.Request.Context(), Request{
		UserID:      userID,
		Persona:     req.context(kind),
		Text:        req.Content,
		History:     req.History,
		Attachments: req.Attachments,
		Narrate:     req.Narrate,
		Voice:       req.Voice,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, reply)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > maxUploadSize {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file too large. Maximum size: 10MB", nil)
		return
	}
	ext := util.Ext(fileHeader.Filename)
	if !allowedUploadExt[ext] {
		respond.Error(c, http.StatusBadRequest, "validation_error",
			"file type not allowed. Allowed: pdf, txt, md, doc, docx, jpg, jpeg, png, gif", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	key, size, mimeType, err := h.Store.Save(c.Request.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store file", nil)
		return
	}
	if ct := strings.TrimSpace(fileHeader.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		mimeType = ct
	}

	resp := uploadResponse{
		AttachmentRef: extract.AttachmentRef{Path: key, DisplayName: fileHeader.Filename, MediaType: mimeType},
		SizeBytes:     size,
	}
	if url, err := h.Store.URL(c.Request.Context(), key); err == nil {
		resp.URL = url
	}
	respond.Created(c, resp)
}

// checkOwnership rejects attachment keys outside the caller's namespace.
func checkOwnership(userID string, refs []extract.AttachmentRef) error {
	prefix := util.HashUserKey(userID) + "/"
	for _, ref := range refs {
		if !strings.HasPrefix(ref.Path, prefix) || strings.Contains(ref.Path, "..") {
			return apperr.Invalid("attachments", "attachment %q not found", ref.DisplayName)
		}
	}
	return nil
}
