package audiochat

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/conversation"
)

func audioForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="clip.webm"`)
	h.Set("Content-Type", "audio/webm")
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("webm-bytes"))
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func serve(t *testing.T, c *Coordinator, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "guest:voice")
		c.Next()
	})
	NewHandler(c).RegisterRoutes(r.Group("/api/v1"))

	body, ct := audioForm(t, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio-chat", body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlerRoundTrip(t *testing.T) {
	replier := &fakeChat{}
	c := NewCoordinator(&fakeSTT{text: "hello"}, replier, &fakeVoice{})

	resp := serve(t, c, map[string]string{
		"company_name": "Acme",
		"history":      `[{"role":"user","content":"earlier"}]`,
		"voice":        "shimmer",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out Response
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserText != "hello" || out.AIText != "echo: hello" || out.AudioURL == "" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if replier.got.UserID != "guest:voice" || replier.got.Persona.Mode != conversation.ModeInterview {
		t.Fatalf("unexpected chat request: %+v", replier.got)
	}
	if len(replier.got.History) != 1 {
		t.Fatalf("expected history to be forwarded, got %d turns", len(replier.got.History))
	}
}

func TestHandlerOmitsTextWhenAsked(t *testing.T) {
	c := NewCoordinator(&fakeSTT{text: "hello"}, &fakeChat{}, &fakeVoice{})
	resp := serve(t, c, map[string]string{"include_text": "false"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	if _, ok := out["ai_text"]; ok {
		t.Fatalf("ai_text should be omitted: %v", out)
	}
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		stt    *fakeSTT
		fields map[string]string
		want   int
	}{
		{name: "bad history", stt: &fakeSTT{text: "x"}, fields: map[string]string{"history": "{"}, want: http.StatusBadRequest},
		{name: "bad include_text", stt: &fakeSTT{text: "x"}, fields: map[string]string{"include_text": "maybe"}, want: http.StatusBadRequest},
		{name: "silence", stt: &fakeSTT{text: "  "}, want: http.StatusBadRequest},
		{name: "stt failure", stt: &fakeSTT{err: errors.New("boom")}, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(tt.stt, &fakeChat{}, &fakeVoice{})
			resp := serve(t, c, tt.fields)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}
