package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/config"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:                "dev",
		ObjectStoreType:    "local",
		LocalStoreDir:      t.TempDir(),
		PublicBaseURL:      "http://localhost:8080/static",
		ChatModel:          "gpt-3.5-turbo",
		MaxTokens:          500,
		ChatTimeout:        time.Second,
		TranscribeTimeout:  time.Second,
		SynthesizeTimeout:  time.Second,
		TTSVoice:           "nova",
		FreeNormalLimit:    1,
		FreeInterviewLimit: 1,
	}
}

func call(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", "e2e")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestBuildDevFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.DB != nil {
		t.Fatalf("expected in-memory mode without DATABASE_URL")
	}
	if _, ok := app.Provider.(llm.PlaceholderClient); !ok {
		t.Fatalf("expected placeholder provider, got %T", app.Provider)
	}
	if app.Speech.Voice != "nova" {
		t.Fatalf("expected configured voice, got %q", app.Speech.Voice)
	}
	if app.Orchestrator.MaxTokens != 500 {
		t.Fatalf("expected configured max tokens, got %d", app.Orchestrator.MaxTokens)
	}
}

func TestBuildRequiresSecretsOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	cfg.DatabaseURL = ""
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected production build without DATABASE_URL to fail")
	}
}

func TestRouterEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := app.Router

	resp := call(r, http.MethodGet, "/api/v1/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}

	resp = call(r, http.MethodGet, "/api/v1/me", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "guest:e2e") {
		t.Fatalf("me: unexpected %d %s", resp.Code, resp.Body.String())
	}

	resp = call(r, http.MethodPost, "/api/v1/chats/general", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = call(r, http.MethodPost, "/api/v1/chats/general", "")
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("second start: expected 402, got %d", resp.Code)
	}

	resp = call(r, http.MethodGet, "/api/v1/usage", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d", resp.Code)
	}
	var counter map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &counter); err != nil {
		t.Fatalf("decode usage: %v", err)
	}

	// without a provider key the placeholder fails every call
	resp = call(r, http.MethodPost, "/api/v1/chats/general/messages", `{"content":"hello"}`)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("message: expected 502, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = call(r, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "quota_rejected_total") {
		t.Fatalf("metrics: unexpected %d %s", resp.Code, resp.Body.String())
	}
}

func TestRouterRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/general", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
