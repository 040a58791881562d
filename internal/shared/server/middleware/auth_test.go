package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/auth"
)

func testSigner(t *testing.T) *auth.Signer {
	t.Helper()
	s, err := auth.NewSigner("test-secret", "dev")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func identityRouter(t *testing.T, signer *auth.Signer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(signer))
	router.GET("/whoami", func(c *gin.Context) {
		guest, _ := c.Get("isGuest")
		c.JSON(http.StatusOK, gin.H{
			"userId": UserIDFromContext(c),
			"email":  UserEmailFromContext(c),
			"guest":  guest,
		})
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(testSigner(t)))
	router.OPTIONS("/api/v1/chats/interview", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chats/interview", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthBearerToken(t *testing.T) {
	signer := testSigner(t)
	token, err := signer.Sign(auth.Claims{Sub: "user-42", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	identityRouter(t, signer).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "user-42" || body["email"] != "u@example.com" || body["guest"] != false {
		t.Fatalf("unexpected identity: %v", body)
	}
}

func TestAuthGuestHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Guest-Id", "abc")
	resp := httptest.NewRecorder()
	identityRouter(t, testSigner(t)).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["userId"] != "guest:abc" || body["guest"] != true {
		t.Fatalf("unexpected identity: %v", body)
	}
}

func TestAuthRejects(t *testing.T) {
	other, _ := auth.NewSigner("other-secret", "dev")
	foreign, _ := other.Sign(auth.Claims{Sub: "x"})

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{name: "no identity"},
		{name: "not bearer", header: "Authorization", value: "Basic abc"},
		{name: "empty bearer", header: "Authorization", value: "Bearer "},
		{name: "foreign token", header: "Authorization", value: "Bearer " + foreign},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp := httptest.NewRecorder()
			identityRouter(t, testSigner(t)).ServeHTTP(resp, req)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}
