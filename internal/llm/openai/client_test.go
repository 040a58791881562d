package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"coach-backend/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("sk-test", srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  ", ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestChatSendsMessagesAndParsesUsage(t *testing.T) {
	var got goopenai.ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"gpt-3.5-turbo-0125","choices":[{"message":{"role":"assistant","content":"  Hello there \n"}}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`)
	})

	resp, err := c.Chat(context.Background(), llm.ChatRequest{
		Model: "gpt-3.5-turbo",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "hi"},
		},
		Temperature: 0.8,
		MaxTokens:   2000,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text != "Hello there" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.PromptTokens != 12 || resp.CompletionTokens != 5 {
		t.Fatalf("usage = %d/%d", resp.PromptTokens, resp.CompletionTokens)
	}
	if resp.Model != "gpt-3.5-turbo-0125" {
		t.Fatalf("model = %q", resp.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Temperature != float32(0.8) || got.MaxTokens != 2000 {
		t.Fatalf("params = %+v", got)
	}
}

func TestChatErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`, wantErr: "slow down (rate_limit)"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", wantErr: "openai http status 502"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "missing choices"},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`, wantErr: "empty content"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestChatTimeoutWrapsErrTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, llm.ChatRequest{Model: "gpt-4"})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTranscribeMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("response_format") != "verbose_json" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "clip.webm" || string(data) != "audio-bytes" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		_, _ = io.WriteString(w, `{"text":" hello world ","language":"english","duration":3.5}`)
	})

	out, err := c.Transcribe(context.Background(), llm.TranscriptionRequest{
		FileName: "/tmp/uploads/clip.webm",
		Audio:    strings.NewReader("audio-bytes"),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Text != "hello world" || out.Language != "english" || out.DurationSeconds != 3.5 {
		t.Fatalf("out = %+v", out)
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	var got goopenai.CreateSpeechRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	})

	audio, err := c.Synthesize(context.Background(), llm.SpeechRequest{Text: "hi", Voice: "alloy", Speed: 1.0})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3fake" {
		t.Fatalf("audio = %q", audio)
	}
	if got.Model != goopenai.TTSModel1 || got.Voice != goopenai.VoiceAlloy || got.Input != "hi" || got.ResponseFormat != goopenai.SpeechResponseFormatMp3 {
		t.Fatalf("request = %+v", got)
	}
}

func TestSynthesizeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice","type":"invalid_request_error"}}`)
	})
	_, err := c.Synthesize(context.Background(), llm.SpeechRequest{Text: "hi", Voice: "nope"})
	if err == nil || !strings.Contains(err.Error(), "openai http status 400: bad voice") {
		t.Fatalf("err = %v", err)
	}
}

func TestTranscribeTimeoutWrapsErrTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Transcribe(ctx, llm.TranscriptionRequest{FileName: "a.wav", Audio: strings.NewReader("x")})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
