package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/telemetry"
)

// Client implements the chat, transcription and speech provider interfaces
// on top of the go-openai SDK.
type Client struct {
	api *goopenai.Client
}

// NewClient constructs a new OpenAI client. An empty baseURL uses the public API.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	// Upper bound only; callers apply tighter per-operation deadlines via ctx.
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: goopenai.NewClientWithConfig(cfg)}, nil
}

// Chat calls /chat/completions.
func (c *Client) Chat(ctx context.Context, in llm.ChatRequest) (llm.ChatResponse, error) {
	if strings.TrimSpace(in.Model) == "" {
		return llm.ChatResponse{}, fmt.Errorf("openai chat: model is required")
	}
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       in.Model,
		Messages:    msgs,
		Temperature: float32(in.Temperature),
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return llm.ChatResponse{}, wrapError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return llm.ChatResponse{}, fmt.Errorf("openai response empty content")
	}

	out := llm.ChatResponse{
		Text:             content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = in.Model
	}
	telemetry.Debug("openai.chat", map[string]any{
		"model":             out.Model,
		"prompt_tokens":     out.PromptTokens,
		"completion_tokens": out.CompletionTokens,
	})
	return out, nil
}

// wrapError renders SDK failures with the HTTP status and tags timeouts with llm.ErrTimeout.
func wrapError(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("openai %s timeout: %w: %w", op, llm.ErrTimeout, err)
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai http status %d: %s (%s)", apiErr.HTTPStatusCode, apiErr.Message, apiErr.Type)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Errorf("openai http status %d: %s", reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)))
	}
	return fmt.Errorf("openai %s: %w", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

var (
	_ llm.ChatProvider = (*Client)(nil)
	_ llm.Transcriber  = (*Client)(nil)
	_ llm.Synthesizer  = (*Client)(nil)
)
