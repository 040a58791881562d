package llm

import (
	"context"
	"errors"
	"io"
)

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to a provider.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a single completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the reply text and raw token counts.
type ChatResponse struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ChatProvider abstracts chat completion providers.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// TranscriptionRequest is an audio file to transcribe.
type TranscriptionRequest struct {
	Model    string
	FileName string
	Audio    io.Reader
}

// Transcription is the provider's transcript.
type Transcription struct {
	Text            string
	DurationSeconds float64
	Language        string
}

// Transcriber abstracts speech-to-text providers.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error)
}

// SpeechRequest is text to synthesize.
type SpeechRequest struct {
	Model  string
	Text   string
	Voice  string
	Speed  float64
	Format string
}

// Synthesizer abstracts text-to-speech providers. It returns encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// ErrTimeout is wrapped by providers when the upstream call timed out.
var ErrTimeout = errors.New("provider timeout")

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("AI provider not configured")

// PlaceholderClient stands in when no provider key is configured (dev only).
type PlaceholderClient struct{}

// Chat returns ErrNotConfigured.
func (PlaceholderClient) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, ErrNotConfigured
}

// Transcribe returns ErrNotConfigured.
func (PlaceholderClient) Transcribe(context.Context, TranscriptionRequest) (Transcription, error) {
	return Transcription{}, ErrNotConfigured
}

// Synthesize returns ErrNotConfigured.
func (PlaceholderClient) Synthesize(context.Context, SpeechRequest) ([]byte, error) {
	return nil, ErrNotConfigured
}
