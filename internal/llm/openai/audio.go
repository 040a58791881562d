package openai

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"coach-backend/internal/llm"
)

// Transcribe uploads audio to /audio/transcriptions and asks for verbose JSON
// so duration and language come back with the text.
func (c *Client) Transcribe(ctx context.Context, in llm.TranscriptionRequest) (llm.Transcription, error) {
	if in.Audio == nil {
		return llm.Transcription{}, fmt.Errorf("openai transcribe: audio is required")
	}
	model := in.Model
	if model == "" {
		model = goopenai.Whisper1
	}

	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    model,
		Reader:   in.Audio,
		FilePath: filepath.Base(in.FileName),
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return llm.Transcription{}, wrapError("transcribe", err)
	}
	return llm.Transcription{
		Text:            strings.TrimSpace(resp.Text),
		DurationSeconds: resp.Duration,
		Language:        resp.Language,
	}, nil
}

// Synthesize calls /audio/speech and returns the encoded audio.
func (c *Client) Synthesize(ctx context.Context, in llm.SpeechRequest) ([]byte, error) {
	model := in.Model
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	format := in.Format
	if format == "" {
		format = string(goopenai.SpeechResponseFormatMp3)
	}

	resp, err := c.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(model),
		Input:          in.Text,
		Voice:          goopenai.SpeechVoice(in.Voice),
		Speed:          in.Speed,
		ResponseFormat: goopenai.SpeechResponseFormat(format),
	})
	if err != nil {
		return nil, wrapError("speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, wrapError("speech", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai speech: empty audio")
	}
	return audio, nil
}
