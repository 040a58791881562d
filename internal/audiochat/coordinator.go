// Package audiochat composes one voice interaction: speech-to-text, a chat
// reply, then text-to-speech of the reply.
package audiochat

import (
	"context"
	"io"
	"strings"

	"coach-backend/internal/chat"
	"coach-backend/internal/conversation"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/speech"
)

// Transcriber converts uploaded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, in speech.TranscribeInput) (speech.Transcript, error)
}

// Narrator speaks reply text.
type Narrator interface {
	Narrate(ctx context.Context, userID, text, voice string) (speech.Audio, error)
}

// Replier produces the chat reply.
type Replier interface {
	Reply(ctx context.Context, req chat.Request) (chat.Reply, error)
}

// Request is one voice turn.
type Request struct {
	UserID      string
	Audio       io.Reader
	FileName    string
	ContentType string
	Persona     conversation.PersonaContext
	History     []conversation.Turn
	Voice       string
	IncludeText bool
}

// Response is the outcome of a round trip. When synthesis fails the reply
// text is still returned, AudioURL is empty and Degraded is set.
type Response struct {
	UserText string            `json:"user_text"`
	Message  conversation.Turn `json:"ai_message"`
	AIText   string            `json:"ai_text,omitempty"`
	AudioURL string            `json:"audio_url"`
	Usage    chat.Usage        `json:"usage"`
	Cost     float64           `json:"cost"`
	Degraded bool              `json:"degraded"`
}

// Coordinator runs the STT, chat, TTS sequence.
type Coordinator struct {
	STT   Transcriber
	Chat  Replier
	Voice Narrator
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(stt Transcriber, replier Replier, narrator Narrator) *Coordinator {
	return &Coordinator{STT: stt, Chat: replier, Voice: narrator}
}

// Run performs the round trip. Transcription and completion failures are
// returned; a synthesis failure downgrades the response instead.
func (c *Coordinator) Run(ctx context.Context, req Request) (Response, error) {
	if !speech.ValidVoice(req.Voice) {
		return Response{}, apperr.Invalid("voice", "invalid voice %q", req.Voice)
	}

	transcript, err := c.STT.Transcribe(ctx, speech.TranscribeInput{
		UserID:      req.UserID,
		Audio:       req.Audio,
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return Response{}, apperr.Invalid("audio", "no speech detected in audio")
	}

	persona := req.Persona
	if persona.Mode == "" {
		persona.Mode = conversation.ModeGeneral
		if strings.TrimSpace(persona.RolePosition) != "" || strings.TrimSpace(persona.CompanyName) != "" {
			persona.Mode = conversation.ModeInterview
		}
	}

	// Interview replies come back already narrated; general replies are narrated below.
	reply, err := c.Chat.Reply(ctx, chat.Request{
		UserID:  req.UserID,
		Persona: persona,
		Text:    transcript.Text,
		History: req.History,
		Voice:   req.Voice,
	})
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		UserText: transcript.Text,
		Message:  reply.Message,
		Usage:    reply.Usage,
		Cost:     reply.Cost,
		AudioURL: reply.Message.AudioRef,
		Degraded: reply.AudioDegraded,
	}
	if req.IncludeText {
		resp.AIText = reply.Message.Text
	}

	if resp.AudioURL == "" && !resp.Degraded {
		audio, err := c.Voice.Narrate(ctx, req.UserID, reply.Message.Text, req.Voice)
		if err != nil {
			metrics.IncRoundTripDegraded()
			telemetry.Error("audiochat.tts_failed", map[string]any{"user_id": req.UserID, "error": err})
			resp.Degraded = true
		} else {
			resp.AudioURL = audio.AudioURL
			resp.Message.AudioRef = audio.AudioURL
		}
	}
	return resp, nil
}
