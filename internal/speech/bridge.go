// Package speech wraps the transcription and synthesis providers with input
// validation, temp-file handling, storage of generated audio, and usage events.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/storage/object"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/shared/util"
	"coach-backend/internal/usagelog"
)

const (
	// MaxAudioBytes caps uploaded audio.
	MaxAudioBytes = 10 << 20
	// MaxSpeechChars caps synthesis input.
	MaxSpeechChars = 4000

	DefaultVoice = "alloy"
	DefaultSpeed = 1.0
	MinSpeed     = 0.25
	MaxSpeed     = 4.0

	defaultAudioExt          = "wav"
	defaultTranscribeTimeout = 60 * time.Second
	defaultSynthesizeTimeout = 30 * time.Second

	sttCostPerMB     = 0.006
	ttsCostPer1KChar = 0.015
	providerName     = "openai"
)

var allowedAudioExt = map[string]bool{"mp3": true, "wav": true, "m4a": true, "ogg": true, "webm": true}

var voices = map[string]bool{"alloy": true, "echo": true, "fable": true, "onyx": true, "nova": true, "shimmer": true}

// UsageSink receives one event per successful provider call.
type UsageSink interface {
	Emit(ev usagelog.Event)
}

// TranscribeInput is an uploaded audio clip.
type TranscribeInput struct {
	UserID      string
	Audio       io.Reader
	FileName    string
	ContentType string
}

// Transcript is the recognised text.
type Transcript struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration"`
	Language        string  `json:"language"`
}

// SynthesizeInput is text to speak.
type SynthesizeInput struct {
	UserID string
	Text   string
	Voice  string
	Speed  float64
}

// Audio is a stored synthesis result.
type Audio struct {
	AudioURL   string  `json:"audio_url"`
	StorageKey string  `json:"-"`
	SizeBytes  int64   `json:"file_size_bytes"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
}

// Bridge is the speech-to-text and text-to-speech boundary.
type Bridge struct {
	Transcriber llm.Transcriber
	Synthesizer llm.Synthesizer
	Store       object.ObjectStore
	Usage       UsageSink

	STTModel string
	TTSModel string
	// Voice is used when a request names none.
	Voice string

	TranscribeTimeout time.Duration
	SynthesizeTimeout time.Duration
	// TempDir holds buffered uploads; empty means os.TempDir().
	TempDir string
}

// NewBridge wires a Bridge with default timeouts.
func NewBridge(t llm.Transcriber, s llm.Synthesizer, store object.ObjectStore, usage UsageSink) *Bridge {
	return &Bridge{
		Transcriber:       t,
		Synthesizer:       s,
		Store:             store,
		Usage:             usage,
		STTModel:          "whisper-1",
		TTSModel:          "tts-1",
		Voice:             DefaultVoice,
		TranscribeTimeout: defaultTranscribeTimeout,
		SynthesizeTimeout: defaultSynthesizeTimeout,
	}
}

// AudioExt validates a client file name and returns its audio extension.
// A name without an extension is treated as a browser recording (wav).
func AudioExt(fileName string) (string, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return "", apperr.Invalid("audio", "file name is required")
	}
	ext := util.Ext(name)
	if ext == "" {
		return defaultAudioExt, nil
	}
	if !allowedAudioExt[ext] {
		return "", apperr.Invalid("audio", "audio format not supported. Allowed formats: mp3, wav, m4a, ogg, webm")
	}
	return ext, nil
}

// Transcribe validates and buffers the upload to a temp file, then sends it
// to the transcription provider. The temp file is removed on every path.
func (b *Bridge) Transcribe(ctx context.Context, in TranscribeInput) (Transcript, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(in.ContentType)), "audio/") {
		return Transcript{}, apperr.Invalid("audio", "file must be an audio file")
	}
	ext, err := AudioExt(in.FileName)
	if err != nil {
		return Transcript{}, err
	}
	if in.Audio == nil {
		return Transcript{}, apperr.Invalid("audio", "audio is required")
	}

	tmp, err := os.CreateTemp(b.TempDir, "stt-*."+ext)
	if err != nil {
		return Transcript{}, fmt.Errorf("create temp audio: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			telemetry.Warn("speech.temp_cleanup_failed", map[string]any{"path": tmp.Name(), "error": err})
		}
	}()

	size, err := io.Copy(tmp, io.LimitReader(in.Audio, MaxAudioBytes+1))
	if err != nil {
		return Transcript{}, fmt.Errorf("buffer audio: %w", err)
	}
	if size > MaxAudioBytes {
		return Transcript{}, apperr.Invalid("audio", "file too large. Maximum size: %.1fMB", float64(MaxAudioBytes)/(1024*1024))
	}
	if size == 0 {
		return Transcript{}, apperr.Invalid("audio", "audio file is empty")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Transcript{}, fmt.Errorf("rewind audio: %w", err)
	}

	out, err := llm.Call(ctx, providerName, "transcribe", b.TranscribeTimeout, func(ctx context.Context) (llm.Transcription, error) {
		return b.Transcriber.Transcribe(ctx, llm.TranscriptionRequest{
			Model:    b.STTModel,
			FileName: "audio." + ext,
			Audio:    tmp,
		})
	})
	if err != nil {
		telemetry.Error("speech.transcribe_failed", map[string]any{"user_id": in.UserID, "error": err})
		return Transcript{}, err
	}

	b.emit(usagelog.Event{
		UserID:   in.UserID,
		Endpoint: usagelog.EndpointTranscribe,
		Model:    b.STTModel,
		CostUSD:  sttCostPerMB * float64(size) / (1024 * 1024),
	})

	lang := out.Language
	if lang == "" {
		lang = "en"
	}
	return Transcript{Text: out.Text, DurationSeconds: out.DurationSeconds, Language: lang}, nil
}

// Synthesize validates the request strictly; over-long text is rejected.
func (b *Bridge) Synthesize(ctx context.Context, in SynthesizeInput) (Audio, error) {
	n := utf8.RuneCountInString(in.Text)
	if strings.TrimSpace(in.Text) == "" {
		return Audio{}, apperr.Invalid("text", "text is required")
	}
	if n > MaxSpeechChars {
		return Audio{}, apperr.Invalid("text", "text too long. Maximum %d characters", MaxSpeechChars)
	}
	voice := b.voiceOr(in.Voice)
	if !voices[voice] {
		return Audio{}, apperr.Invalid("voice", "invalid voice. Valid voices: alloy, echo, fable, onyx, nova, shimmer")
	}
	speed := in.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return Audio{}, apperr.Invalid("speed", "speed must be between 0.25 and 4.0")
	}
	return b.synthesize(ctx, in.UserID, in.Text, voice, speed)
}

// ValidVoice reports whether voice is a supported synthesis voice. Empty is
// accepted and means DefaultVoice.
func ValidVoice(voice string) bool {
	return voice == "" || voices[voice]
}

// Narrate speaks an assistant reply at default speed, truncating rather than
// rejecting long text. An empty voice uses the bridge default.
func (b *Bridge) Narrate(ctx context.Context, userID, text, voice string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, apperr.Invalid("text", "nothing to narrate")
	}
	voice = b.voiceOr(voice)
	if !voices[voice] {
		return Audio{}, apperr.Invalid("voice", "invalid voice %q", voice)
	}
	return b.synthesize(ctx, userID, truncateRunes(text, MaxSpeechChars), voice, DefaultSpeed)
}

func (b *Bridge) synthesize(ctx context.Context, userID, text, voice string, speed float64) (Audio, error) {
	data, err := llm.Call(ctx, providerName, "synthesize", b.SynthesizeTimeout, func(ctx context.Context) ([]byte, error) {
		return b.Synthesizer.Synthesize(ctx, llm.SpeechRequest{
			Model:  b.TTSModel,
			Text:   text,
			Voice:  voice,
			Speed:  speed,
			Format: "mp3",
		})
	})
	if err != nil {
		telemetry.Error("speech.synthesize_failed", map[string]any{"user_id": userID, "error": err})
		return Audio{}, err
	}

	key := path.Join("audio", util.HashUserKey(userID), "tts_"+uuid.NewString()+".mp3")
	size, err := b.Store.SaveWithKey(ctx, key, "audio/mpeg", bytes.NewReader(data))
	if err != nil {
		return Audio{}, fmt.Errorf("store synthesized audio: %w", err)
	}
	url, err := b.Store.URL(ctx, key)
	if err != nil {
		return Audio{}, fmt.Errorf("audio url: %w", err)
	}

	b.emit(usagelog.Event{
		UserID:   userID,
		Endpoint: usagelog.EndpointSpeech,
		Model:    b.TTSModel,
		CostUSD:  ttsCostPer1KChar * float64(utf8.RuneCountInString(text)) / 1000,
	})
	return Audio{AudioURL: url, StorageKey: key, SizeBytes: size, Voice: voice, Speed: speed}, nil
}

func (b *Bridge) voiceOr(voice string) string {
	if voice != "" {
		return voice
	}
	if b.Voice != "" {
		return b.Voice
	}
	return DefaultVoice
}

func (b *Bridge) emit(ev usagelog.Event) {
	if b.Usage == nil {
		return
	}
	ev.Provider = providerName
	b.Usage.Emit(ev)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
