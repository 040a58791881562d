package audiochat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"coach-backend/internal/chat"
	"coach-backend/internal/conversation"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/speech"
)

type fakeSTT struct {
	text  string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(context.Context, speech.TranscribeInput) (speech.Transcript, error) {
	f.calls++
	return speech.Transcript{Text: f.text}, f.err
}

type fakeChat struct {
	reply chat.Reply
	err   error
	got   chat.Request
	calls int
}

func (f *fakeChat) Reply(_ context.Context, req chat.Request) (chat.Reply, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	r := f.reply
	r.Message.Text = "echo: " + req.Text
	return r, nil
}

type fakeVoice struct {
	err   error
	calls int
	voice string
}

func (f *fakeVoice) Narrate(_ context.Context, _, _ string, voice string) (speech.Audio, error) {
	f.calls++
	f.voice = voice
	if f.err != nil {
		return speech.Audio{}, f.err
	}
	return speech.Audio{AudioURL: "http://localhost/static/audio/a.mp3"}, nil
}

func request() Request {
	return Request{UserID: "u1", Audio: strings.NewReader("abc"), FileName: "a.webm", ContentType: "audio/webm", IncludeText: true}
}

func TestRunHappyPath(t *testing.T) {
	voice := &fakeVoice{}
	c := NewCoordinator(&fakeSTT{text: "hello"}, &fakeChat{}, voice)

	req := request()
	req.Voice = "echo"
	resp, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.UserText != "hello" || resp.AIText != "echo: hello" {
		t.Fatalf("unexpected texts %+v", resp)
	}
	if resp.AudioURL == "" || resp.Message.AudioRef != resp.AudioURL || resp.Degraded {
		t.Fatalf("expected audio, got %+v", resp)
	}
	if voice.voice != "echo" {
		t.Fatalf("voice = %q", voice.voice)
	}
}

func TestRunTTSFailureDegrades(t *testing.T) {
	c := NewCoordinator(&fakeSTT{text: "hello"}, &fakeChat{}, &fakeVoice{err: errors.New("tts down")})

	resp, err := c.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("TTS failure must not fail the round trip: %v", err)
	}
	if resp.AudioURL != "" || !resp.Degraded {
		t.Fatalf("expected degraded response, got %+v", resp)
	}
	if resp.Message.Text != "echo: hello" {
		t.Fatalf("reply text lost: %+v", resp.Message)
	}
}

func TestRunSkipsTTSWhenReplyHasAudio(t *testing.T) {
	voice := &fakeVoice{}
	replier := &fakeChat{reply: chat.Reply{Message: conversation.Turn{AudioRef: "http://x/interview.mp3"}}}
	c := NewCoordinator(&fakeSTT{text: "hi"}, replier, voice)

	resp, err := c.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if voice.calls != 0 || resp.AudioURL != "http://x/interview.mp3" {
		t.Fatalf("expected reply audio reused, calls=%d resp=%+v", voice.calls, resp)
	}
}

func TestRunErrorsPropagate(t *testing.T) {
	providerErr := &apperr.ProviderError{Provider: "openai", Operation: "chat", Err: errors.New("boom")}
	tests := []struct {
		name  string
		stt   *fakeSTT
		chat  *fakeChat
		check func(error) bool
	}{
		{name: "stt failure", stt: &fakeSTT{err: providerErr}, chat: &fakeChat{}, check: apperr.IsProvider},
		{name: "chat failure", stt: &fakeSTT{text: "hi"}, chat: &fakeChat{err: providerErr}, check: apperr.IsProvider},
		{name: "silence", stt: &fakeSTT{text: "  "}, chat: &fakeChat{}, check: apperr.IsValidation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			voice := &fakeVoice{}
			_, err := NewCoordinator(tt.stt, tt.chat, voice).Run(context.Background(), request())
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if voice.calls != 0 {
				t.Fatalf("TTS must not run after a failure")
			}
		})
	}
}

func TestRunRejectsBadVoiceBeforeSTT(t *testing.T) {
	stt := &fakeSTT{text: "hi"}
	req := request()
	req.Voice = "robot"
	_, err := NewCoordinator(stt, &fakeChat{}, &fakeVoice{}).Run(context.Background(), req)
	if !apperr.IsValidation(err) || stt.calls != 0 {
		t.Fatalf("expected validation error before STT, err=%v calls=%d", err, stt.calls)
	}
}

func TestRunInfersInterviewMode(t *testing.T) {
	replier := &fakeChat{}
	req := request()
	req.Persona = conversation.PersonaContext{CompanyName: "Acme"}
	if _, err := NewCoordinator(&fakeSTT{text: "hi"}, replier, &fakeVoice{}).Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if replier.got.Persona.Mode != conversation.ModeInterview {
		t.Fatalf("mode = %q", replier.got.Persona.Mode)
	}
}
