package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"coach-backend/internal/completion"
	"coach-backend/internal/conversation"
	"coach-backend/internal/extract"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/speech"
	"coach-backend/internal/usage"
	"coach-backend/internal/usagelog"
)

// Extractor turns attachment references into text.
type Extractor interface {
	Extract(ctx context.Context, refs []extract.AttachmentRef) []extract.Result
}

// Completer runs one completion.
type Completer interface {
	Complete(ctx context.Context, in completion.CompleteInput) (completion.Result, error)
}

// Narrator speaks assistant replies.
type Narrator interface {
	Narrate(ctx context.Context, userID, text, voice string) (speech.Audio, error)
}

// Gate admits quota-limited actions.
type Gate interface {
	Admit(ctx context.Context, userID string, kind usage.Kind, fn func(ctx context.Context) error) error
	Get(ctx context.Context, userID string) (usage.Counter, error)
}

// Request is one user message in a session.
type Request struct {
	UserID      string
	Persona     conversation.PersonaContext
	Text        string
	History     []conversation.Turn
	Attachments []extract.AttachmentRef
	// Narrate asks for spoken audio of the reply. Interview replies are always narrated.
	Narrate bool
	Voice   string
}

// Usage is the token accounting returned with a reply.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the assistant's answer.
type Reply struct {
	Message     conversation.Turn `json:"message"`
	Usage       Usage             `json:"usage"`
	Cost        float64           `json:"cost"`
	Model       string            `json:"model"`
	Attachments []extract.Result  `json:"attachments,omitempty"`
	// AudioDegraded is set when narration was requested but failed.
	AudioDegraded bool `json:"audio_degraded,omitempty"`
}

// Session is a newly admitted chat.
type Session struct {
	ID        string                      `json:"id"`
	Kind      usage.Kind                  `json:"kind"`
	Persona   conversation.PersonaContext `json:"-"`
	CreatedAt time.Time                   `json:"created_at"`
	Remaining int                         `json:"remaining"`
}

// Service runs the chat pipeline: extract attachments, build the prompt,
// complete, and optionally narrate.
type Service struct {
	Extractor Extractor
	Completer Completer
	Narrator  Narrator
	Gate      Gate

	Temperature          float64
	InterviewTemperature float64
	now                  func() time.Time
}

// NewService wires a Service with the usual temperatures (0.7 general, 0.8 interview).
func NewService(ex Extractor, c Completer, n Narrator, g Gate) *Service {
	return &Service{
		Extractor:            ex,
		Completer:            c,
		Narrator:             n,
		Gate:                 g,
		Temperature:          0.7,
		InterviewTemperature: 0.8,
		now:                  time.Now,
	}
}

// StartSession admits a new chat of kind against the user's quota. The quota
// is charged only when the session is created.
func (s *Service) StartSession(ctx context.Context, userID string, kind usage.Kind, persona conversation.PersonaContext) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, apperr.Invalid("user", "user is required")
	}
	var sess Session
	err := s.Gate.Admit(ctx, userID, kind, func(ctx context.Context) error {
		sess = Session{ID: uuid.NewString(), Kind: kind, Persona: persona, CreatedAt: s.clock().UTC()}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if c, err := s.Gate.Get(ctx, userID); err == nil {
		sess.Remaining = c.Remaining(kind)
	}
	telemetry.Info("chat.session_started", map[string]any{"user_id": userID, "kind": string(kind), "session_id": sess.ID})
	return sess, nil
}

// Reply answers one user message.
func (s *Service) Reply(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return Reply{}, apperr.Invalid("content", "message content or an attachment is required")
	}
	if !speech.ValidVoice(req.Voice) {
		return Reply{}, apperr.Invalid("voice", "invalid voice %q", req.Voice)
	}

	mode := req.Persona.Mode
	if mode != conversation.ModeInterview {
		mode = conversation.ModeGeneral
	}
	persona := req.Persona
	persona.Mode = mode

	var extracted []extract.Result
	if len(req.Attachments) > 0 && s.Extractor != nil {
		extracted = s.Extractor.Extract(ctx, req.Attachments)
	}

	turns := conversation.AssembleFor(mode, conversation.BuildSystemPrompt(persona), req.History, req.Text, extracted)

	endpoint, temperature := usagelog.EndpointChatCompletion, s.Temperature
	if mode == conversation.ModeInterview {
		endpoint, temperature = usagelog.EndpointInterviewChat, s.InterviewTemperature
	}
	res, err := s.Completer.Complete(ctx, completion.CompleteInput{
		UserID:      req.UserID,
		Endpoint:    endpoint,
		Turns:       turns,
		Temperature: temperature,
	})
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{
		Message: conversation.Turn{
			Role:      conversation.RoleAssistant,
			Text:      res.Text,
			CreatedAt: s.clock().UTC(),
		},
		Usage: Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TotalTokens:      res.TotalTokens(),
		},
		Cost:        res.CostUSD,
		Model:       res.Model,
		Attachments: extracted,
	}

	if (req.Narrate || mode == conversation.ModeInterview) && s.Narrator != nil {
		audio, err := s.Narrator.Narrate(ctx, req.UserID, res.Text, req.Voice)
		if err != nil {
			metrics.IncRoundTripDegraded()
			telemetry.Error("chat.narration_failed", map[string]any{"user_id": req.UserID, "error": err})
			reply.AudioDegraded = true
		} else {
			reply.Message.AudioRef = audio.AudioURL
		}
	}
	return reply, nil
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
