package completion

import (
	"context"
	"strings"
	"time"

	"coach-backend/internal/conversation"
	"coach-backend/internal/llm"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/usagelog"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 2000
	providerName     = "openai"
)

// UsageSink receives one event per successful provider call.
type UsageSink interface {
	Emit(ev usagelog.Event)
}

// CompleteInput is one completion request.
type CompleteInput struct {
	UserID      string
	Endpoint    string
	Turns       []conversation.Turn
	Temperature float64
	// MaxTokens and Model override the orchestrator defaults when set.
	MaxTokens int
	Model     string
}

// Result is the reply plus usage and cost.
type Result struct {
	Text             string  `json:"text"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost"`
	Model            string  `json:"model"`
}

// TotalTokens sums prompt and completion tokens.
func (r Result) TotalTokens() int { return r.PromptTokens + r.CompletionTokens }

// Orchestrator sends assembled turns to the chat provider, prices the call,
// and records usage without blocking the caller.
type Orchestrator struct {
	Provider  llm.ChatProvider
	Rates     *RateTable
	Usage     UsageSink
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewOrchestrator builds an Orchestrator with default limits.
func NewOrchestrator(provider llm.ChatProvider, rates *RateTable, usage UsageSink, model string) *Orchestrator {
	if rates == nil {
		rates = NewRateTable(nil)
	}
	return &Orchestrator{
		Provider:  provider,
		Rates:     rates,
		Usage:     usage,
		Model:     model,
		MaxTokens: defaultMaxTokens,
		Timeout:   defaultTimeout,
	}
}

// Complete runs one completion. Provider failures and timeouts come back as
// *apperr.ProviderError; malformed input as *apperr.ValidationError.
func (o *Orchestrator) Complete(ctx context.Context, in CompleteInput) (Result, error) {
	if len(in.Turns) == 0 {
		return Result{}, apperr.Invalid("messages", "at least one message is required")
	}
	last := in.Turns[len(in.Turns)-1]
	if last.Role != conversation.RoleUser || strings.TrimSpace(last.Text) == "" {
		return Result{}, apperr.Invalid("messages", "last message must be non-empty user content")
	}

	model := firstNonEmpty(in.Model, o.Model)
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.MaxTokens
	}
	msgs := make([]llm.Message, 0, len(in.Turns))
	for _, t := range in.Turns {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Text})
	}

	resp, err := llm.Call(ctx, providerName, "chat", o.Timeout, func(ctx context.Context) (llm.ChatResponse, error) {
		return o.Provider.Chat(ctx, llm.ChatRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: in.Temperature,
			MaxTokens:   maxTokens,
		})
	})
	if err != nil {
		telemetry.Error("completion.failed", map[string]any{
			"user_id":  in.UserID,
			"endpoint": in.Endpoint,
			"model":    model,
			"error":    err,
		})
		return Result{}, err
	}

	// Price against the configured model name; providers often echo a dated variant.
	res := Result{
		Text:             resp.Text,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CostUSD:          o.Rates.Cost(model, resp.PromptTokens, resp.CompletionTokens),
		Model:            model,
	}

	if o.Usage != nil {
		o.Usage.Emit(usagelog.Event{
			UserID:           in.UserID,
			Provider:         providerName,
			Endpoint:         firstNonEmpty(in.Endpoint, usagelog.EndpointChatCompletion),
			Model:            model,
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			CostUSD:          res.CostUSD,
		})
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
