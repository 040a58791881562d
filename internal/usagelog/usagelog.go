// Package usagelog records per-call provider usage (tokens, cost) for billing
// analysis. Recording is best-effort and never blocks a user request.
package usagelog

import (
	"context"
	"fmt"
	"time"

	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
)

// Endpoint names recorded with each event.
const (
	EndpointChatCompletion = "chat_completion"
	EndpointInterviewChat  = "interview_chat"
	EndpointTranscribe     = "whisper_transcribe"
	EndpointSpeech         = "tts"
)

// Event is one provider call.
type Event struct {
	UserID           string
	Provider         string
	Endpoint         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	At               time.Time
}

// TotalTokens sums prompt and completion tokens.
func (e Event) TotalTokens() int {
	return e.PromptTokens + e.CompletionTokens
}

// Logger persists usage events.
type Logger interface {
	Log(ctx context.Context, ev Event) error
}

// TelemetryLogger writes events to the structured log only.
type TelemetryLogger struct{}

func (TelemetryLogger) Log(_ context.Context, ev Event) error {
	telemetry.Info("usage.event", map[string]any{
		"user_id":           ev.UserID,
		"provider":          ev.Provider,
		"endpoint":          ev.Endpoint,
		"model":             ev.Model,
		"prompt_tokens":     ev.PromptTokens,
		"completion_tokens": ev.CompletionTokens,
		"total_tokens":      ev.TotalTokens(),
		"cost_usd":          ev.CostUSD,
	})
	return nil
}

// Async delivers events on a detached goroutine with its own deadline.
// Failures and panics in the wrapped logger are logged and counted, never returned.
type Async struct {
	Logger  Logger
	Timeout time.Duration
	// done is signalled after each delivery attempt; tests use it to wait.
	done chan<- struct{}
}

// NewAsync wraps l. A nil l degrades to TelemetryLogger.
func NewAsync(l Logger) *Async {
	if l == nil {
		l = TelemetryLogger{}
	}
	return &Async{Logger: l, Timeout: 5 * time.Second}
}

// Emit schedules ev and returns immediately.
func (a *Async) Emit(ev Event) {
	if a == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	go a.deliver(ev)
}

func (a *Async) deliver(ev Event) {
	defer func() {
		if a.done != nil {
			a.done <- struct{}{}
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			a.fail(ev, fmt.Errorf("usage logger panic: %v", rec))
		}
	}()

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Logger.Log(ctx, ev); err != nil {
		a.fail(ev, err)
	}
}

func (a *Async) fail(ev Event, err error) {
	metrics.IncUsageLogFailed()
	telemetry.Error("usage.log_failed", map[string]any{
		"user_id":  ev.UserID,
		"endpoint": ev.Endpoint,
		"error":    err,
	})
}
