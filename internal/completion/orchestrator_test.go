package completion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coach-backend/internal/conversation"
	"coach-backend/internal/llm"
	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/usagelog"
)

type fakeProvider struct {
	resp llm.ChatResponse
	err  error
	wait bool
	got  llm.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.got = req
	if f.wait {
		<-ctx.Done()
		return llm.ChatResponse{}, ctx.Err()
	}
	return f.resp, f.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []usagelog.Event
}

func (r *recordingSink) Emit(ev usagelog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func turns(text string) []conversation.Turn {
	return []conversation.Turn{
		{Role: conversation.RoleSystem, Text: "sys"},
		{Role: conversation.RoleUser, Text: text},
	}
}

func TestCompleteCostAndUsage(t *testing.T) {
	p := &fakeProvider{resp: llm.ChatResponse{Text: "hi", PromptTokens: 1000, CompletionTokens: 500, Model: "gpt-4-0613"}}
	sink := &recordingSink{}
	o := NewOrchestrator(p, nil, sink, "gpt-4")

	res, err := o.Complete(context.Background(), CompleteInput{
		UserID:      "u1",
		Endpoint:    usagelog.EndpointInterviewChat,
		Turns:       turns("question"),
		Temperature: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
	assert.InDelta(t, 0.03+0.03, res.CostUSD, 1e-9)
	assert.Equal(t, 1500, res.TotalTokens())

	assert.Equal(t, "gpt-4", p.got.Model)
	assert.Equal(t, 0.8, p.got.Temperature)
	assert.Equal(t, defaultMaxTokens, p.got.MaxTokens)
	require.Len(t, p.got.Messages, 2)
	assert.Equal(t, "system", p.got.Messages[0].Role)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, usagelog.EndpointInterviewChat, ev.Endpoint)
	assert.Equal(t, 1500, ev.TotalTokens())
	assert.Equal(t, res.CostUSD, ev.CostUSD)
}

func TestCostFormula(t *testing.T) {
	rt := NewRateTable(nil)
	tests := []struct {
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{"gpt-3.5-turbo", 2000, 1000, 2*0.0015 + 0.002},
		{"GPT-4-Turbo", 1000, 1000, 0.01 + 0.03},
		{"gpt-4", 0, 0, 0},
		{"mystery-model", 5000, 5000, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, rt.Cost(tt.model, tt.prompt, tt.completion), 1e-9, tt.model)
	}
}

func TestCompleteProviderErrors(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		sink := &recordingSink{}
		o := NewOrchestrator(&fakeProvider{err: errors.New("openai http status 500: boom")}, nil, sink, "gpt-4")
		_, err := o.Complete(context.Background(), CompleteInput{UserID: "u", Turns: turns("x")})

		var pe *apperr.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.False(t, pe.Timeout)
		assert.Empty(t, sink.events)
	})

	t.Run("timeout", func(t *testing.T) {
		o := NewOrchestrator(&fakeProvider{wait: true}, nil, nil, "gpt-4")
		o.Timeout = 20 * time.Millisecond
		_, err := o.Complete(context.Background(), CompleteInput{UserID: "u", Turns: turns("x")})

		var pe *apperr.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.True(t, pe.Timeout)
	})
}

func TestCompleteValidation(t *testing.T) {
	p := &fakeProvider{}
	o := NewOrchestrator(p, nil, nil, "gpt-4")

	_, err := o.Complete(context.Background(), CompleteInput{})
	assert.True(t, apperr.IsValidation(err))

	_, err = o.Complete(context.Background(), CompleteInput{Turns: turns("   ")})
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, p.got.Model, "provider must not be called")
}

func TestLoadRateTableOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  gpt-4:
    input: 0.05
    output: 0.1
  gpt-4o-mini:
    input: 0.00015
    output: 0.0006
`), 0o600))

	rt, err := LoadRateTable(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.05+0.1, rt.Cost("gpt-4", 1000, 1000), 1e-9)
	assert.InDelta(t, 0.00015, rt.Cost("gpt-4o-mini", 1000, 0), 1e-12)
	assert.InDelta(t, 0.0015, rt.Cost("gpt-3.5-turbo", 1000, 0), 1e-12)
}

func TestRateTableReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models":{"gpt-4":{"input":1,"output":1}}}`), 0o600))

	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	rt := NewRateTable(nil)
	require.NoError(t, rt.reload(v))
	assert.InDelta(t, 2.0, rt.Cost("gpt-4", 1000, 1000), 1e-9)

	require.NoError(t, os.WriteFile(path, []byte(`{"models":{"gpt-4":{"input":2,"output":2}}}`), 0o600))
	require.NoError(t, rt.reload(v))
	assert.InDelta(t, 4.0, rt.Cost("gpt-4", 1000, 1000), 1e-9)
}

func TestLoadRateTableMissingFile(t *testing.T) {
	_, err := LoadRateTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
