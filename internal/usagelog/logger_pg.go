package usagelog

import (
	"context"
	"database/sql"
	"fmt"
)

// PGLogger inserts events into api_usage_logs.
type PGLogger struct {
	DB *sql.DB
}

func (l *PGLogger) Log(ctx context.Context, ev Event) error {
	_, err := l.DB.ExecContext(ctx, `
INSERT INTO api_usage_logs (user_id, provider, endpoint, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.UserID, ev.Provider, ev.Endpoint, ev.Model,
		ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens(), ev.CostUSD, ev.At)
	if err != nil {
		return fmt.Errorf("insert api_usage_logs: %w", err)
	}
	return nil
}

var _ Logger = (*PGLogger)(nil)
