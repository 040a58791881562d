package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGStore keeps counters in usage_counters and resolves limits from the
// user's active subscription, falling back to the free limits.
type PGStore struct {
	DB   *sql.DB
	Free Limits
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB, free Limits) *PGStore {
	return &PGStore{DB: db, Free: free}
}

const effectiveLimitsSQL = `
SELECT COALESCE(t.name, 'free') AS tier,
       COALESCE(t.normal_chat_limit, $2) AS normal_limit,
       COALESCE(t.interview_chat_limit, $3) AS interview_limit
FROM (SELECT $1::text AS user_id) u
LEFT JOIN user_subscriptions s ON s.user_id = u.user_id AND s.status = 'active'
LEFT JOIN subscription_tiers t ON t.name = s.tier`

const ensureCounterSQL = `
INSERT INTO usage_counters (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING`

func (s *PGStore) Get(ctx context.Context, userID string) (Counter, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return Counter{}, err
	}
	row := s.DB.QueryRowContext(ctx, `
SELECT c.normal_used, c.interview_used, c.period_start, lim.tier, lim.normal_limit, lim.interview_limit
FROM usage_counters c, (`+effectiveLimitsSQL+`) lim
WHERE c.user_id = $1`, userID, s.Free.Normal, s.Free.Interview)
	c := Counter{UserID: userID}
	if err := row.Scan(&c.NormalUsed, &c.InterviewUsed, &c.PeriodStart, &c.Tier, &c.NormalLimit, &c.InterviewLimit); err != nil {
		return Counter{}, fmt.Errorf("select usage: %w", err)
	}
	return c, nil
}

// Increment is one conditional UPDATE; the row lock plus the re-checked
// WHERE clause keeps concurrent commits from overshooting the limit.
func (s *PGStore) Increment(ctx context.Context, userID string, kind Kind) (Counter, error) {
	col, limitCol, err := columnsFor(kind)
	if err != nil {
		return Counter{}, err
	}
	if err := s.ensure(ctx, userID); err != nil {
		return Counter{}, err
	}
	query := fmt.Sprintf(`
UPDATE usage_counters c
SET %[1]s = c.%[1]s + 1
FROM (%[3]s) lim
WHERE c.user_id = $1 AND c.%[1]s < lim.%[2]s
RETURNING c.normal_used, c.interview_used, c.period_start, lim.tier, lim.normal_limit, lim.interview_limit`,
		col, limitCol, effectiveLimitsSQL)

	c := Counter{UserID: userID}
	row := s.DB.QueryRowContext(ctx, query, userID, s.Free.Normal, s.Free.Interview)
	if err := row.Scan(&c.NormalUsed, &c.InterviewUsed, &c.PeriodStart, &c.Tier, &c.NormalLimit, &c.InterviewLimit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Counter{}, ErrQuotaExceeded
		}
		return Counter{}, fmt.Errorf("increment usage: %w", err)
	}
	return c, nil
}

func (s *PGStore) Reset(ctx context.Context, userID string) (Counter, error) {
	now := time.Now().UTC()
	if _, err := s.DB.ExecContext(ctx, `
INSERT INTO usage_counters (user_id, normal_used, interview_used, period_start)
VALUES ($1, 0, 0, $2)
ON CONFLICT (user_id) DO UPDATE SET normal_used = 0, interview_used = 0, period_start = EXCLUDED.period_start`,
		userID, now); err != nil {
		return Counter{}, fmt.Errorf("reset usage: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *PGStore) ResetAll(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE usage_counters SET normal_used = 0, interview_used = 0, period_start = $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset all usage: %w", err)
	}
	return res.RowsAffected()
}

func (s *PGStore) ensure(ctx context.Context, userID string) error {
	if _, err := s.DB.ExecContext(ctx, ensureCounterSQL, userID); err != nil {
		return fmt.Errorf("ensure usage row: %w", err)
	}
	return nil
}

func columnsFor(kind Kind) (string, string, error) {
	switch kind {
	case KindNormal:
		return "normal_used", "normal_limit", nil
	case KindInterview:
		return "interview_used", "interview_limit", nil
	default:
		return "", "", fmt.Errorf("unknown chat kind %q", kind)
	}
}

var _ store = (*PGStore)(nil)
