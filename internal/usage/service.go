package usage

import (
	"context"
	"errors"
	"fmt"

	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
)

type store interface {
	Get(ctx context.Context, userID string) (Counter, error)
	// Increment must be a single atomic conditional increment: it fails with
	// ErrQuotaExceeded instead of pushing used past limit.
	Increment(ctx context.Context, userID string, kind Kind) (Counter, error)
	Reset(ctx context.Context, userID string) (Counter, error)
	ResetAll(ctx context.Context) (int64, error)
}

// Service is the admission gate for chat-creating operations.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService(free Limits) *Service {
	return &Service{store: newMemoryStore(free)}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore *PGStore) *Service {
	return &Service{store: pgStore}
}

// Get returns the current usage for a user, applying free defaults if absent.
func (s *Service) Get(ctx context.Context, userID string) (Counter, error) {
	return s.store.Get(ctx, userID)
}

// CanProceed reports whether the user currently has quota left for kind.
// It is advisory; Commit is the authoritative check.
func (s *Service) CanProceed(ctx context.Context, userID string, kind Kind) (bool, error) {
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("usage get user=%s: %w", userID, err)
	}
	return c.Used(kind) < c.Limit(kind), nil
}

// Commit consumes one unit of kind. It returns ErrQuotaExceeded if a
// concurrent request took the last unit first.
func (s *Service) Commit(ctx context.Context, userID string, kind Kind) (Counter, error) {
	c, err := s.store.Increment(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.IncQuotaRejected()
			return Counter{}, err
		}
		return Counter{}, fmt.Errorf("usage commit user=%s kind=%s: %w", userID, kind, err)
	}
	return c, nil
}

// Admit runs fn only if the user has quota for kind and charges the quota
// only after fn succeeds.
func (s *Service) Admit(ctx context.Context, userID string, kind Kind, fn func(ctx context.Context) error) error {
	ok, err := s.CanProceed(ctx, userID, kind)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncQuotaRejected()
		return ErrQuotaExceeded
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if _, err := s.Commit(ctx, userID, kind); err != nil {
		telemetry.Warn("usage.commit_after_success_failed", map[string]any{
			"user_id": userID,
			"kind":    string(kind),
			"error":   err,
		})
		return err
	}
	return nil
}

// Reset zeroes both counters and restarts the period.
func (s *Service) Reset(ctx context.Context, userID string) (Counter, error) {
	return s.store.Reset(ctx, userID)
}

// ResetAll zeroes every user's counters and reports how many rows changed.
func (s *Service) ResetAll(ctx context.Context) (int64, error) {
	return s.store.ResetAll(ctx)
}
