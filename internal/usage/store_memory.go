package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	free  Limits
	data  map[string]Counter
	tiers map[string]string
}

func newMemoryStore(free Limits) *memoryStore {
	return &memoryStore{
		free:  free,
		data:  make(map[string]Counter),
		tiers: make(map[string]string),
	}
}

// SetTier assigns a tier in the in-memory store; used by dev setups and tests.
func (s *Service) SetTier(userID, tier string) bool {
	m, ok := s.store.(*memoryStore)
	if !ok {
		return false
	}
	m.mu.Lock()
	m.tiers[userID] = tier
	m.mu.Unlock()
	return true
}

func (s *memoryStore) limitsFor(userID string) (string, Limits) {
	if s.tiers[userID] == TierPremium {
		return TierPremium, PremiumLimits()
	}
	return TierFree, s.free
}

// load must be called with mu held.
func (s *memoryStore) load(userID string) Counter {
	c, ok := s.data[userID]
	if !ok {
		c = Counter{UserID: userID, PeriodStart: time.Now().UTC()}
	}
	tier, limits := s.limitsFor(userID)
	c.Tier = tier
	c.NormalLimit = limits.Normal
	c.InterviewLimit = limits.Interview
	return c
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userID), nil
}

func (s *memoryStore) Increment(ctx context.Context, userID string, kind Kind) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.load(userID)
	if c.Used(kind) >= c.Limit(kind) {
		return Counter{}, ErrQuotaExceeded
	}
	if kind == KindInterview {
		c.InterviewUsed++
	} else {
		c.NormalUsed++
	}
	s.data[userID] = c
	return c, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.load(userID)
	c.NormalUsed = 0
	c.InterviewUsed = 0
	c.PeriodStart = time.Now().UTC()
	s.data[userID] = c
	return c, nil
}

func (s *memoryStore) ResetAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for id, c := range s.data {
		c.NormalUsed = 0
		c.InterviewUsed = 0
		c.PeriodStart = now
		s.data[id] = c
		n++
	}
	return n, nil
}
