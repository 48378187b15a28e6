package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// MemoryStore keeps cooldown deadlines in a bounded, expiring LRU. It only
// lives as long as the process.
type MemoryStore struct {
	mu   sync.Mutex
	data *expirable.LRU[string, time.Time]
	now  func() time.Time
}

var _ ports.CooldownStore = (*MemoryStore)(nil)

// NewMemoryStore sizes the cache; maxTTL bounds how long an entry is kept.
func NewMemoryStore(capacity int, maxTTL time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &MemoryStore{
		data: expirable.NewLRU[string, time.Time](capacity, nil, maxTTL),
		now:  time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Claim records a deadline for the key unless an unexpired one exists.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.data.Peek(key); ok && now.Before(until) {
		return false, nil
	}
	s.data.Add(key, now.Add(ttl))
	return true, nil
}
