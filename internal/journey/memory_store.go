package journey

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemoryStore keeps attempts in process memory. Expired attempts stay
// readable for ExpiredRetention, then are hidden and removed by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
	now      func() time.Time
}

// NewMemoryStore creates an in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]*Attempt),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[a.ID]; exists {
		return errors.Newf("journey: attempt %s already exists", a.ID)
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Attempt, error) {
	s.mu.RLock()
	a, ok := s.attempts[id]
	s.mu.RUnlock()

	if !ok || s.purgeable(a) {
		return nil, ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.ID]; !ok {
		return ErrAttemptNotFound
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

// Sweep removes attempts past their retention and returns how many were
// removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, a := range s.attempts {
		if s.purgeable(a) {
			delete(s.attempts, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) purgeable(a *Attempt) bool {
	return !a.ExpiresAt.IsZero() && s.now().After(a.ExpiresAt.Add(ExpiredRetention))
}
