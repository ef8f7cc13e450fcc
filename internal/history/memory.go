package history

import (
	"context"
	"sync"
	"time"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

type memoryEntry struct {
	turns     []types.Turn
	expiresAt time.Time
}

// memoryStore implements Store using an in-memory map. Expired entries
// are dropped when read and swept periodically on write.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[types.Anchor]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	sweep   *sweepSchedule
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	return &memoryStore{
		entries: make(map[types.Anchor]memoryEntry),
		ttl:     cfg.ttl,
		now:     cfg.now,
		sweep:   newSweepSchedule(cfg.sweepEvery, cfg.now()),
	}
}

// Get implements Store.
func (s *memoryStore) Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error) {
	s.mu.RLock()
	if s.entries == nil {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	e, ok := s.entries[anchor]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[anchor]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, anchor)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return cloneTurns(e.turns), nil
}

// Set implements Store.
func (s *memoryStore) Set(ctx context.Context, anchor types.Anchor, turns []types.Turn, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return ErrClosed
	}
	now := s.now()
	if s.sweep.due(now) {
		s.purgeExpired(now)
	}
	s.entries[anchor] = memoryEntry{
		turns:     cloneTurns(turns),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// purgeExpired drops every entry expired at now. Callers hold mu.
func (s *memoryStore) purgeExpired(now time.Time) {
	n := 0
	for anchor, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, anchor)
			n++
		}
	}
	if n > 0 {
		logging.HistoryDebug("swept %d expired conversations, %d remain", n, len(s.entries))
	}
}

func (s *memoryStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Delete implements Store.
func (s *memoryStore) Delete(ctx context.Context, anchor types.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, anchor)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
