package stores

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record   *Challenge
	deadline time.Time
}

// MemoryChallengeStore is a process-local ChallengeStore. Retention deadlines
// are evaluated against the injected clock.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]memoryEntry
}

func NewMemoryChallengeStore(now func() time.Time) *MemoryChallengeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryChallengeStore{
		now:     now,
		records: make(map[string]memoryEntry),
	}
}

func (s *MemoryChallengeStore) Put(_ context.Context, record *Challenge, ttl time.Duration) error {
	if _, err := encodeChallenge(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = memoryEntry{
		record:   record.Clone(),
		deadline: s.now().Add(normalizeTTL(ttl)),
	}
	return nil
}

func (s *MemoryChallengeStore) Get(_ context.Context, userID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load(userID)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return entry.record.Clone(), nil
}

func (s *MemoryChallengeStore) Swap(_ context.Context, old, next *Challenge, ttl time.Duration) error {
	if old == nil || next == nil || old.UserID != next.UserID {
		return ErrChallengeConflict
	}
	if _, err := encodeChallenge(next); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load(old.UserID)
	if !ok {
		return ErrChallengeNotFound
	}
	if !sameRecord(entry.record, old) {
		return ErrChallengeConflict
	}
	s.records[old.UserID] = memoryEntry{
		record:   next.Clone(),
		deadline: s.now().Add(normalizeTTL(ttl)),
	}
	return nil
}

func (s *MemoryChallengeStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

// load must be called with s.mu held.
func (s *MemoryChallengeStore) load(userID string) (memoryEntry, bool) {
	entry, ok := s.records[userID]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.deadline) {
		delete(s.records, userID)
		return memoryEntry{}, false
	}
	return entry, true
}
