package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. Expired entries are dropped on access.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	record, ok := s.records[id]
	if !ok || !now.Before(record.ExpiresAt) {
		record = Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
		s.records[id] = record
		return StateNew, record, nil
	}
	if record.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return StateCompleted, record, nil
	}
	return StatePending, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	if current, ok := s.records[id]; ok && current.Fingerprint != record.Fingerprint {
		return ErrFingerprintMismatch
	}
	record.Completed = true
	record.Body = append([]byte(nil), record.Body...)
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, docID(key))
	return nil
}
