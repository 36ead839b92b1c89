package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps submissions in process memory. It backs the memory store driver and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, sub Submission, now time.Time, ttl time.Duration) (Record, bool, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sub.ID()
	if existing, ok := s.records[id]; ok && !existing.expired(now) {
		if existing.Fingerprint != sub.Fingerprint {
			return Record{}, false, ErrFingerprintMismatch
		}
		return existing, false, nil
	}

	rec := Record{
		Submission: sub,
		State:      StatePending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(withTTL(ttl)),
	}
	s.records[id] = rec
	return rec, true, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, sub Submission, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sub.ID()
	rec, ok := s.records[id]
	if ok && rec.Fingerprint != sub.Fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		rec = Record{Submission: sub, CreatedAt: now}
	}
	rec.State = StateCompleted
	rec.Response = Response{
		Status: resp.Status,
		Header: replayableHeader(resp.Header),
		Body:   append([]byte(nil), resp.Body...),
	}
	rec.ExpiresAt = now.Add(withTTL(ttl))
	s.records[id] = rec
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sub.ID())
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if rec.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of retained records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
