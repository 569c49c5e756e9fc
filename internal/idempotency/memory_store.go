package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in a process-local map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	record.Payload = append([]byte(nil), record.Payload...)
	return &record, nil
}

func (s *MemoryStore) Put(ctx context.Context, record Record, ttl time.Duration) error {
	_ = ctx
	_ = ttl

	record.Payload = append([]byte(nil), record.Payload...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = record
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, record := range s.records {
		if record.RecordedAt.Before(cutoff) {
			delete(s.records, key)
			evicted++
		}
	}
	return evicted, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
