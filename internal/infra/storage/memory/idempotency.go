package memory

import (
	"context"
	"sync"
	"time"

	"rentguru/internal/app/middleware"
)

// IdempotencyStore mirrors the Mongo store: the first outcome per key wins and
// records expire after TTL. Expired records are dropped lazily on Save.
type IdempotencyStore struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	records map[string]middleware.IdempotencyRecord
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{TTL: ttl, records: make(map[string]middleware.IdempotencyRecord)}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || s.expired(rec) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, old := range s.records {
		if s.expired(old) {
			delete(s.records, key)
		}
	}
	if _, taken := s.records[rec.Key]; !taken {
		s.records[rec.Key] = rec
	}
	return nil
}

func (s *IdempotencyStore) expired(rec middleware.IdempotencyRecord) bool {
	if s.TTL <= 0 {
		return false
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().Sub(rec.OccurredAt) > s.TTL
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
