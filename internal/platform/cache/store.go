package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pitchlens/scoutcore/internal/platform/resilience"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is a TTL cache with an optional capacity bound. When full, expired
// entries are pruned first, then the oldest insertion is evicted. Loads for
// the same key are deduplicated through a single flight.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string
	ttl     time.Duration
	limit   int
	flight  resilience.SingleFlight
}

// NewStore builds an unbounded store. ttl <= 0 disables expiry.
func NewStore(ttl time.Duration) *Store {
	return NewStoreWithLimit(ttl, 0)
}

// NewStoreWithLimit bounds the entry count. limit <= 0 means unbounded.
func NewStoreWithLimit(ttl time.Duration, limit int) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		limit:   limit,
	}
}

func (s *Store) Get(_ context.Context, key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && !e.expiresAt.After(now) {
		s.remove(key)
		return nil, false
	}

	return e.value, true
}

func (s *Store) Set(_ context.Context, key string, value any) {
	if key == "" {
		return
	}

	now := time.Now()
	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		s.remove(key)
	}
	if s.limit > 0 && len(s.entries) >= s.limit {
		s.pruneExpired(now)
	}
	for s.limit > 0 && len(s.entries) >= s.limit && len(s.order) > 0 {
		s.remove(s.order[0])
	}

	s.entries[key] = entry{value: value, expiresAt: expiresAt}
	s.order = append(s.order, key)
}

func (s *Store) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (any, error)) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// remove expects the mutex to be held.
func (s *Store) remove(key string) {
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// pruneExpired expects the mutex to be held.
func (s *Store) pruneExpired(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range append([]string(nil), s.order...) {
		if e, ok := s.entries[key]; ok && !e.expiresAt.After(now) {
			s.remove(key)
		}
	}
}
