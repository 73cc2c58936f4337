package replay

import (
	"context"
	"sync"
	"time"
)

// InMemoryUsageStore keeps digest usage history in process memory. Suitable
// for single-instance deployments and tests; distributed setups use the
// Redis store so all instances see the same history.
type InMemoryUsageStore struct {
	mu sync.RWMutex
	// uses maps digest -> sessionID -> use. Keying by session id makes
	// Record an idempotent upsert.
	uses map[string]map[string]Use
}

// NewInMemoryUsageStore creates an empty usage store.
func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{uses: make(map[string]map[string]Use)}
}

// Record upserts a use keyed by session id.
func (s *InMemoryUsageStore) Record(ctx context.Context, use Use) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySession := s.uses[use.Digest]
	if bySession == nil {
		bySession = make(map[string]Use)
		s.uses[use.Digest] = bySession
	}
	bySession[use.SessionID] = use
	return nil
}

// RecentUses returns the uses of digest inside the rolling window.
func (s *InMemoryUsageStore) RecentUses(ctx context.Context, digest string, window time.Duration) ([]Use, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var out []Use
	for _, u := range s.uses[digest] {
		if u.At.After(cutoff) {
			out = append(out, u)
		}
	}
	return out, nil
}

// Identities returns the distinct identities ever seen with digest.
func (s *InMemoryUsageStore) Identities(ctx context.Context, digest string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, u := range s.uses[digest] {
		if u.Identity != "" && !seen[u.Identity] {
			seen[u.Identity] = true
			out = append(out, u.Identity)
		}
	}
	return out, nil
}
