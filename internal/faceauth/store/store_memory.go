package store

import (
	"context"
	"sort"
	"sync"
	"time"

	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"

	"facegate/internal/faceauth/models"
)

// InMemoryFaceProfileStore keeps profiles in a map guarded by a RWMutex.
type InMemoryFaceProfileStore struct {
	mu       sync.RWMutex
	profiles map[id.ProfileID]models.FaceProfile
}

func NewInMemoryFaceProfileStore() *InMemoryFaceProfileStore {
	return &InMemoryFaceProfileStore{profiles: make(map[id.ProfileID]models.FaceProfile)}
}

func (s *InMemoryFaceProfileStore) Insert(ctx context.Context, profile models.FaceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return sentinel.ErrConflict
	}
	if profile.Status == models.ProfileActive {
		for _, p := range s.profiles {
			if p.IdentityID == profile.IdentityID && p.Status == models.ProfileActive {
				return sentinel.ErrConflict
			}
		}
	}
	s.profiles[profile.ID] = profile
	return nil
}

func (s *InMemoryFaceProfileStore) GetByID(ctx context.Context, profileID id.ProfileID) (models.FaceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return models.FaceProfile{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *InMemoryFaceProfileStore) GetActiveByIdentity(ctx context.Context, identityID id.IdentityID) (models.FaceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.IdentityID == identityID && p.Status == models.ProfileActive {
			return p, nil
		}
	}
	return models.FaceProfile{}, sentinel.ErrNotFound
}

func (s *InMemoryFaceProfileStore) Supersede(ctx context.Context, oldProfileID id.ProfileID, next models.FaceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.profiles[oldProfileID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if old.Status != models.ProfileActive {
		return sentinel.ErrInvalidState
	}
	if _, exists := s.profiles[next.ID]; exists {
		return sentinel.ErrConflict
	}

	old.Status = models.ProfileRevoked
	next.Status = models.ProfileActive
	s.profiles[oldProfileID] = old
	s.profiles[next.ID] = next
	return nil
}

func (s *InMemoryFaceProfileStore) ListActive(ctx context.Context) ([]models.FaceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FaceProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.Status == models.ProfileActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryFaceProfileStore) TouchLastVerified(ctx context.Context, profileID id.ProfileID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.LastVerifiedAt = &at
	s.profiles[profileID] = p
	return nil
}

// InMemoryMatchAttemptStore keeps attempts in insertion-time order.
type InMemoryMatchAttemptStore struct {
	mu       sync.RWMutex
	attempts map[id.AttemptID]models.MatchAttempt
}

func NewInMemoryMatchAttemptStore() *InMemoryMatchAttemptStore {
	return &InMemoryMatchAttemptStore{attempts: make(map[id.AttemptID]models.MatchAttempt)}
}

func (s *InMemoryMatchAttemptStore) Insert(ctx context.Context, attempt models.MatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Dedup by id keeps retried writes idempotent.
	if _, exists := s.attempts[attempt.ID]; exists {
		return nil
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *InMemoryMatchAttemptStore) ListSince(ctx context.Context, since time.Time) ([]models.MatchAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MatchAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *InMemoryMatchAttemptStore) ListByIdentitySince(ctx context.Context, identityID id.IdentityID, since time.Time) ([]models.MatchAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MatchAttempt, 0)
	for _, a := range s.attempts {
		if a.IdentityID == nil || *a.IdentityID != identityID {
			continue
		}
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sortAttempts(out)
	return out, nil
}

func sortAttempts(attempts []models.MatchAttempt) {
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].CreatedAt.Before(attempts[j].CreatedAt)
	})
}

// InMemorySessionStore keys sessions by token.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.VerificationSession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]models.VerificationSession)}
}

func (s *InMemorySessionStore) Insert(ctx context.Context, session models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Token]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[session.Token] = session
	return nil
}

func (s *InMemorySessionStore) GetByToken(ctx context.Context, token string) (models.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return models.VerificationSession{}, sentinel.ErrNotFound
	}
	return sess, nil
}

// InMemoryRiskStore keeps per-identity risk state.
type InMemoryRiskStore struct {
	mu    sync.Mutex
	state map[id.IdentityID]IdentityRisk
}

func NewInMemoryRiskStore() *InMemoryRiskStore {
	return &InMemoryRiskStore{state: make(map[id.IdentityID]IdentityRisk)}
}

func (s *InMemoryRiskStore) IncrementFailed(ctx context.Context, identityID id.IdentityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.state[identityID]
	r.IdentityID = identityID
	r.FailedAttempts++
	r.UpdatedAt = time.Now().UTC()
	s.state[identityID] = r
	return r.FailedAttempts, nil
}

func (s *InMemoryRiskStore) ResetFailed(ctx context.Context, identityID id.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.state[identityID]
	r.IdentityID = identityID
	r.FailedAttempts = 0
	r.UpdatedAt = time.Now().UTC()
	s.state[identityID] = r
	return nil
}

func (s *InMemoryRiskStore) SetRiskScore(ctx context.Context, identityID id.IdentityID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.state[identityID]
	r.IdentityID = identityID
	r.RiskScore = score
	r.UpdatedAt = time.Now().UTC()
	s.state[identityID] = r
	return nil
}

func (s *InMemoryRiskStore) Get(ctx context.Context, identityID id.IdentityID) (IdentityRisk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state[identityID]
	if !ok {
		return IdentityRisk{IdentityID: identityID}, nil
	}
	return r, nil
}
