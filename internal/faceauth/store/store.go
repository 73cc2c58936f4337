// Package store persists face profiles, match attempts, verification
// sessions and per-identity risk state. Each concern gets its own interface
// with an in-memory implementation for tests and small deployments and a
// Postgres implementation for production.
package store

import (
	"context"
	"time"

	"facegate/internal/faceauth/models"
	id "facegate/pkg/domain"
)

// FaceProfileStore owns the at-most-one-active-profile-per-identity
// invariant.
type FaceProfileStore interface {
	// Insert stores a new profile. Inserting an active profile for an
	// identity that already has one returns sentinel.ErrConflict.
	Insert(ctx context.Context, profile models.FaceProfile) error
	// GetByID returns the profile or sentinel.ErrNotFound.
	GetByID(ctx context.Context, profileID id.ProfileID) (models.FaceProfile, error)
	// GetActiveByIdentity returns the identity's active profile or
	// sentinel.ErrNotFound.
	GetActiveByIdentity(ctx context.Context, identityID id.IdentityID) (models.FaceProfile, error)
	// Supersede atomically revokes the old profile and inserts the new one
	// as active. No observer ever sees zero or two active profiles for the
	// identity.
	Supersede(ctx context.Context, oldProfileID id.ProfileID, next models.FaceProfile) error
	// ListActive returns every active profile, for index rebuilds.
	ListActive(ctx context.Context) ([]models.FaceProfile, error)
	// TouchLastVerified records a successful verification time.
	TouchLastVerified(ctx context.Context, profileID id.ProfileID, at time.Time) error
}

// MatchAttemptStore is append-only. Attempts are immutable once written and
// deduplicated by id, so a retried write is harmless.
type MatchAttemptStore interface {
	Insert(ctx context.Context, attempt models.MatchAttempt) error
	// ListSince returns attempts created at or after the given time.
	ListSince(ctx context.Context, since time.Time) ([]models.MatchAttempt, error)
	// ListByIdentitySince scopes ListSince to one identity.
	ListByIdentitySince(ctx context.Context, identityID id.IdentityID, since time.Time) ([]models.MatchAttempt, error)
}

// SessionStore holds minted verification sessions.
type SessionStore interface {
	Insert(ctx context.Context, session models.VerificationSession) error
	// GetByToken returns the session or sentinel.ErrNotFound.
	GetByToken(ctx context.Context, token string) (models.VerificationSession, error)
}

// IdentityRisk is the mutable security state kept per identity.
type IdentityRisk struct {
	IdentityID     id.IdentityID
	FailedAttempts int
	RiskScore      float64
	UpdatedAt      time.Time
}

// RiskStore tracks failed-attempt counters and the recomputed risk score.
type RiskStore interface {
	// IncrementFailed bumps the failed-attempt counter and returns the new
	// count.
	IncrementFailed(ctx context.Context, identityID id.IdentityID) (int, error)
	// ResetFailed zeroes the failed-attempt counter.
	ResetFailed(ctx context.Context, identityID id.IdentityID) error
	// SetRiskScore persists a recomputed risk score.
	SetRiskScore(ctx context.Context, identityID id.IdentityID, score float64) error
	// Get returns the identity's risk state, zero-valued when never touched.
	Get(ctx context.Context, identityID id.IdentityID) (IdentityRisk, error)
}
