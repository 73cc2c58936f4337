// Package models holds the records owned by the face authentication core.
package models

import (
	"time"

	id "facegate/pkg/domain"
)

// ProfileStatus is the lifecycle state of a face profile.
type ProfileStatus string

const (
	ProfileActive  ProfileStatus = "active"
	ProfileRevoked ProfileStatus = "revoked"
)

// AttemptType classifies what the caller was trying to do.
type AttemptType string

const (
	AttemptEnrollment   AttemptType = "enrollment"
	AttemptVerification AttemptType = "verification"
	AttemptPayment      AttemptType = "payment"
)

// IsValid checks if the attempt type is one of the supported enum values.
func (t AttemptType) IsValid() bool {
	switch t {
	case AttemptEnrollment, AttemptVerification, AttemptPayment:
		return true
	}
	return false
}

// ConfidenceTier discretizes a similarity score into policy bands.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// TierFor maps a similarity score onto a confidence tier using the given
// review and block thresholds.
func TierFor(similarity, review, block float64) ConfidenceTier {
	switch {
	case similarity >= block:
		return TierHigh
	case similarity >= review:
		return TierMedium
	default:
		return TierLow
	}
}

// FaceProfile is the persisted credential for one identity. The embedding is
// stored envelope-encrypted; plaintext vectors only ever live in memory.
// Invariant: at most one active profile per identity. Re-enrollment
// supersedes the old profile, it never overwrites in place.
type FaceProfile struct {
	ID                 id.ProfileID
	IdentityID         id.IdentityID
	EncryptedEmbedding []byte
	KeyID              string
	ModelVersion       string
	QualityScore       *float64
	Status             ProfileStatus
	CreatedAt          time.Time
	LastVerifiedAt     *time.Time
}

// MatchAttempt records one pipeline invocation. Exactly one attempt is
// written per invocation regardless of outcome, and it is immutable once
// written.
type MatchAttempt struct {
	ID               id.AttemptID
	IdentityID       *id.IdentityID
	ProfileID        *id.ProfileID
	SessionID        string
	Type             AttemptType
	SimilarityScore  *float64
	ThresholdUsed    float64
	Success          bool
	FailureReason    string
	LivenessPassed   *bool
	LivenessScore    *float64
	ProcessingTimeMs int64
	CreatedAt        time.Time
}

// VerificationSession is minted only on verification success. The caller
// consumes the short-lived token for subsequent privileged actions.
type VerificationSession struct {
	Token           string
	IdentityID      id.IdentityID
	ProfileID       id.ProfileID
	Status          string
	SimilarityScore float64
	LivenessScore   float64
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// SessionCompleted is the only status a verification session is created with.
const SessionCompleted = "completed"
