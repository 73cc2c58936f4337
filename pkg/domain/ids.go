// Package domain holds typed identifiers shared across the face
// authentication core. Wrapping uuid.UUID in distinct types prevents an
// identity id from being passed where a profile id is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "facegate/pkg/domain-errors"
)

// IdentityID references an externally owned principal. This core never mints
// identities, only resolves the ids handed to it.
type IdentityID uuid.UUID

// ProfileID identifies a stored face profile.
type ProfileID uuid.UUID

// AttemptID identifies a single pipeline invocation's match attempt record.
type AttemptID uuid.UUID

// NewProfileID returns a fresh random profile id.
func NewProfileID() ProfileID {
	return ProfileID(uuid.New())
}

// NewAttemptID returns a fresh random attempt id.
func NewAttemptID() AttemptID {
	return AttemptID(uuid.New())
}

// ParseIdentityID validates and converts a string into an IdentityID.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return IdentityID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid identity id")
	}
	return IdentityID(u), nil
}

// ParseProfileID validates and converts a string into a ProfileID.
func ParseProfileID(s string) (ProfileID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProfileID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid profile id")
	}
	return ProfileID(u), nil
}

func (id IdentityID) String() string { return uuid.UUID(id).String() }
func (id IdentityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ProfileID) String() string { return uuid.UUID(id).String() }
func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AttemptID) String() string { return uuid.UUID(id).String() }
func (id AttemptID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
