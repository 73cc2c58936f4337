package service

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"

	"facegate/internal/faceauth/models"
)

// mintSession creates and persists a verification session with a short-lived
// signed token. The jti claim makes every token unique even for back-to-back
// verifications of the same identity.
func (s *Service) mintSession(ctx context.Context, identityID id.IdentityID, profileID id.ProfileID, similarity, livenessScore float64) (models.VerificationSession, error) {
	now := s.now()
	expiresAt := now.Add(s.session.TTL)

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"sub": identityID.String(),
		"iss": s.session.Issuer,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.session.SigningKey))
	if err != nil {
		return models.VerificationSession{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}

	session := models.VerificationSession{
		Token:           token,
		IdentityID:      identityID,
		ProfileID:       profileID,
		Status:          models.SessionCompleted,
		SimilarityScore: similarity,
		LivenessScore:   livenessScore,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
	}
	if err := s.deps.Sessions.Insert(ctx, session); err != nil {
		return models.VerificationSession{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "store verification session")
	}
	return session, nil
}
