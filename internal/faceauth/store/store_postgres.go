package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"

	"facegate/internal/faceauth/models"
)

// PostgresFaceProfileStore persists face profiles in PostgreSQL. The
// one-active-profile-per-identity invariant is backed by a partial unique
// index on (identity_id) WHERE status = 'active'.
type PostgresFaceProfileStore struct {
	db *sql.DB
}

func NewPostgresFaceProfileStore(db *sql.DB) *PostgresFaceProfileStore {
	return &PostgresFaceProfileStore{db: db}
}

func (s *PostgresFaceProfileStore) Insert(ctx context.Context, profile models.FaceProfile) error {
	query := `
		INSERT INTO face_profiles
			(id, identity_id, encrypted_embedding, key_id, model_version, quality_score, status, created_at, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(profile.ID),
		uuid.UUID(profile.IdentityID),
		profile.EncryptedEmbedding,
		profile.KeyID,
		profile.ModelVersion,
		profile.QualityScore,
		string(profile.Status),
		profile.CreatedAt,
		profile.LastVerifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert face profile: %w", err)
	}
	return nil
}

func (s *PostgresFaceProfileStore) GetByID(ctx context.Context, profileID id.ProfileID) (models.FaceProfile, error) {
	query := `
		SELECT id, identity_id, encrypted_embedding, key_id, model_version, quality_score, status, created_at, last_verified_at
		FROM face_profiles
		WHERE id = $1
	`
	return scanProfile(s.db.QueryRowContext(ctx, query, uuid.UUID(profileID)))
}

func (s *PostgresFaceProfileStore) GetActiveByIdentity(ctx context.Context, identityID id.IdentityID) (models.FaceProfile, error) {
	query := `
		SELECT id, identity_id, encrypted_embedding, key_id, model_version, quality_score, status, created_at, last_verified_at
		FROM face_profiles
		WHERE identity_id = $1 AND status = 'active'
	`
	return scanProfile(s.db.QueryRowContext(ctx, query, uuid.UUID(identityID)))
}

// Supersede runs revoke-old and insert-new in one transaction so no reader
// ever observes the identity with zero or two active profiles.
func (s *PostgresFaceProfileStore) Supersede(ctx context.Context, oldProfileID id.ProfileID, next models.FaceProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin supersede: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE face_profiles SET status = 'revoked' WHERE id = $1 AND status = 'active'`,
		uuid.UUID(oldProfileID),
	)
	if err != nil {
		return fmt.Errorf("revoke superseded profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke superseded profile: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO face_profiles
			(id, identity_id, encrypted_embedding, key_id, model_version, quality_score, status, created_at, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8)
	`,
		uuid.UUID(next.ID),
		uuid.UUID(next.IdentityID),
		next.EncryptedEmbedding,
		next.KeyID,
		next.ModelVersion,
		next.QualityScore,
		next.CreatedAt,
		next.LastVerifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert superseding profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit supersede: %w", err)
	}
	return nil
}

func (s *PostgresFaceProfileStore) ListActive(ctx context.Context) ([]models.FaceProfile, error) {
	query := `
		SELECT id, identity_id, encrypted_embedding, key_id, model_version, quality_score, status, created_at, last_verified_at
		FROM face_profiles
		WHERE status = 'active'
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active profiles: %w", err)
	}
	defer rows.Close()

	var out []models.FaceProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active profiles: %w", err)
	}
	return out, nil
}

func (s *PostgresFaceProfileStore) TouchLastVerified(ctx context.Context, profileID id.ProfileID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE face_profiles SET last_verified_at = $2 WHERE id = $1`,
		uuid.UUID(profileID), at,
	)
	if err != nil {
		return fmt.Errorf("touch last verified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last verified: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.FaceProfile, error) {
	var (
		p              models.FaceProfile
		profileID      uuid.UUID
		identityID     uuid.UUID
		status         string
		lastVerifiedAt sql.NullTime
	)
	err := row.Scan(
		&profileID,
		&identityID,
		&p.EncryptedEmbedding,
		&p.KeyID,
		&p.ModelVersion,
		&p.QualityScore,
		&status,
		&p.CreatedAt,
		&lastVerifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FaceProfile{}, sentinel.ErrNotFound
		}
		return models.FaceProfile{}, fmt.Errorf("scan face profile: %w", err)
	}
	p.ID = id.ProfileID(profileID)
	p.IdentityID = id.IdentityID(identityID)
	p.Status = models.ProfileStatus(status)
	if lastVerifiedAt.Valid {
		t := lastVerifiedAt.Time
		p.LastVerifiedAt = &t
	}
	return p, nil
}

// PostgresMatchAttemptStore persists match attempts.
type PostgresMatchAttemptStore struct {
	db *sql.DB
}

func NewPostgresMatchAttemptStore(db *sql.DB) *PostgresMatchAttemptStore {
	return &PostgresMatchAttemptStore{db: db}
}

func (s *PostgresMatchAttemptStore) Insert(ctx context.Context, attempt models.MatchAttempt) error {
	query := `
		INSERT INTO match_attempts
			(id, identity_id, profile_id, session_id, attempt_type, similarity_score, threshold_used,
			 success, failure_reason, liveness_passed, liveness_score, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	var identityID, profileID any
	if attempt.IdentityID != nil {
		identityID = uuid.UUID(*attempt.IdentityID)
	}
	if attempt.ProfileID != nil {
		profileID = uuid.UUID(*attempt.ProfileID)
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(attempt.ID),
		identityID,
		profileID,
		attempt.SessionID,
		string(attempt.Type),
		attempt.SimilarityScore,
		attempt.ThresholdUsed,
		attempt.Success,
		attempt.FailureReason,
		attempt.LivenessPassed,
		attempt.LivenessScore,
		attempt.ProcessingTimeMs,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match attempt: %w", err)
	}
	return nil
}

func (s *PostgresMatchAttemptStore) ListSince(ctx context.Context, since time.Time) ([]models.MatchAttempt, error) {
	query := `
		SELECT id, identity_id, profile_id, session_id, attempt_type, similarity_score, threshold_used,
		       success, failure_reason, liveness_passed, liveness_score, processing_time_ms, created_at
		FROM match_attempts
		WHERE created_at >= $1
		ORDER BY created_at
	`
	return s.listAttempts(ctx, query, since)
}

func (s *PostgresMatchAttemptStore) ListByIdentitySince(ctx context.Context, identityID id.IdentityID, since time.Time) ([]models.MatchAttempt, error) {
	query := `
		SELECT id, identity_id, profile_id, session_id, attempt_type, similarity_score, threshold_used,
		       success, failure_reason, liveness_passed, liveness_score, processing_time_ms, created_at
		FROM match_attempts
		WHERE identity_id = $1 AND created_at >= $2
		ORDER BY created_at
	`
	return s.listAttempts(ctx, query, uuid.UUID(identityID), since)
}

func (s *PostgresMatchAttemptStore) listAttempts(ctx context.Context, query string, args ...any) ([]models.MatchAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list match attempts: %w", err)
	}
	defer rows.Close()

	var out []models.MatchAttempt
	for rows.Next() {
		var (
			a          models.MatchAttempt
			attemptID  uuid.UUID
			identityID uuid.NullUUID
			profileID  uuid.NullUUID
			attempt    string
		)
		err := rows.Scan(
			&attemptID,
			&identityID,
			&profileID,
			&a.SessionID,
			&attempt,
			&a.SimilarityScore,
			&a.ThresholdUsed,
			&a.Success,
			&a.FailureReason,
			&a.LivenessPassed,
			&a.LivenessScore,
			&a.ProcessingTimeMs,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan match attempt: %w", err)
		}
		a.ID = id.AttemptID(attemptID)
		a.Type = models.AttemptType(attempt)
		if identityID.Valid {
			iid := id.IdentityID(identityID.UUID)
			a.IdentityID = &iid
		}
		if profileID.Valid {
			pid := id.ProfileID(profileID.UUID)
			a.ProfileID = &pid
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list match attempts: %w", err)
	}
	return out, nil
}

// PostgresSessionStore persists verification sessions.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

func (s *PostgresSessionStore) Insert(ctx context.Context, session models.VerificationSession) error {
	query := `
		INSERT INTO verification_sessions
			(token, identity_id, profile_id, status, similarity_score, liveness_score, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.Token,
		uuid.UUID(session.IdentityID),
		uuid.UUID(session.ProfileID),
		session.Status,
		session.SimilarityScore,
		session.LivenessScore,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) GetByToken(ctx context.Context, token string) (models.VerificationSession, error) {
	query := `
		SELECT token, identity_id, profile_id, status, similarity_score, liveness_score, created_at, expires_at
		FROM verification_sessions
		WHERE token = $1
	`
	var (
		sess       models.VerificationSession
		identityID uuid.UUID
		profileID  uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&sess.Token,
		&identityID,
		&profileID,
		&sess.Status,
		&sess.SimilarityScore,
		&sess.LivenessScore,
		&sess.CreatedAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.VerificationSession{}, sentinel.ErrNotFound
		}
		return models.VerificationSession{}, fmt.Errorf("get verification session: %w", err)
	}
	sess.IdentityID = id.IdentityID(identityID)
	sess.ProfileID = id.ProfileID(profileID)
	return sess, nil
}

// PostgresRiskStore persists per-identity risk state with atomic upserts so
// concurrent pipeline invocations never lose counter updates.
type PostgresRiskStore struct {
	db *sql.DB
}

func NewPostgresRiskStore(db *sql.DB) *PostgresRiskStore {
	return &PostgresRiskStore{db: db}
}

func (s *PostgresRiskStore) IncrementFailed(ctx context.Context, identityID id.IdentityID) (int, error) {
	query := `
		INSERT INTO identity_risk (identity_id, failed_attempts, risk_score, updated_at)
		VALUES ($1, 1, 0, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			failed_attempts = identity_risk.failed_attempts + 1,
			updated_at = NOW()
		RETURNING failed_attempts
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, uuid.UUID(identityID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresRiskStore) ResetFailed(ctx context.Context, identityID id.IdentityID) error {
	query := `
		INSERT INTO identity_risk (identity_id, failed_attempts, risk_score, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			failed_attempts = 0,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(identityID)); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

func (s *PostgresRiskStore) SetRiskScore(ctx context.Context, identityID id.IdentityID, score float64) error {
	query := `
		INSERT INTO identity_risk (identity_id, failed_attempts, risk_score, updated_at)
		VALUES ($1, 0, $2, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(identityID), score); err != nil {
		return fmt.Errorf("set risk score: %w", err)
	}
	return nil
}

func (s *PostgresRiskStore) Get(ctx context.Context, identityID id.IdentityID) (IdentityRisk, error) {
	query := `
		SELECT identity_id, failed_attempts, risk_score, updated_at
		FROM identity_risk
		WHERE identity_id = $1
	`
	var (
		r   IdentityRisk
		iid uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(identityID)).Scan(
		&iid, &r.FailedAttempts, &r.RiskScore, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IdentityRisk{IdentityID: identityID}, nil
		}
		return IdentityRisk{}, fmt.Errorf("get identity risk: %w", err)
	}
	r.IdentityID = id.IdentityID(iid)
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
