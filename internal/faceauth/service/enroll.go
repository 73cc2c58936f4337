package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/sentinel"

	"facegate/internal/audit"
	"facegate/internal/faceauth/liveness"
	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/uniqueness"
)

// ModelVersion labels which embedding model produced the vectors this
// deployment stores. It travels with each profile so a model upgrade can
// invalidate stale embeddings.
const ModelVersion = "facenet-v1"

// EnrollRequest carries everything one enrollment needs.
type EnrollRequest struct {
	IdentityID   id.IdentityID
	Embedding    []float32
	Capture      models.Capture
	Challenges   []liveness.Challenge
	Method       liveness.Method
	QualityScore *float64
}

// EnrollResult is returned on successful enrollment.
type EnrollResult struct {
	ProfileID id.ProfileID
	Warnings  []string
}

// Enroll runs the enrollment pipeline: replay check, liveness, uniqueness,
// supersede, encrypt and store, index add. Exactly one MatchAttempt is
// written whatever the outcome.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.Enroll")
	defer span.End()
	span.SetAttributes(attribute.String("identity_id", req.IdentityID.String()))

	attempt := models.MatchAttempt{
		ID:            id.NewAttemptID(),
		IdentityID:    &req.IdentityID,
		SessionID:     req.Capture.SessionID,
		Type:          models.AttemptEnrollment,
		ThresholdUsed: s.thresholds.Block,
	}

	result, err := s.enroll(ctx, req, &attempt)
	if err != nil {
		if attempt.FailureReason == "" {
			attempt.FailureReason = string(dErrors.CodeOf(err))
		}
		span.RecordError(err)
	} else {
		attempt.Success = true
		attempt.ProfileID = &result.ProfileID
	}
	s.recordAttempt(ctx, attempt, started)
	return result, err
}

func (s *Service) enroll(ctx context.Context, req EnrollRequest, attempt *models.MatchAttempt) (EnrollResult, error) {
	if req.IdentityID.IsNil() {
		return EnrollResult{}, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}
	if err := models.ValidateEmbedding(req.Embedding); err != nil {
		return EnrollResult{}, err
	}

	// Step 1: anti-replay.
	digest := s.deps.Replay.Hash(req.Capture.Raw)
	assessment, err := s.deps.Replay.CheckReplay(ctx, digest, &req.IdentityID, &req.Capture.Meta)
	if err != nil {
		return EnrollResult{}, err
	}
	if err := s.deps.Replay.RecordUse(ctx, req.Capture.SessionID, digest, &req.IdentityID); err != nil {
		return EnrollResult{}, err
	}
	if assessment.IsReplay {
		s.metrics.IncrementReplayCheck("replay")
		s.auditReplay(&req.IdentityID, assessment.RiskScore, assessment.Reasons)
		attempt.FailureReason = "replay_detected"
		return EnrollResult{}, dErrors.New(dErrors.CodeReplayDetected, "capture was seen before")
	}
	s.metrics.IncrementReplayCheck("clean")

	// Step 2: liveness.
	live, err := s.deps.Liveness.Validate(ctx, req.Capture, req.Challenges, req.Method)
	if err != nil {
		return EnrollResult{}, err
	}
	attempt.LivenessPassed = &live.Passed
	attempt.LivenessScore = &live.Score
	if !live.Passed {
		s.deps.Audit.Publish(audit.Event{
			Action:      audit.ActionLivenessFailed,
			IdentityID:  &req.IdentityID,
			Description: "enrollment liveness check failed",
			Detail:      map[string]any{"reason": live.FailureReason, "score": live.Score},
		})
		attempt.FailureReason = "liveness_failed"
		return EnrollResult{}, dErrors.New(dErrors.CodeLivenessFailed, live.FailureReason)
	}

	// The caller's current profile, when present, is both the supersede
	// target and the uniqueness exclusion.
	var current *models.FaceProfile
	if existing, err := s.deps.Profiles.GetActiveByIdentity(ctx, req.IdentityID); err == nil {
		current = &existing
	} else if !isNotFound(err) {
		return EnrollResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load current profile")
	}

	// Step 3: uniqueness.
	var exclude *id.ProfileID
	if current != nil {
		exclude = &current.ID
	}
	decision, err := s.deps.Uniqueness.Classify(ctx, req.Embedding, req.IdentityID, exclude)
	if err != nil {
		return EnrollResult{}, err
	}
	if decision.TopMatch != nil {
		attempt.SimilarityScore = &decision.TopMatch.Cosine
	}

	var warnings []string
	switch decision.Outcome {
	case uniqueness.OutcomeBlock:
		s.deps.Audit.Publish(audit.Event{
			Action:      audit.ActionEnrollmentBlocked,
			IdentityID:  &req.IdentityID,
			RiskScore:   decision.TopMatch.Cosine,
			Description: "enrollment blocked as duplicate of another identity",
			Detail:      map[string]any{"matched_profile_id": decision.TopMatch.ProfileID.String()},
		})
		attempt.FailureReason = "duplicate_identity"
		return EnrollResult{}, dErrors.New(dErrors.CodeDuplicateIdentity, decision.Note)
	case uniqueness.OutcomeReview:
		warnings = append(warnings, "similar existing profile flagged for review")
		s.deps.Audit.Publish(audit.Event{
			Action:      audit.ActionEnrollmentFlagged,
			IdentityID:  &req.IdentityID,
			RiskScore:   decision.TopMatch.Cosine,
			Description: "enrollment similarity in review band",
			Detail:      map[string]any{"matched_profile_id": decision.TopMatch.ProfileID.String()},
		})
	}
	if decision.Note != "" && decision.Outcome == uniqueness.OutcomeAllow {
		warnings = append(warnings, decision.Note)
	}

	// Steps 4-6: encrypt, persist, index. Failures from here on are
	// infrastructure faults, never business rejections.
	blob, err := s.deps.Cipher.Encrypt(ctx, req.Embedding)
	if err != nil {
		return EnrollResult{}, err
	}

	next := models.FaceProfile{
		ID:                 id.NewProfileID(),
		IdentityID:         req.IdentityID,
		EncryptedEmbedding: blob,
		KeyID:              s.deps.Cipher.KeyID(),
		ModelVersion:       ModelVersion,
		QualityScore:       req.QualityScore,
		Status:             models.ProfileActive,
		CreatedAt:          s.now(),
	}

	if current != nil {
		if err := s.supersede(ctx, *current, next); err != nil {
			return EnrollResult{}, err
		}
	} else {
		if err := s.deps.Profiles.Insert(ctx, next); err != nil {
			return EnrollResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "insert profile")
		}
	}

	if err := s.withRetry(ctx, func() error {
		return s.deps.Index.Add(ctx, next.ID, req.Embedding)
	}); err != nil {
		// The profile store already committed; the index is a cache and
		// catches up on the next rebuild.
		s.metrics.IncrementIndexCall("add", "error")
		s.logger.Error("index add after store commit",
			"profile_id", next.ID.String(),
			"error", err,
		)
		return EnrollResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "index new profile")
	}
	s.metrics.IncrementIndexCall("add", "ok")

	s.deps.Audit.Publish(audit.Event{
		Action:      audit.ActionEnrollmentCompleted,
		IdentityID:  &req.IdentityID,
		Description: "face profile enrolled",
		Detail:      map[string]any{"profile_id": next.ID.String(), "warnings": len(warnings)},
	})
	return EnrollResult{ProfileID: next.ID, Warnings: warnings}, nil
}

// supersede retires the current profile and activates the new one. The store
// applies revoke-old plus insert-new atomically; the index mutation brackets
// it with a compensating re-add so a failed store write leaves index
// membership intact.
func (s *Service) supersede(ctx context.Context, current, next models.FaceProfile) error {
	// Hold the old plaintext vector for compensation before touching the
	// index.
	oldVec, err := s.deps.Cipher.Decrypt(ctx, current.EncryptedEmbedding)
	if err != nil {
		return err
	}

	if err := s.withRetry(ctx, func() error {
		return s.deps.Index.Remove(ctx, current.ID)
	}); err != nil {
		s.metrics.IncrementIndexCall("remove", "error")
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "remove superseded vector")
	}
	s.metrics.IncrementIndexCall("remove", "ok")

	if err := s.deps.Profiles.Supersede(ctx, current.ID, next); err != nil {
		if restoreErr := s.withRetry(ctx, func() error {
			return s.deps.Index.Add(ctx, current.ID, oldVec)
		}); restoreErr != nil {
			s.logger.Error("restore index after failed supersede",
				"profile_id", current.ID.String(),
				"error", restoreErr,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "supersede profile")
	}

	s.deps.Audit.Publish(audit.Event{
		Action:      audit.ActionProfileSuperseded,
		IdentityID:  &current.IdentityID,
		Description: "active face profile superseded by re-enrollment",
		Detail: map[string]any{
			"old_profile_id": current.ID.String(),
			"new_profile_id": next.ID.String(),
		},
	})
	return nil
}

// auditReplay records a rejected capture. identityID may be nil when an
// open verification carried no identity pin.
func (s *Service) auditReplay(identityID *id.IdentityID, risk float64, reasons []string) {
	s.deps.Audit.Publish(audit.Event{
		Action:      audit.ActionReplayDetected,
		IdentityID:  identityID,
		RiskScore:   risk,
		Description: "capture replay detected",
		Detail:      map[string]any{"reasons": reasons},
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) || dErrors.Is(err, dErrors.CodeNotFound)
}
