package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"

	"facegate/internal/audit"
	"facegate/internal/faceauth/liveness"
	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/vectorindex"
)

// searchK bounds how many neighbors a verification consults.
const searchK = 5

// VerifyRequest carries everything one verification needs.
type VerifyRequest struct {
	Embedding        []float32
	Capture          models.Capture
	Challenges       []liveness.Challenge
	Method           liveness.Method
	ExpectedIdentity *id.IdentityID
	// Type is verification or payment. Payment raises the stakes: a
	// medium-tier match demands additional authentication instead of
	// passing outright.
	Type models.AttemptType
}

// VerifyResult is returned on successful verification.
type VerifyResult struct {
	IdentityID             id.IdentityID
	ProfileID              id.ProfileID
	Similarity             float64
	Tier                   models.ConfidenceTier
	RequiresAdditionalAuth bool
	Session                models.VerificationSession
}

// Verify runs the verification pipeline: replay check, liveness, similarity
// search, identity and confidence gates, session minting. Exactly one
// MatchAttempt is written whatever the outcome.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("type", string(req.Type)))

	attempt := models.MatchAttempt{
		ID:            id.NewAttemptID(),
		IdentityID:    req.ExpectedIdentity,
		SessionID:     req.Capture.SessionID,
		Type:          req.Type,
		ThresholdUsed: s.thresholds.Review,
	}

	result, err := s.verify(ctx, req, &attempt)
	if err != nil {
		if attempt.FailureReason == "" {
			attempt.FailureReason = string(dErrors.CodeOf(err))
		}
		span.RecordError(err)
		if attempt.IdentityID != nil && dErrors.IsBusinessRejection(err) {
			if _, incErr := s.deps.Risks.IncrementFailed(ctx, *attempt.IdentityID); incErr != nil {
				s.logger.Error("increment failed attempts", "error", incErr)
			}
		}
	} else {
		attempt.Success = true
		attempt.IdentityID = &result.IdentityID
		attempt.ProfileID = &result.ProfileID
		attempt.SimilarityScore = &result.Similarity
	}
	s.recordAttempt(ctx, attempt, started)
	return result, err
}

func (s *Service) verify(ctx context.Context, req VerifyRequest, attempt *models.MatchAttempt) (VerifyResult, error) {
	if req.Type != models.AttemptVerification && req.Type != models.AttemptPayment {
		return VerifyResult{}, dErrors.Newf(dErrors.CodeInvalidInput, "attempt type %q cannot verify", req.Type)
	}
	if err := models.ValidateEmbedding(req.Embedding); err != nil {
		return VerifyResult{}, err
	}

	// Step 1: anti-replay.
	digest := s.deps.Replay.Hash(req.Capture.Raw)
	assessment, err := s.deps.Replay.CheckReplay(ctx, digest, req.ExpectedIdentity, &req.Capture.Meta)
	if err != nil {
		return VerifyResult{}, err
	}
	if err := s.deps.Replay.RecordUse(ctx, req.Capture.SessionID, digest, req.ExpectedIdentity); err != nil {
		return VerifyResult{}, err
	}
	if assessment.IsReplay {
		s.metrics.IncrementReplayCheck("replay")
		s.auditReplay(req.ExpectedIdentity, assessment.RiskScore, assessment.Reasons)
		attempt.FailureReason = "replay_detected"
		return VerifyResult{}, dErrors.New(dErrors.CodeReplayDetected, "capture was seen before")
	}
	s.metrics.IncrementReplayCheck("clean")

	// Step 2: liveness.
	live, err := s.deps.Liveness.Validate(ctx, req.Capture, req.Challenges, req.Method)
	if err != nil {
		return VerifyResult{}, err
	}
	attempt.LivenessPassed = &live.Passed
	attempt.LivenessScore = &live.Score
	if !live.Passed {
		attempt.FailureReason = "liveness_failed"
		return VerifyResult{}, dErrors.New(dErrors.CodeLivenessFailed, live.FailureReason)
	}

	// Step 3: similarity search.
	matches, err := s.withRetrySearch(ctx, req.Embedding)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(matches) == 0 {
		attempt.FailureReason = "no_match"
		return VerifyResult{}, dErrors.New(dErrors.CodeNoMatch, "no enrolled profiles matched")
	}

	top := matches[0]
	attempt.SimilarityScore = &top.Cosine
	attempt.ProfileID = &top.ProfileID
	s.metrics.ObserveTopSimilarity(top.Cosine)

	// Step 4: confidence floor.
	if top.Cosine < s.thresholds.Review {
		attempt.FailureReason = "low_confidence"
		return VerifyResult{}, dErrors.Newf(dErrors.CodeLowConfidence,
			"best match similarity %.3f below %.2f", top.Cosine, s.thresholds.Review)
	}

	profile, err := s.deps.Profiles.GetByID(ctx, top.ProfileID)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load matched profile")
	}

	// Step 5: expected identity gate.
	if req.ExpectedIdentity != nil && profile.IdentityID != *req.ExpectedIdentity {
		attempt.FailureReason = "identity_mismatch"
		return VerifyResult{}, dErrors.New(dErrors.CodeIdentityMismatch, "matched a different identity")
	}

	// Step 6: confidence tier.
	tier := models.TierFor(top.Cosine, s.thresholds.Review, s.thresholds.Block)
	requiresAdditionalAuth := req.Type == models.AttemptPayment && tier == models.TierMedium

	// Step 7: commit success effects.
	if err := s.deps.Profiles.TouchLastVerified(ctx, profile.ID, s.now()); err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "touch last verified")
	}
	if err := s.deps.Risks.ResetFailed(ctx, profile.IdentityID); err != nil {
		return VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "reset failed attempts")
	}
	session, err := s.mintSession(ctx, profile.IdentityID, profile.ID, top.Cosine, live.Score)
	if err != nil {
		return VerifyResult{}, err
	}

	s.deps.Audit.Publish(audit.Event{
		Action:      audit.ActionVerificationSucceeded,
		IdentityID:  &profile.IdentityID,
		Description: "face verification succeeded",
		Detail: map[string]any{
			"profile_id":               profile.ID.String(),
			"tier":                     string(tier),
			"fingerprint":              req.Capture.Meta.Fingerprint,
			"requires_additional_auth": requiresAdditionalAuth,
		},
	})

	return VerifyResult{
		IdentityID:             profile.IdentityID,
		ProfileID:              profile.ID,
		Similarity:             top.Cosine,
		Tier:                   tier,
		RequiresAdditionalAuth: requiresAdditionalAuth,
		Session:                session,
	}, nil
}

func (s *Service) withRetrySearch(ctx context.Context, vec []float32) ([]vectorindex.Match, error) {
	var matches []vectorindex.Match
	err := s.withRetry(ctx, func() error {
		found, err := s.deps.Index.Search(ctx, vec, searchK, nil)
		if err != nil {
			s.metrics.IncrementIndexCall("search", "error")
			return err
		}
		s.metrics.IncrementIndexCall("search", "ok")
		matches = found
		return nil
	})
	return matches, err
}
