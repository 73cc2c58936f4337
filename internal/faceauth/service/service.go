// Package service orchestrates the face authentication pipelines. Orchestrators
// are stateless; every invocation is a request-scoped sequence of calls against
// the shared collaborators, and every invocation writes exactly one MatchAttempt
// regardless of outcome.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/sentinel"

	"facegate/internal/audit"
	"facegate/internal/faceauth/cipher"
	"facegate/internal/faceauth/liveness"
	"facegate/internal/faceauth/metrics"
	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/replay"
	"facegate/internal/faceauth/store"
	"facegate/internal/faceauth/uniqueness"
	"facegate/internal/faceauth/vectorindex"
	"facegate/internal/platform/config"
)

// retryBackoff is the pause before the single retry of a transient backend
// call.
const retryBackoff = 100 * time.Millisecond

// Deps are the collaborators every pipeline needs.
type Deps struct {
	Cipher     *cipher.Cipher
	Liveness   *liveness.Validator
	Replay     *replay.Guard
	Uniqueness *uniqueness.Checker
	Index      vectorindex.Index

	Profiles store.FaceProfileStore
	Attempts store.MatchAttemptStore
	Sessions store.SessionStore
	Risks    store.RiskStore

	Audit *audit.Publisher
}

// Service runs enrollment and verification pipelines.
type Service struct {
	deps       Deps
	thresholds config.ThresholdConfig
	session    config.SessionConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithThresholds(t config.ThresholdConfig) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

func WithSessionConfig(c config.SessionConfig) Option {
	return func(s *Service) {
		s.session = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service. All deps are required.
func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Cipher == nil:
		return nil, errors.New("cipher is required")
	case deps.Liveness == nil:
		return nil, errors.New("liveness validator is required")
	case deps.Replay == nil:
		return nil, errors.New("replay guard is required")
	case deps.Uniqueness == nil:
		return nil, errors.New("uniqueness checker is required")
	case deps.Index == nil:
		return nil, errors.New("similarity index is required")
	case deps.Profiles == nil:
		return nil, errors.New("profile store is required")
	case deps.Attempts == nil:
		return nil, errors.New("attempt store is required")
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Risks == nil:
		return nil, errors.New("risk store is required")
	case deps.Audit == nil:
		return nil, errors.New("audit publisher is required")
	}

	s := &Service{
		deps:       deps,
		thresholds: config.ThresholdConfig{Block: 0.85, Review: 0.70},
		session:    config.SessionConfig{Issuer: "facegate", TTL: 5 * time.Minute},
		logger:     slog.Default(),
		tracer:     otel.Tracer("facegate/service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProfileOwners adapts the profile store to the uniqueness checker's
// ownership lookup.
type ProfileOwners struct {
	Profiles store.FaceProfileStore
}

func (o ProfileOwners) OwnerOf(ctx context.Context, profileID id.ProfileID) (id.IdentityID, error) {
	p, err := o.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return id.IdentityID{}, err
	}
	return p.IdentityID, nil
}

// recordAttempt persists the attempt and feeds metrics. It is the single
// write point for MatchAttempt records.
func (s *Service) recordAttempt(ctx context.Context, attempt models.MatchAttempt, started time.Time) {
	attempt.ProcessingTimeMs = time.Since(started).Milliseconds()
	attempt.CreatedAt = s.now()

	if err := s.deps.Attempts.Insert(ctx, attempt); err != nil {
		s.logger.Error("write match attempt",
			"attempt_id", attempt.ID.String(),
			"error", err,
		)
	}

	result := "success"
	if !attempt.Success {
		result = attempt.FailureReason
	}
	s.metrics.IncrementOutcome(string(attempt.Type), result)
	s.metrics.ObservePipelineLatency(string(attempt.Type), time.Since(started))
}

// withRetry runs op and retries exactly once, after a short backoff, when the
// failure looks transient.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "canceled during retry backoff")
	}
	return op()
}

func isTransient(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		return true
	}
	return errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrTimeout)
}

// RebuildIndex reloads every active profile, decrypts its embedding and
// replaces the index contents wholesale. Used at startup with a remote
// backend and after an index process crash.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "service.RebuildIndex")
	defer span.End()

	profiles, err := s.deps.Profiles.ListActive(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "list active profiles")
	}

	entries := make([]vectorindex.Entry, 0, len(profiles))
	for _, p := range profiles {
		vec, err := s.deps.Cipher.Decrypt(ctx, p.EncryptedEmbedding)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeIntegrity, "decrypt profile "+p.ID.String())
		}
		entries = append(entries, vectorindex.Entry{ProfileID: p.ID, Vector: vec})
	}

	if err := s.withRetry(ctx, func() error { return s.deps.Index.Rebuild(ctx, entries) }); err != nil {
		return 0, err
	}

	s.deps.Audit.Publish(audit.Event{
		Action:      audit.ActionIndexRebuilt,
		Description: "similarity index rebuilt from profile store",
		Detail:      map[string]any{"vectors": len(entries)},
	})
	s.logger.Info("index rebuilt", "vectors", len(entries))
	return len(entries), nil
}
