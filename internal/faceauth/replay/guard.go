// Package replay hashes captures and scores the risk that a sample is being
// reused. The checks are defense-in-depth: races under concurrent duplicate
// submissions may under-detect, which is accepted.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"facegate/internal/faceauth/models"
	dErrors "facegate/pkg/domain-errors"
	id "facegate/pkg/domain"
)

// Risk contributions per signal. Independent signals are summed, then the
// total is clamped to [0,1].
const (
	riskCrossIdentityReuse = 1.0
	riskDigestReuse        = 0.9
	riskGlobalCollision    = 0.8
	riskNearLimitStep      = 0.2
	riskTimeSkew           = 0.4
	riskBadDuration        = 0.3
	riskBadFrameRate       = 0.2
)

// Metadata plausibility bounds.
const (
	maxTimeSkew  = 2 * time.Minute
	minDuration  = time.Second
	maxDuration  = time.Minute
	minFrameRate = 5.0
	maxFrameRate = 120.0
)

// Config tunes the recency window.
type Config struct {
	// Window is the rolling period for recency checks.
	Window time.Duration
	// ReuseLimit is the in-window use count at which full reuse risk applies.
	ReuseLimit int
	// RiskCutoff is the summed risk at which a capture counts as a replay.
	RiskCutoff float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:     time.Hour,
		ReuseLimit: 3,
		RiskCutoff: 0.7,
	}
}

// Use is one recorded capture submission.
type Use struct {
	SessionID string
	Digest    string
	Identity  string
	At        time.Time
}

// UsageStore persists capture digest usage history.
type UsageStore interface {
	// Record upserts a use keyed by session id.
	Record(ctx context.Context, use Use) error
	// RecentUses returns the uses of digest within the window ending now.
	RecentUses(ctx context.Context, digest string, window time.Duration) ([]Use, error)
	// Identities returns every identity ever associated with digest.
	Identities(ctx context.Context, digest string) ([]string, error)
}

// Assessment is the outcome of a replay check.
type Assessment struct {
	IsReplay  bool
	RiskScore float64
	Reasons   []string
}

// Guard evaluates capture reuse risk.
type Guard struct {
	store  UsageStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(g *Guard) {
		g.cfg = cfg
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New constructs a Guard over the given usage store.
func New(store UsageStore, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("usage store is required")
	}
	g := &Guard{
		store:  store,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Hash digests raw capture bytes for replay tracking.
func (g *Guard) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckReplay combines recency reuse, metadata anomalies and global digest
// collisions into a clamped risk score.
func (g *Guard) CheckReplay(ctx context.Context, digest string, identityID *id.IdentityID, meta *models.CaptureMeta) (Assessment, error) {
	if digest == "" {
		return Assessment{}, dErrors.New(dErrors.CodeInvalidInput, "digest is required")
	}

	var risk float64
	var reasons []string

	recent, err := g.store.RecentUses(ctx, digest, g.cfg.Window)
	if err != nil {
		return Assessment{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load recent uses")
	}

	if r, reason := g.recencyRisk(recent, identityID); r > 0 {
		risk += r
		reasons = append(reasons, reason)
	}

	if meta != nil {
		r, anomalies := metadataRisk(*meta)
		risk += r
		reasons = append(reasons, anomalies...)
	}

	all, err := g.store.Identities(ctx, digest)
	if err != nil {
		return Assessment{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load digest identities")
	}
	if len(all) > 1 {
		risk += riskGlobalCollision
		reasons = append(reasons, "digest_identity_collision")
	}

	risk = clamp01(risk)
	assessment := Assessment{
		IsReplay:  risk >= g.cfg.RiskCutoff,
		RiskScore: risk,
		Reasons:   reasons,
	}
	if assessment.IsReplay {
		g.logger.WarnContext(ctx, "replay detected",
			"digest_prefix", digest[:min(12, len(digest))],
			"risk", risk,
			"reasons", reasons,
		)
	}
	return assessment, nil
}

// RecordUse upserts a digest use keyed by session id. Recording the same
// session twice is a no-op beyond refreshing the timestamp.
func (g *Guard) RecordUse(ctx context.Context, sessionID, digest string, identityID *id.IdentityID) error {
	if sessionID == "" || digest == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session id and digest are required")
	}
	use := Use{
		SessionID: sessionID,
		Digest:    digest,
		At:        g.now(),
	}
	if identityID != nil {
		use.Identity = identityID.String()
	}
	if err := g.store.Record(ctx, use); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "record capture use")
	}
	return nil
}

// recencyRisk scores in-window reuse. A use by a different identity is the
// strongest signal; repeated reuse by the same identity ramps up to full
// reuse risk at the configured limit.
func (g *Guard) recencyRisk(recent []Use, identityID *id.IdentityID) (float64, string) {
	if len(recent) == 0 {
		return 0, ""
	}

	if identityID != nil {
		current := identityID.String()
		for _, u := range recent {
			if u.Identity != "" && u.Identity != current {
				return riskCrossIdentityReuse, "cross_identity_reuse"
			}
		}
	}

	if len(recent) >= g.cfg.ReuseLimit {
		return riskDigestReuse, "digest_reuse"
	}
	// Below the limit each sighting still raises suspicion, so repeated
	// submissions show a rising score before hard detection kicks in.
	return riskNearLimitStep * float64(len(recent)), "digest_reseen"
}

func metadataRisk(meta models.CaptureMeta) (float64, []string) {
	var risk float64
	var reasons []string

	if !meta.CapturedAt.IsZero() && !meta.ModifiedAt.IsZero() {
		skew := meta.ModifiedAt.Sub(meta.CapturedAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > maxTimeSkew {
			risk += riskTimeSkew
			reasons = append(reasons, "timestamp_skew")
		}
	}
	if meta.Duration != 0 && (meta.Duration < minDuration || meta.Duration > maxDuration) {
		risk += riskBadDuration
		reasons = append(reasons, "implausible_duration")
	}
	if meta.FrameRate != 0 && (meta.FrameRate < minFrameRate || meta.FrameRate > maxFrameRate) {
		risk += riskBadFrameRate
		reasons = append(reasons, "implausible_frame_rate")
	}
	return risk, reasons
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
