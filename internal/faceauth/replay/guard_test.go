package replay

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"facegate/internal/faceauth/models"
	dErrors "facegate/pkg/domain-errors"
	id "facegate/pkg/domain"
)

type GuardSuite struct {
	suite.Suite
	store *InMemoryUsageStore
	guard *Guard
	ctx   context.Context
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.store = NewInMemoryUsageStore()
	var err error
	s.guard, err = New(s.store)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *GuardSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

func (s *GuardSuite) TestHash() {
	a := s.guard.Hash([]byte("capture-a"))
	b := s.guard.Hash([]byte("capture-b"))
	s.Len(a, 64)
	s.NotEqual(a, b)
	s.Equal(a, s.guard.Hash([]byte("capture-a")))
}

func (s *GuardSuite) TestFreshDigest() {
	res, err := s.guard.CheckReplay(s.ctx, s.guard.Hash([]byte("fresh")), nil, nil)
	s.Require().NoError(err)
	s.False(res.IsReplay)
	s.Zero(res.RiskScore)
	s.Empty(res.Reasons)
}

func (s *GuardSuite) TestRecencyReuse() {
	identity := newIdentity()
	digest := s.guard.Hash([]byte("reused"))

	s.Run("risk rises on each in-window sighting", func() {
		var last float64
		for i := 0; i < 2; i++ {
			s.Require().NoError(s.guard.RecordUse(s.ctx, uuid.NewString(), digest, &identity))
			res, err := s.guard.CheckReplay(s.ctx, digest, &identity, nil)
			s.Require().NoError(err)
			s.Greater(res.RiskScore, last)
			last = res.RiskScore
		}
	})

	s.Run("at the reuse limit the digest counts as replay", func() {
		s.Require().NoError(s.guard.RecordUse(s.ctx, uuid.NewString(), digest, &identity))
		res, err := s.guard.CheckReplay(s.ctx, digest, &identity, nil)
		s.Require().NoError(err)
		s.True(res.IsReplay)
		s.GreaterOrEqual(res.RiskScore, 0.9)
		s.Contains(res.Reasons, "digest_reuse")
	})
}

func (s *GuardSuite) TestCrossIdentityReuse() {
	victim := newIdentity()
	attacker := newIdentity()
	digest := s.guard.Hash([]byte("stolen sample"))

	s.Require().NoError(s.guard.RecordUse(s.ctx, "sess-victim", digest, &victim))

	res, err := s.guard.CheckReplay(s.ctx, digest, &attacker, nil)
	s.Require().NoError(err)
	s.True(res.IsReplay)
	s.InDelta(1.0, res.RiskScore, 1e-9)
	s.Contains(res.Reasons, "cross_identity_reuse")
}

func (s *GuardSuite) TestGlobalCollision() {
	a, b := newIdentity(), newIdentity()
	digest := s.guard.Hash([]byte("shared"))

	s.Require().NoError(s.guard.RecordUse(s.ctx, "sess-a", digest, &a))
	s.Require().NoError(s.guard.RecordUse(s.ctx, "sess-b", digest, &b))

	// No current identity: recency cross-check cannot fire, but the
	// all-time collision still must.
	res, err := s.guard.CheckReplay(s.ctx, digest, nil, nil)
	s.Require().NoError(err)
	s.True(res.IsReplay)
	s.Contains(res.Reasons, "digest_identity_collision")
}

func (s *GuardSuite) TestMetadataAnomalies() {
	digest := s.guard.Hash([]byte("meta"))
	now := time.Now()

	s.Run("clean metadata adds no risk", func() {
		meta := &models.CaptureMeta{
			CapturedAt: now,
			ModifiedAt: now.Add(time.Second),
			Duration:   5 * time.Second,
			FrameRate:  30,
		}
		res, err := s.guard.CheckReplay(s.ctx, digest, nil, meta)
		s.Require().NoError(err)
		s.Zero(res.RiskScore)
	})

	s.Run("each anomaly contributes bounded risk", func() {
		meta := &models.CaptureMeta{
			CapturedAt: now,
			ModifiedAt: now.Add(10 * time.Minute),
			Duration:   200 * time.Millisecond,
			FrameRate:  500,
		}
		res, err := s.guard.CheckReplay(s.ctx, digest, nil, meta)
		s.Require().NoError(err)
		s.InDelta(0.9, res.RiskScore, 1e-9)
		s.True(res.IsReplay)
		s.ElementsMatch([]string{"timestamp_skew", "implausible_duration", "implausible_frame_rate"}, res.Reasons)
	})
}

func (s *GuardSuite) TestRiskClamped() {
	victim := newIdentity()
	attacker := newIdentity()
	digest := s.guard.Hash([]byte("everything wrong"))

	s.Require().NoError(s.guard.RecordUse(s.ctx, "s1", digest, &victim))
	s.Require().NoError(s.guard.RecordUse(s.ctx, "s2", digest, &attacker))

	meta := &models.CaptureMeta{Duration: time.Millisecond, FrameRate: 1}
	res, err := s.guard.CheckReplay(s.ctx, digest, &attacker, meta)
	s.Require().NoError(err)
	s.InDelta(1.0, res.RiskScore, 1e-9)
}

func (s *GuardSuite) TestRecordUseIdempotent() {
	identity := newIdentity()
	digest := s.guard.Hash([]byte("idempotent"))

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.guard.RecordUse(s.ctx, "same-session", digest, &identity))
	}

	uses, err := s.store.RecentUses(s.ctx, digest, time.Hour)
	s.Require().NoError(err)
	s.Len(uses, 1)
}

func (s *GuardSuite) TestValidation() {
	identity := newIdentity()

	_, err := s.guard.CheckReplay(s.ctx, "", nil, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	err = s.guard.RecordUse(s.ctx, "", "digest", &identity)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	err = s.guard.RecordUse(s.ctx, "session", "", &identity)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func newIdentity() id.IdentityID {
	return id.IdentityID(uuid.New())
}
