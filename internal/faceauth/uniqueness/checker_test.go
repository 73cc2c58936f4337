package uniqueness

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"

	"facegate/internal/faceauth/vectorindex"
)

type staticOwners map[id.ProfileID]id.IdentityID

func (o staticOwners) OwnerOf(_ context.Context, profileID id.ProfileID) (id.IdentityID, error) {
	owner, ok := o[profileID]
	if !ok {
		return id.IdentityID{}, dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	return owner, nil
}

type CheckerSuite struct {
	suite.Suite
	ctx    context.Context
	index  *vectorindex.BruteForce
	owners staticOwners
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.ctx = context.Background()
	s.index = vectorindex.NewBruteForce()
	s.owners = staticOwners{}
}

func (s *CheckerSuite) newChecker(opts ...Option) *Checker {
	checker, err := New(s.index, s.owners, opts...)
	s.Require().NoError(err)
	return checker
}

func (s *CheckerSuite) enroll(owner id.IdentityID, vec []float32) id.ProfileID {
	pid := id.NewProfileID()
	s.Require().NoError(s.index.Add(s.ctx, pid, vec))
	s.owners[pid] = owner
	return pid
}

func newIdentity() id.IdentityID {
	return id.IdentityID(uuid.New())
}

func (s *CheckerSuite) TestEmptyIndexAllows() {
	decision, err := s.newChecker().Classify(s.ctx, []float32{1, 0, 0}, newIdentity(), nil)
	s.Require().NoError(err)
	s.Equal(OutcomeAllow, decision.Outcome)
	s.Nil(decision.TopMatch)
}

func (s *CheckerSuite) TestDistinctFaceAllows() {
	s.enroll(newIdentity(), []float32{0, 1, 0})

	decision, err := s.newChecker().Classify(s.ctx, []float32{1, 0, 0}, newIdentity(), nil)
	s.Require().NoError(err)
	s.Equal(OutcomeAllow, decision.Outcome)
	s.Require().NotNil(decision.TopMatch)
	s.Less(decision.TopMatch.Cosine, 0.70)
}

func (s *CheckerSuite) TestDuplicateOfOtherIdentityBlocks() {
	vec := []float32{1, 0.1, 0}
	s.enroll(newIdentity(), vec)

	decision, err := s.newChecker().Classify(s.ctx, vec, newIdentity(), nil)
	s.Require().NoError(err)
	s.Equal(OutcomeBlock, decision.Outcome)
	s.Require().NotNil(decision.TopMatch)
	s.GreaterOrEqual(decision.TopMatch.Cosine, 0.85)
}

func (s *CheckerSuite) TestSameIdentityReEnrollmentAllows() {
	owner := newIdentity()
	vec := []float32{1, 0.1, 0}
	s.enroll(owner, vec)

	decision, err := s.newChecker().Classify(s.ctx, vec, owner, nil)
	s.Require().NoError(err)
	s.Equal(OutcomeAllow, decision.Outcome)
	s.Contains(decision.Note, "re-enrollment")
}

func (s *CheckerSuite) TestOwnProfileExcluded() {
	owner := newIdentity()
	vec := []float32{1, 0.1, 0}
	own := s.enroll(owner, vec)

	decision, err := s.newChecker().Classify(s.ctx, vec, owner, &own)
	s.Require().NoError(err)
	s.Equal(OutcomeAllow, decision.Outcome)
	s.Nil(decision.TopMatch)
}

func (s *CheckerSuite) TestReviewBand() {
	// cos(angle) between {1,0} and {1,0.8} is ~0.78, inside [0.70, 0.85).
	s.enroll(newIdentity(), []float32{1, 0.8})

	decision, err := s.newChecker().Classify(s.ctx, []float32{1, 0}, newIdentity(), nil)
	s.Require().NoError(err)
	s.Equal(OutcomeReview, decision.Outcome)
	s.Require().NotNil(decision.TopMatch)
	s.GreaterOrEqual(decision.TopMatch.Cosine, 0.70)
	s.Less(decision.TopMatch.Cosine, 0.85)
}

func (s *CheckerSuite) TestThresholdValidation() {
	s.Run("review above block", func() {
		_, err := New(s.index, s.owners, WithThresholds(Thresholds{Block: 0.70, Review: 0.85}))
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
	s.Run("out of range", func() {
		_, err := New(s.index, s.owners, WithThresholds(Thresholds{Block: 1.2, Review: 0.7}))
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
	s.Run("nil deps", func() {
		_, err := New(nil, s.owners)
		s.Error(err)
		_, err = New(s.index, nil)
		s.Error(err)
	})
}

func (s *CheckerSuite) TestUnknownOwnerSurfacesError() {
	vec := []float32{1, 0, 0}
	pid := id.NewProfileID()
	s.Require().NoError(s.index.Add(s.ctx, pid, vec))
	// No ownership mapping recorded for pid.

	_, err := s.newChecker().Classify(s.ctx, vec, newIdentity(), nil)
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))
}
