// Package uniqueness decides whether a candidate embedding may be enrolled:
// a face already enrolled under a different identity must not be enrolled
// again, while re-enrollment by the same identity is allowed.
package uniqueness

import (
	"context"
	"fmt"
	"log/slog"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"

	"facegate/internal/faceauth/vectorindex"
)

// searchK bounds how many neighbors are consulted per check.
const searchK = 5

// Outcome is the uniqueness verdict.
type Outcome string

const (
	// OutcomeAllow permits enrollment.
	OutcomeAllow Outcome = "allow"
	// OutcomeReview permits enrollment but flags it for manual review.
	OutcomeReview Outcome = "review"
	// OutcomeBlock rejects enrollment as a duplicate of another identity.
	OutcomeBlock Outcome = "block"
)

// Decision is the result of a uniqueness check.
type Decision struct {
	Outcome  Outcome
	TopMatch *vectorindex.Match
	Note     string
}

// OwnerResolver maps an indexed profile back to the identity that owns it.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, profileID id.ProfileID) (id.IdentityID, error)
}

// Thresholds carries the similarity cut points. Block is the duplicate
// boundary, Review the gray-zone boundary below it.
type Thresholds struct {
	Block  float64
	Review float64
}

// Validate rejects threshold configurations that would make the verdict
// non-monotonic in similarity.
func (t Thresholds) Validate() error {
	if t.Review <= 0 || t.Block >= 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "thresholds must lie in (0,1)")
	}
	if t.Review >= t.Block {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"review threshold %.2f must be below block threshold %.2f", t.Review, t.Block)
	}
	return nil
}

// Checker classifies candidate embeddings against the similarity index.
type Checker struct {
	index      vectorindex.Index
	owners     OwnerResolver
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithThresholds(t Thresholds) Option {
	return func(c *Checker) {
		c.thresholds = t
	}
}

// New constructs a Checker.
func New(index vectorindex.Index, owners OwnerResolver, opts ...Option) (*Checker, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if owners == nil {
		return nil, fmt.Errorf("owner resolver is required")
	}

	c := &Checker{
		index:      index,
		owners:     owners,
		thresholds: Thresholds{Block: 0.85, Review: 0.70},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Classify searches the index for the candidate's nearest neighbors and
// derives a verdict from the best one. The caller's own active profile, when
// known, is excluded so re-enrollment does not collide with itself.
func (c *Checker) Classify(ctx context.Context, vec []float32, owner id.IdentityID, ownProfile *id.ProfileID) (Decision, error) {
	matches, err := c.index.Search(ctx, vec, searchK, ownProfile)
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "uniqueness search")
	}
	if len(matches) == 0 {
		return Decision{Outcome: OutcomeAllow}, nil
	}

	top := matches[0]
	switch {
	case top.Cosine >= c.thresholds.Block:
		matchOwner, err := c.owners.OwnerOf(ctx, top.ProfileID)
		if err != nil {
			return Decision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolve matched profile owner")
		}
		if matchOwner == owner {
			return Decision{
				Outcome:  OutcomeAllow,
				TopMatch: &top,
				Note:     "re-enrollment over caller's own profile",
			}, nil
		}
		c.logger.Warn("duplicate identity blocked",
			"similarity", top.Cosine,
			"matched_profile_id", top.ProfileID.String(),
		)
		return Decision{
			Outcome:  OutcomeBlock,
			TopMatch: &top,
			Note:     "embedding matches a profile owned by another identity",
		}, nil
	case top.Cosine >= c.thresholds.Review:
		return Decision{
			Outcome:  OutcomeReview,
			TopMatch: &top,
			Note:     "similarity in review band",
		}, nil
	default:
		return Decision{Outcome: OutcomeAllow, TopMatch: &top}, nil
	}
}
