// Package liveness scores a face capture against issued challenges and
// passive spoof indicators. The scoring model is pluggable; this package owns
// the challenge set, the method variants and the pass/threshold contract.
package liveness

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"

	"facegate/internal/faceauth/models"
	dErrors "facegate/pkg/domain-errors"
)

// Challenge is an instruction the subject must perform during an active
// liveness check.
type Challenge string

const (
	ChallengeBlink     Challenge = "blink"
	ChallengeTurnLeft  Challenge = "turn_left"
	ChallengeTurnRight Challenge = "turn_right"
	ChallengeSmile     Challenge = "smile"
	ChallengeNod       Challenge = "nod"
)

// instructions maps each challenge to its human-facing prompt.
var instructions = map[Challenge]string{
	ChallengeBlink:     "Blink both eyes",
	ChallengeTurnLeft:  "Turn your head to the left",
	ChallengeTurnRight: "Turn your head to the right",
	ChallengeSmile:     "Smile",
	ChallengeNod:       "Nod your head",
}

// allChallenges fixes the enumeration order used for selection.
var allChallenges = []Challenge{
	ChallengeBlink,
	ChallengeTurnLeft,
	ChallengeTurnRight,
	ChallengeSmile,
	ChallengeNod,
}

// Instruction returns the human instruction string for the challenge.
func (c Challenge) Instruction() string { return instructions[c] }

// IsValid checks if the challenge is one of the supported enum values.
func (c Challenge) IsValid() bool {
	_, ok := instructions[c]
	return ok
}

// Method selects how a capture is validated.
type Method string

const (
	// MethodActive scores completion of the issued challenges.
	MethodActive Method = "active"
	// MethodPassive scores spoof indicators without challenges.
	MethodPassive Method = "passive"
	// MethodHybrid runs both and requires each to pass individually.
	MethodHybrid Method = "hybrid"
)

// Result is the outcome of a liveness validation.
type Result struct {
	Passed        bool
	Score         float64
	FailureReason string
}

// Scorer is the external spoof-detection capability. Real deployments plug a
// trained model behind this interface; the validator only depends on the
// score contract.
type Scorer interface {
	// ChallengeScore rates in [0,1] how completely the issued challenges
	// were performed in the capture.
	ChallengeScore(capture models.Capture, challenges []Challenge) float64
	// SpoofScore rates in [0,1] how live the capture looks from passive
	// indicators alone.
	SpoofScore(capture models.Capture) float64
}

const (
	// minActiveFrames is the minimum capture length (in frame-equivalents)
	// for challenge scoring.
	minActiveFrames = 10

	activeThreshold  = 0.80
	passiveThreshold = 0.85
)

// Validator validates captures. Thresholds are fixed pending offline
// calibration against a production scoring model.
type Validator struct {
	scorer Scorer
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New constructs a Validator over the given scorer.
func New(scorer Scorer, opts ...Option) (*Validator, error) {
	if scorer == nil {
		return nil, errors.New("liveness scorer is required")
	}
	v := &Validator{scorer: scorer, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// GenerateChallenges returns n distinct challenges in presentation order.
func (v *Validator) GenerateChallenges(n int) ([]Challenge, error) {
	if n <= 0 || n > len(allChallenges) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "challenge count must be between 1 and %d", len(allChallenges))
	}
	pool := append([]Challenge(nil), allChallenges...)
	rand.Shuffle(len(pool), func(i, j int) { //nolint:gosec // challenge selection doesn't need crypto rand
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:n], nil
}

// Validate scores the capture with the requested method. Insufficient input
// fails fast before any scoring happens.
func (v *Validator) Validate(ctx context.Context, capture models.Capture, challenges []Challenge, method Method) (Result, error) {
	switch method {
	case MethodActive:
		if err := v.requireFrames(capture, minActiveFrames); err != nil {
			return Result{}, err
		}
		return v.active(capture, challenges), nil

	case MethodPassive:
		if err := v.requireFrames(capture, 1); err != nil {
			return Result{}, err
		}
		return v.passive(capture), nil

	case MethodHybrid:
		if err := v.requireFrames(capture, minActiveFrames); err != nil {
			return Result{}, err
		}
		act := v.active(capture, challenges)
		pas := v.passive(capture)
		combined := (act.Score + pas.Score) / 2

		res := Result{Passed: act.Passed && pas.Passed, Score: combined}
		if !res.Passed {
			if !act.Passed {
				res.FailureReason = act.FailureReason
			} else {
				res.FailureReason = pas.FailureReason
			}
		}
		return res, nil

	default:
		return Result{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown liveness method %q", method)
	}
}

func (v *Validator) requireFrames(capture models.Capture, min int) error {
	if len(capture.Frames) < min {
		return dErrors.Newf(dErrors.CodeInsufficientCapture, "capture has %d frames, need at least %d", len(capture.Frames), min)
	}
	return nil
}

func (v *Validator) active(capture models.Capture, challenges []Challenge) Result {
	score := v.scorer.ChallengeScore(capture, challenges)
	if score < activeThreshold {
		return Result{Score: score, FailureReason: "challenges_not_completed"}
	}
	return Result{Passed: true, Score: score}
}

func (v *Validator) passive(capture models.Capture) Result {
	score := v.scorer.SpoofScore(capture)
	if score < passiveThreshold {
		return Result{Score: score, FailureReason: "spoof_indicators"}
	}
	return Result{Passed: true, Score: score}
}
