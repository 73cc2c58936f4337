package liveness

import "facegate/internal/faceauth/models"

// LandmarkScorer derives scores from the landmark and indicator summaries the
// perception layer attaches to each frame. It stands in for a trained spoof
// model behind the same Scorer contract.
type LandmarkScorer struct{}

// NewLandmarkScorer returns the default capture scorer.
func NewLandmarkScorer() *LandmarkScorer {
	return &LandmarkScorer{}
}

// ChallengeScore returns the fraction of issued challenges observed in the
// capture's frame summaries.
func (s *LandmarkScorer) ChallengeScore(capture models.Capture, challenges []Challenge) float64 {
	if len(challenges) == 0 {
		return 0
	}
	completed := 0
	for _, c := range challenges {
		if challengeObserved(capture.Frames, c) {
			completed++
		}
	}
	return float64(completed) / float64(len(challenges))
}

// SpoofScore averages the passive indicators across all frames. Texture,
// depth and micro-movement contribute equally.
func (s *LandmarkScorer) SpoofScore(capture models.Capture) float64 {
	if len(capture.Frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range capture.Frames {
		sum += (f.TextureScore + f.DepthScore + f.MicroMovementScore) / 3
	}
	return sum / float64(len(capture.Frames))
}

func challengeObserved(frames []models.FrameSummary, c Challenge) bool {
	for _, f := range frames {
		switch c {
		case ChallengeBlink:
			if f.Blinked {
				return true
			}
		case ChallengeTurnLeft:
			if f.TurnedLeft {
				return true
			}
		case ChallengeTurnRight:
			if f.TurnedRight {
				return true
			}
		case ChallengeSmile:
			if f.Smiled {
				return true
			}
		case ChallengeNod:
			if f.Nodded {
				return true
			}
		}
	}
	return false
}
