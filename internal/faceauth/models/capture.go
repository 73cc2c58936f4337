package models

import (
	"math"
	"time"

	dErrors "facegate/pkg/domain-errors"
)

// Supported embedding dimensions. The perception collaborator produces
// either MediaPipe-style 512-dim vectors or compact 128-dim ones.
const (
	Dims128 = 128
	Dims512 = 512
)

// ValidateEmbedding checks dimensionality and numeric well-formedness of an
// externally produced embedding. The core never inspects pixels; this is the
// entire input contract for vectors.
func ValidateEmbedding(vec []float32) error {
	if len(vec) != Dims128 && len(vec) != Dims512 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "embedding must have %d or %d dimensions, got %d", Dims128, Dims512, len(vec))
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return dErrors.Newf(dErrors.CodeInvalidInput, "embedding component %d is not finite", i)
		}
	}
	return nil
}

// FrameSummary is an already-extracted per-frame summary. The perception
// layer reduces video to these; the core never decodes pixels.
type FrameSummary struct {
	// Timestamp offset of the frame within the capture.
	Offset time.Duration

	// Landmark-derived motion flags for active challenge scoring.
	Blinked     bool
	TurnedLeft  bool
	TurnedRight bool
	Smiled      bool
	Nodded      bool

	// Passive spoof indicators in [0,1]; higher means more live-looking.
	TextureScore       float64
	DepthScore         float64
	MicroMovementScore float64
}

// CaptureMeta carries capture-device metadata used for replay risk scoring.
type CaptureMeta struct {
	CapturedAt  time.Time
	ModifiedAt  time.Time
	Duration    time.Duration
	FrameRate   float64
	Fingerprint string
}

// Capture is the full input handed to the liveness and replay components:
// frame summaries for scoring plus raw bytes for digest purposes.
type Capture struct {
	SessionID string
	Raw       []byte
	Frames    []FrameSummary
	Meta      CaptureMeta
}
