package http

import (
	"time"

	"facegate/internal/faceauth/liveness"
	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/service"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
)

// FramePayload is the wire form of a single capture frame summary.
type FramePayload struct {
	OffsetMs    int64 `json:"offset_ms"`
	Blinked     bool  `json:"blinked"`
	TurnedLeft  bool  `json:"turned_left"`
	TurnedRight bool  `json:"turned_right"`
	Smiled      bool  `json:"smiled"`
	Nodded      bool  `json:"nodded"`

	TextureScore       float64 `json:"texture_score"`
	DepthScore         float64 `json:"depth_score"`
	MicroMovementScore float64 `json:"micro_movement_score"`
}

// CapturePayload is the wire form of a capture: raw bytes arrive
// base64-encoded per encoding/json convention.
type CapturePayload struct {
	SessionID   string         `json:"session_id"`
	Raw         []byte         `json:"raw"`
	Frames      []FramePayload `json:"frames"`
	CapturedAt  time.Time      `json:"captured_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
	DurationMs  int64          `json:"duration_ms"`
	FrameRate   float64        `json:"frame_rate"`
	Fingerprint string         `json:"device_fingerprint"`
}

func (p CapturePayload) toModel() models.Capture {
	frames := make([]models.FrameSummary, 0, len(p.Frames))
	for _, f := range p.Frames {
		frames = append(frames, models.FrameSummary{
			Offset:             time.Duration(f.OffsetMs) * time.Millisecond,
			Blinked:            f.Blinked,
			TurnedLeft:         f.TurnedLeft,
			TurnedRight:        f.TurnedRight,
			Smiled:             f.Smiled,
			Nodded:             f.Nodded,
			TextureScore:       f.TextureScore,
			DepthScore:         f.DepthScore,
			MicroMovementScore: f.MicroMovementScore,
		})
	}
	return models.Capture{
		SessionID: p.SessionID,
		Raw:       p.Raw,
		Frames:    frames,
		Meta: models.CaptureMeta{
			CapturedAt:  p.CapturedAt,
			ModifiedAt:  p.ModifiedAt,
			Duration:    time.Duration(p.DurationMs) * time.Millisecond,
			FrameRate:   p.FrameRate,
			Fingerprint: p.Fingerprint,
		},
	}
}

// EnrollRequest is the wire form of an enrollment call.
type EnrollRequest struct {
	IdentityID   string         `json:"identity_id"`
	Embedding    []float32      `json:"embedding"`
	Capture      CapturePayload `json:"capture"`
	Challenges   []string       `json:"challenges"`
	Method       string         `json:"liveness_method"`
	QualityScore *float64       `json:"quality_score,omitempty"`
}

// Parse validates the wire request and maps it onto the domain request.
func (r EnrollRequest) Parse() (service.EnrollRequest, error) {
	identityID, err := id.ParseIdentityID(r.IdentityID)
	if err != nil {
		return service.EnrollRequest{}, dErrors.New(dErrors.CodeInvalidInput, "invalid identity_id")
	}
	return service.EnrollRequest{
		IdentityID:   identityID,
		Embedding:    r.Embedding,
		Capture:      r.Capture.toModel(),
		Challenges:   parseChallenges(r.Challenges),
		Method:       liveness.Method(r.Method),
		QualityScore: r.QualityScore,
	}, nil
}

// VerifyRequest is the wire form of a verification call.
type VerifyRequest struct {
	Embedding  []float32      `json:"embedding"`
	Capture    CapturePayload `json:"capture"`
	Challenges []string       `json:"challenges"`
	Method     string         `json:"liveness_method"`
	// ExpectedIdentity pins verification to one identity; empty means
	// open identification against the whole index.
	ExpectedIdentity string `json:"expected_identity_id,omitempty"`
	Type             string `json:"type"`
}

// Parse validates the wire request and maps it onto the domain request.
func (r VerifyRequest) Parse() (service.VerifyRequest, error) {
	var expected *id.IdentityID
	if r.ExpectedIdentity != "" {
		identityID, err := id.ParseIdentityID(r.ExpectedIdentity)
		if err != nil {
			return service.VerifyRequest{}, dErrors.New(dErrors.CodeInvalidInput, "invalid expected_identity_id")
		}
		expected = &identityID
	}

	attemptType := models.AttemptType(r.Type)
	if attemptType == "" {
		attemptType = models.AttemptVerification
	}

	return service.VerifyRequest{
		Embedding:        r.Embedding,
		Capture:          r.Capture.toModel(),
		Challenges:       parseChallenges(r.Challenges),
		Method:           liveness.Method(r.Method),
		ExpectedIdentity: expected,
		Type:             attemptType,
	}, nil
}

func parseChallenges(raw []string) []liveness.Challenge {
	if len(raw) == 0 {
		return nil
	}
	out := make([]liveness.Challenge, 0, len(raw))
	for _, c := range raw {
		out = append(out, liveness.Challenge(c))
	}
	return out
}
