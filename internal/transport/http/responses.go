package http

import (
	"time"

	"facegate/internal/faceauth/service"
	"facegate/internal/monitor"
)

// EnrollResponse is the wire form of a successful enrollment.
type EnrollResponse struct {
	ProfileID string   `json:"profile_id"`
	Warnings  []string `json:"warnings,omitempty"`
}

// FromEnrollResult maps the domain result onto the wire response.
func FromEnrollResult(res service.EnrollResult) EnrollResponse {
	return EnrollResponse{
		ProfileID: res.ProfileID.String(),
		Warnings:  res.Warnings,
	}
}

// SessionResponse is the wire form of a minted verification session.
type SessionResponse struct {
	Token     string    `json:"token"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResponse is the wire form of a successful verification.
type VerifyResponse struct {
	IdentityID             string          `json:"identity_id"`
	ProfileID              string          `json:"profile_id"`
	Similarity             float64         `json:"similarity"`
	Tier                   string          `json:"confidence_tier"`
	RequiresAdditionalAuth bool            `json:"requires_additional_auth"`
	Session                SessionResponse `json:"session"`
}

// FromVerifyResult maps the domain result onto the wire response.
func FromVerifyResult(res service.VerifyResult) VerifyResponse {
	return VerifyResponse{
		IdentityID:             res.IdentityID.String(),
		ProfileID:              res.ProfileID.String(),
		Similarity:             res.Similarity,
		Tier:                   string(res.Tier),
		RequiresAdditionalAuth: res.RequiresAdditionalAuth,
		Session: SessionResponse{
			Token:     res.Session.Token,
			Status:    res.Session.Status,
			ExpiresAt: res.Session.ExpiresAt,
		},
	}
}

// AlertResponse is the wire form of a single security alert.
type AlertResponse struct {
	Severity          string         `json:"severity"`
	Type              string         `json:"type"`
	IdentityID        string         `json:"identity_id,omitempty"`
	Evidence          map[string]any `json:"evidence,omitempty"`
	RecommendedAction string         `json:"recommended_action"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ScanResponse is the wire form of a monitor scan.
type ScanResponse struct {
	WindowSeconds int64           `json:"window_seconds"`
	Alerts        []AlertResponse `json:"alerts"`
}

// FromAlerts maps monitor alerts onto the wire response.
func FromAlerts(window time.Duration, alerts []monitor.Alert) ScanResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp := AlertResponse{
			Severity:          string(a.Severity),
			Type:              string(a.Type),
			Evidence:          a.Evidence,
			RecommendedAction: a.RecommendedAction,
			Timestamp:         a.Timestamp,
		}
		if a.IdentityID != nil {
			resp.IdentityID = a.IdentityID.String()
		}
		out = append(out, resp)
	}
	return ScanResponse{
		WindowSeconds: int64(window / time.Second),
		Alerts:        out,
	}
}
