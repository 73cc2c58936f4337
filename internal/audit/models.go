// Package audit captures security-relevant actions from the face
// authentication pipeline. Events are append-only; nothing ever mutates or
// deletes one.
package audit

import (
	"context"
	"time"

	id "facegate/pkg/domain"
)

// Action names what happened.
type Action string

const (
	ActionEnrollmentCompleted Action = "enrollment_completed"
	ActionEnrollmentBlocked   Action = "enrollment_blocked"
	ActionEnrollmentFlagged   Action = "enrollment_flagged"
	ActionProfileSuperseded   Action = "profile_superseded"

	ActionVerificationSucceeded Action = "verification_succeeded"
	ActionVerificationFailed    Action = "verification_failed"

	ActionReplayDetected  Action = "replay_detected"
	ActionLivenessFailed  Action = "liveness_failed"
	ActionAlertRaised     Action = "alert_raised"
	ActionRiskRecomputed  Action = "risk_recomputed"
	ActionIndexRebuilt    Action = "index_rebuilt"
	ActionIndexRestoreHit Action = "index_restored_from_snapshot"
)

// Event is one audit record. Detail carries action-specific context and must
// never contain raw captures or plaintext embeddings.
type Event struct {
	Action      Action
	IdentityID  *id.IdentityID
	RiskScore   float64
	Description string
	Detail      map[string]any
	CreatedAt   time.Time
}

// Store is the append-only event sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListSince returns events created at or after the given time.
	ListSince(ctx context.Context, since time.Time) ([]Event, error)
}
