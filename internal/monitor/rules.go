package monitor

import (
	"sort"
	"time"

	id "facegate/pkg/domain"

	"facegate/internal/audit"
	"facegate/internal/faceauth/models"
)

// bruteForceRule flags identities with repeated failed verifications inside
// the brute force window.
func (m *Monitor) bruteForceRule(attempts []models.MatchAttempt, now time.Time) []Alert {
	cutoff := now.Add(-bruteForceWindow)
	failures := make(map[id.IdentityID]int)
	for _, a := range attempts {
		if a.Success || a.IdentityID == nil || a.CreatedAt.Before(cutoff) {
			continue
		}
		if a.Type != models.AttemptVerification && a.Type != models.AttemptPayment {
			continue
		}
		failures[*a.IdentityID]++
	}

	var alerts []Alert
	for identity, count := range failures {
		if count < bruteForceHigh {
			continue
		}
		severity := SeverityHigh
		if count >= bruteForceCritical {
			severity = SeverityCritical
		}
		identity := identity
		alerts = append(alerts, Alert{
			Severity:   severity,
			Type:       AlertBruteForce,
			IdentityID: &identity,
			Evidence: map[string]any{
				"failed_attempts": count,
				"window_minutes":  int(bruteForceWindow.Minutes()),
			},
			RecommendedAction: "lock identity and require out-of-band re-authentication",
			Timestamp:         now,
		})
	}
	return alerts
}

// fingerprintRule flags successful verifications from a device fingerprint
// never previously bound to the identity. The first fingerprint ever seen is
// the binding; later new ones are anomalies.
func (m *Monitor) fingerprintRule(events []audit.Event, now time.Time) []Alert {
	type success struct {
		identity    id.IdentityID
		fingerprint string
		at          time.Time
	}
	var successes []success
	for _, e := range events {
		if e.Action != audit.ActionVerificationSucceeded || e.IdentityID == nil {
			continue
		}
		fp, _ := e.Detail["fingerprint"].(string)
		if fp == "" {
			continue
		}
		successes = append(successes, success{identity: *e.IdentityID, fingerprint: fp, at: e.CreatedAt})
	}
	sort.Slice(successes, func(i, j int) bool { return successes[i].at.Before(successes[j].at) })

	bound := make(map[id.IdentityID]map[string]struct{})
	var alerts []Alert
	for _, s := range successes {
		known := bound[s.identity]
		if known == nil {
			known = make(map[string]struct{})
			bound[s.identity] = known
		}
		if _, ok := known[s.fingerprint]; !ok && len(known) > 0 {
			identity := s.identity
			alerts = append(alerts, Alert{
				Severity:   SeverityMedium,
				Type:       AlertFingerprintAnomaly,
				IdentityID: &identity,
				Evidence: map[string]any{
					"fingerprint":        s.fingerprint,
					"known_fingerprints": len(known),
				},
				RecommendedAction: "confirm new device with the account holder",
				Timestamp:         now,
			})
		}
		known[s.fingerprint] = struct{}{}
	}
	return alerts
}

// duplicateEnrollmentRule flags identities that keep running into the
// duplicate-identity block.
func (m *Monitor) duplicateEnrollmentRule(attempts []models.MatchAttempt, now time.Time) []Alert {
	blocked := make(map[id.IdentityID]int)
	for _, a := range attempts {
		if a.Success || a.IdentityID == nil || a.Type != models.AttemptEnrollment {
			continue
		}
		if a.FailureReason != "duplicate_identity" {
			continue
		}
		blocked[*a.IdentityID]++
	}

	var alerts []Alert
	for identity, count := range blocked {
		if count < duplicateEnrollHigh {
			continue
		}
		identity := identity
		alerts = append(alerts, Alert{
			Severity:   SeverityHigh,
			Type:       AlertDuplicateEnrollment,
			IdentityID: &identity,
			Evidence: map[string]any{
				"blocked_enrollments": count,
			},
			RecommendedAction: "review identity for enrollment fraud",
			Timestamp:         now,
		})
	}
	return alerts
}

// replayPatternRule escalates repeated replay detections. Any cross-identity
// reuse (risk score 1.0) is critical; heavy reuse volume is high.
func (m *Monitor) replayPatternRule(events []audit.Event, now time.Time) []Alert {
	cutoff := now.Add(-replayWindow)
	var (
		replays       int
		crossIdentity bool
		lastIdentity  *id.IdentityID
	)
	for _, e := range events {
		if e.Action != audit.ActionReplayDetected || e.CreatedAt.Before(cutoff) {
			continue
		}
		replays++
		if e.RiskScore >= 1.0 {
			crossIdentity = true
		}
		if e.IdentityID != nil {
			identity := *e.IdentityID
			lastIdentity = &identity
		}
	}

	var alerts []Alert
	if crossIdentity {
		alerts = append(alerts, Alert{
			Severity:   SeverityCritical,
			Type:       AlertReplayPattern,
			IdentityID: lastIdentity,
			Evidence: map[string]any{
				"replays":        replays,
				"cross_identity": true,
			},
			RecommendedAction: "invalidate affected captures and investigate credential theft",
			Timestamp:         now,
		})
	} else if replays > replayReuseHigh {
		alerts = append(alerts, Alert{
			Severity:   SeverityHigh,
			Type:       AlertReplayPattern,
			IdentityID: lastIdentity,
			Evidence: map[string]any{
				"replays": replays,
			},
			RecommendedAction: "investigate repeated capture reuse",
			Timestamp:         now,
		})
	}
	return alerts
}
