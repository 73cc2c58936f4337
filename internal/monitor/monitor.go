// Package monitor correlates historical match attempts and audit events into
// operator-facing alerts and per-identity risk scores. Scans are stateless
// and idempotent: alerts are derived facts, recomputed from history every
// time, never stored by the monitor itself.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	id "facegate/pkg/domain"

	"facegate/internal/audit"
	"facegate/internal/faceauth/models"
	"facegate/internal/faceauth/store"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType names the rule that produced an alert.
type AlertType string

const (
	AlertBruteForce          AlertType = "brute_force"
	AlertFingerprintAnomaly  AlertType = "fingerprint_anomaly"
	AlertDuplicateEnrollment AlertType = "duplicate_enrollment_pattern"
	AlertReplayPattern       AlertType = "replay_pattern"
)

// Alert is one derived security finding.
type Alert struct {
	Severity          Severity
	Type              AlertType
	IdentityID        *id.IdentityID
	Evidence          map[string]any
	RecommendedAction string
	Timestamp         time.Time
}

// Notifier delivers alerts to an operator-facing channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Rule windows and thresholds.
const (
	bruteForceWindow    = 15 * time.Minute
	bruteForceHigh      = 5
	bruteForceCritical  = 10
	replayWindow        = time.Hour
	replayReuseHigh     = 3
	duplicateEnrollHigh = 3
)

// Risk score weights, clamped to [0,1] after summation.
const (
	weightFailedLogin     = 0.05
	weightSuspiciousEvent = 0.1
	weightCriticalAlert   = 0.15
	weightHighAlert       = 0.05
)

// Monitor scans attempt and audit history.
type Monitor struct {
	attempts store.MatchAttemptStore
	audits   audit.Store
	risks    store.RiskStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New constructs a Monitor.
func New(attempts store.MatchAttemptStore, audits audit.Store, risks store.RiskStore, notifier Notifier, opts ...Option) (*Monitor, error) {
	switch {
	case attempts == nil:
		return nil, errors.New("attempt store is required")
	case audits == nil:
		return nil, errors.New("audit store is required")
	case risks == nil:
		return nil, errors.New("risk store is required")
	case notifier == nil:
		return nil, errors.New("notifier is required")
	}

	m := &Monitor{
		attempts: attempts,
		audits:   audits,
		risks:    risks,
		notifier: notifier,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Scan runs every rule over the lookback window, recomputes per-identity
// risk scores and notifies each alert. Rules run concurrently; a rule
// failure fails the scan.
func (m *Monitor) Scan(ctx context.Context, window time.Duration) ([]Alert, error) {
	now := m.now()
	since := now.Add(-window)

	attempts, err := m.attempts.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}
	events, err := m.audits.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		alerts []Alert
	)
	collect := func(found []Alert) {
		mu.Lock()
		alerts = append(alerts, found...)
		mu.Unlock()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		collect(m.bruteForceRule(attempts, now))
		return nil
	})
	g.Go(func() error {
		collect(m.fingerprintRule(events, now))
		return nil
	})
	g.Go(func() error {
		collect(m.duplicateEnrollmentRule(attempts, now))
		return nil
	})
	g.Go(func() error {
		collect(m.replayPatternRule(events, now))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool {
		return string(alerts[i].Type) < string(alerts[j].Type)
	})

	if err := m.recomputeRisk(ctx, attempts, events, alerts); err != nil {
		return nil, err
	}

	for _, alert := range alerts {
		if err := m.notifier.Notify(ctx, alert); err != nil {
			m.logger.Error("notify alert", "type", string(alert.Type), "error", err)
		}
	}
	return alerts, nil
}

// recomputeRisk persists clamp(0.05*failed + 0.1*suspicious +
// 0.15*criticalAlerts + 0.05*highAlerts) for every identity seen in the
// window.
func (m *Monitor) recomputeRisk(ctx context.Context, attempts []models.MatchAttempt, events []audit.Event, alerts []Alert) error {
	failed := make(map[id.IdentityID]int)
	suspicious := make(map[id.IdentityID]int)
	critAlerts := make(map[id.IdentityID]int)
	highAlerts := make(map[id.IdentityID]int)
	seen := make(map[id.IdentityID]struct{})

	for _, a := range attempts {
		if a.IdentityID == nil {
			continue
		}
		seen[*a.IdentityID] = struct{}{}
		if !a.Success {
			failed[*a.IdentityID]++
		}
	}
	for _, e := range events {
		if e.IdentityID == nil {
			continue
		}
		switch e.Action {
		case audit.ActionReplayDetected, audit.ActionLivenessFailed, audit.ActionEnrollmentBlocked:
			seen[*e.IdentityID] = struct{}{}
			suspicious[*e.IdentityID]++
		}
	}
	for _, alert := range alerts {
		if alert.IdentityID == nil {
			continue
		}
		seen[*alert.IdentityID] = struct{}{}
		switch alert.Severity {
		case SeverityCritical:
			critAlerts[*alert.IdentityID]++
		case SeverityHigh:
			highAlerts[*alert.IdentityID]++
		}
	}

	for identity := range seen {
		score := weightFailedLogin*float64(failed[identity]) +
			weightSuspiciousEvent*float64(suspicious[identity]) +
			weightCriticalAlert*float64(critAlerts[identity]) +
			weightHighAlert*float64(highAlerts[identity])
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		if err := m.risks.SetRiskScore(ctx, identity, score); err != nil {
			return err
		}
	}
	return nil
}
