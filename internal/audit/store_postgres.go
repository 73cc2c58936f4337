package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "facegate/pkg/domain"
)

// PostgresStore persists audit events in an append-only table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	var identityID any
	if event.IdentityID != nil {
		identityID = uuid.UUID(*event.IdentityID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, identity_id, risk_score, description, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.New(),
		string(event.Action),
		identityID,
		event.RiskScore,
		event.Description,
		detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, identity_id, risk_score, description, detail, created_at
		FROM audit_events
		WHERE created_at >= $1
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e          Event
			action     string
			identityID uuid.NullUUID
			detail     []byte
		)
		if err := rows.Scan(&action, &identityID, &e.RiskScore, &e.Description, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		if identityID.Valid {
			iid := id.IdentityID(identityID.UUID)
			e.IdentityID = &iid
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
