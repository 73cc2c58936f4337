package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

const snapshotKey = "vectorindex:snapshot"

// RedisSnapshot persists index contents to Redis so a restarted instance can
// warm up without decrypting every stored profile. The profile store remains
// the source of truth; a missing or stale snapshot only costs a rebuild.
type RedisSnapshot struct {
	client *redis.Client
}

// NewRedisSnapshot constructs a snapshot store.
func NewRedisSnapshot(client *redis.Client) *RedisSnapshot {
	return &RedisSnapshot{client: client}
}

type snapshotPayload struct {
	Entries   []snapshotEntry `json:"entries"`
	Dimension int             `json:"dimension"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type snapshotEntry struct {
	ProfileID string    `json:"id"`
	Vector    []float32 `json:"embedding"`
}

// Save stores the given entries as the current snapshot.
func (s *RedisSnapshot) Save(ctx context.Context, entries []Entry) error {
	payload := snapshotPayload{
		Entries:   make([]snapshotEntry, 0, len(entries)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		if payload.Dimension == 0 {
			payload.Dimension = len(e.Vector)
		}
		payload.Entries = append(payload.Entries, snapshotEntry{
			ProfileID: e.ProfileID.String(),
			Vector:    e.Vector,
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot entries, or sentinel.ErrNotFound when no
// snapshot exists.
func (s *RedisSnapshot) Load(ctx context.Context) ([]Entry, error) {
	raw, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	entries := make([]Entry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		pid, err := id.ParseProfileID(e.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot entry: %w", err)
		}
		entries = append(entries, Entry{ProfileID: pid, Vector: e.Vector})
	}
	return entries, nil
}
