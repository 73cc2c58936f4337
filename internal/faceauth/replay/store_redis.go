package replay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	usesKeyPrefix       = "replay:uses:"
	identitiesKeyPrefix = "replay:identities:"
)

// RedisUsageStore keeps digest usage history in Redis so every instance
// shares the same replay view. Recent uses live in a pruned sorted set; the
// all-time identity association is a plain set without expiry.
type RedisUsageStore struct {
	client *redis.Client
	window time.Duration
}

// NewRedisUsageStore constructs a Redis-backed usage store. The window
// bounds how long recency entries are retained.
func NewRedisUsageStore(client *redis.Client, window time.Duration) *RedisUsageStore {
	if window <= 0 {
		window = time.Hour
	}
	return &RedisUsageStore{client: client, window: window}
}

// Record upserts a use keyed by session id. ZADD with a fixed member makes
// duplicate session ids idempotent; only the score refreshes.
func (s *RedisUsageStore) Record(ctx context.Context, use Use) error {
	key := usesKeyPrefix + use.Digest
	member := encodeMember(use.SessionID, use.Identity)
	cutoff := float64(use.At.Add(-s.window).UnixNano())

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", formatScore(cutoff))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(use.At.UnixNano()), Member: member})
	// Retention covers two windows so boundary reads never miss entries.
	pipe.Expire(ctx, key, 2*s.window)
	if use.Identity != "" {
		pipe.SAdd(ctx, identitiesKeyPrefix+use.Digest, use.Identity)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record use: %w", err)
	}
	return nil
}

// RecentUses returns the uses of digest inside the rolling window.
func (s *RedisUsageStore) RecentUses(ctx context.Context, digest string, window time.Duration) ([]Use, error) {
	key := usesKeyPrefix + digest
	cutoff := time.Now().Add(-window)

	entries, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatScore(float64(cutoff.UnixNano())),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range recent uses: %w", err)
	}

	out := make([]Use, 0, len(entries))
	for _, e := range entries {
		member, ok := e.Member.(string)
		if !ok {
			continue
		}
		sessionID, identity := decodeMember(member)
		out = append(out, Use{
			SessionID: sessionID,
			Digest:    digest,
			Identity:  identity,
			At:        time.Unix(0, int64(e.Score)),
		})
	}
	return out, nil
}

// Identities returns the distinct identities ever seen with digest.
func (s *RedisUsageStore) Identities(ctx context.Context, digest string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, identitiesKeyPrefix+digest).Result()
	if err != nil {
		return nil, fmt.Errorf("load digest identities: %w", err)
	}
	return ids, nil
}

// encodeMember joins session and identity; the delimiter is escaped in both
// segments so caller-controlled ids cannot forge adjacent fields.
func encodeMember(sessionID, identity string) string {
	return sanitize(sessionID) + "|" + sanitize(identity)
}

func decodeMember(member string) (sessionID, identity string) {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return member, ""
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "|", "_")
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
