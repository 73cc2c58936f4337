//go:build integration

package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"facegate/internal/faceauth/replay"
	"facegate/pkg/testutil/containers"
)

func TestRedisUsageStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	defer rc.Terminate(t)

	ctx := context.Background()
	store := replay.NewRedisUsageStore(rc.Client, time.Hour)

	digest := "0123456789abcdef"
	identityA := uuid.NewString()
	identityB := uuid.NewString()
	now := time.Now()

	t.Run("record and read back recent uses", func(t *testing.T) {
		err := store.Record(ctx, replay.Use{SessionID: "s1", Digest: digest, Identity: identityA, At: now})
		require.NoError(t, err)
		err = store.Record(ctx, replay.Use{SessionID: "s2", Digest: digest, Identity: identityB, At: now})
		require.NoError(t, err)

		uses, err := store.RecentUses(ctx, digest, time.Hour)
		require.NoError(t, err)
		require.Len(t, uses, 2)
	})

	t.Run("record is idempotent by session id", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			err := store.Record(ctx, replay.Use{SessionID: "s1", Digest: digest, Identity: identityA, At: now})
			require.NoError(t, err)
		}
		uses, err := store.RecentUses(ctx, digest, time.Hour)
		require.NoError(t, err)
		require.Len(t, uses, 2)
	})

	t.Run("window excludes old uses", func(t *testing.T) {
		old := now.Add(-30 * time.Minute)
		err := store.Record(ctx, replay.Use{SessionID: "s3", Digest: digest, Identity: identityA, At: old})
		require.NoError(t, err)

		uses, err := store.RecentUses(ctx, digest, 10*time.Minute)
		require.NoError(t, err)
		for _, u := range uses {
			require.NotEqual(t, "s3", u.SessionID)
		}
	})

	t.Run("identities accumulate across time", func(t *testing.T) {
		ids, err := store.Identities(ctx, digest)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{identityA, identityB}, ids)
	})

	t.Run("unknown digest is empty", func(t *testing.T) {
		uses, err := store.RecentUses(ctx, "ffff", time.Hour)
		require.NoError(t, err)
		require.Empty(t, uses)

		ids, err := store.Identities(ctx, "ffff")
		require.NoError(t, err)
		require.Empty(t, ids)
	})
}
