package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerDrainsInbox(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(8, slog.Default())
	worker := NewWorker(store, pub.Inbox(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	pub.Publish(Event{Action: ActionVerificationSucceeded, Description: "ok"})
	pub.Publish(Event{Action: ActionReplayDetected, RiskScore: 1.0})

	require.Eventually(t, func() bool {
		events, err := store.ListSince(context.Background(), time.Time{})
		return err == nil && len(events) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events, err := store.ListSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ActionVerificationSucceeded, events[0].Action)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestPublisherDropsWhenFull(t *testing.T) {
	pub := NewPublisher(1, slog.Default())

	// No worker attached; second publish must not block.
	pub.Publish(Event{Action: ActionEnrollmentCompleted})
	donePublish := make(chan struct{})
	go func() {
		pub.Publish(Event{Action: ActionEnrollmentBlocked})
		close(donePublish)
	}()

	select {
	case <-donePublish:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full inbox")
	}
}

func TestInMemoryStoreListSince(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, Event{Action: ActionAlertRaised, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, Event{Action: ActionRiskRecomputed, CreatedAt: now}))

	recent, err := store.ListSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ActionRiskRecomputed, recent[0].Action)
}
