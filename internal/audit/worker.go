package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from the publisher's inbox and persists them.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is canceled. A failed append is
// logged and the worker keeps going; one bad event must not stop the drain.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.Error("append audit event",
					"action", string(event.Action),
					"error", err,
				)
			}
		}
	}
}
