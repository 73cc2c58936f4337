package audit

import (
	"log/slog"
	"time"
)

// Publisher hands events to the background worker without blocking the
// pipeline. A full inbox drops the event and logs it; losing an audit record
// is preferable to stalling an authentication in flight.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a publisher with a bounded inbox. The returned channel
// feeds a Worker.
func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Inbox exposes the worker side of the channel.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Publish enqueues the event, stamping CreatedAt when unset.
func (p *Publisher) Publish(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping event", "action", string(event.Action))
	}
}
