package activity

import (
	"context"
	"fmt"
	"log/slog"

	"campusevents/internal/queue"
)

// Consumer drains the activity queue.
type Consumer struct {
	q       queue.Queue
	cache   Invalidator
	logger  *slog.Logger
	metrics Recorder
}

// NewConsumer creates a consumer. cache, logger and rec may be nil.
func NewConsumer(q queue.Queue, cache Invalidator, logger *slog.Logger, rec Recorder) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Consumer{q: q, cache: cache, logger: logger, metrics: rec}
}

// Run handles messages until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}

	c.logger.InfoContext(ctx, "activity consumer started")
	for msg := range messages {
		if err := c.Handle(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "activity message failed", "id", msg.ID, "type", msg.Type, "error", err)
			c.metrics.RecordActivity(msg.Type, "failed")
			continue
		}
		c.metrics.RecordActivity(msg.Type, "consumed")
	}
	c.logger.InfoContext(ctx, "activity consumer stopped")
	return nil
}

// Handle applies one message. Every known change can move a report, so all cached
// reports are dropped.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeRegistrationCreated,
		queue.TypeAttendanceMarked,
		queue.TypeFeedbackSubmitted,
		queue.TypeEventCreated,
		queue.TypeEventCancelled,
		queue.TypeStudentCreated,
		queue.TypeCollegeCreated:
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}

	if c.cache == nil {
		return nil
	}
	n, err := c.cache.InvalidateAll(ctx)
	if err != nil {
		return fmt.Errorf("invalidate reports: %w", err)
	}
	c.logger.DebugContext(ctx, "reports invalidated", "type", msg.Type, "event_id", msg.EventID, "keys", n)
	return nil
}
