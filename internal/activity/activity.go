// Package activity moves change notifications from the API to the consumer
// that keeps derived data (cached reports) fresh.
package activity

import (
	"context"
	"log/slog"

	"campusevents/internal/queue"
)

// Recorder counts activity messages by type and stage. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordActivity(msgType, stage string)
}

type nopRecorder struct{}

func (nopRecorder) RecordActivity(string, string) {}

// Invalidator drops derived data. *reportcache.Cache satisfies it.
type Invalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// Publisher announces committed changes. Publishing is best effort: the write
// already succeeded, so failures are logged and counted but never returned.
type Publisher struct {
	q       queue.Queue
	logger  *slog.Logger
	metrics Recorder
}

func NewPublisher(q queue.Queue, logger *slog.Logger, rec Recorder) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Publisher{q: q, logger: logger, metrics: rec}
}

// Publish sends one message. A nil Publisher or queue drops it.
func (p *Publisher) Publish(ctx context.Context, msgType string, eventID, studentID int64) {
	if p == nil || p.q == nil {
		return
	}
	msg := queue.NewMessage(msgType, eventID, studentID)
	if err := p.q.Publish(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "activity publish failed", "type", msgType, "event_id", eventID, "error", err)
		p.metrics.RecordActivity(msgType, "failed")
		return
	}
	p.metrics.RecordActivity(msgType, "published")
}
