package coordinator

import (
	"context"
	"time"

	"github.com/zjrosen/sessionflow/internal/pubsub"
)

// EventKind identifies a lifecycle transition for a queued operation.
type EventKind string

const (
	EventEnqueued     EventKind = "enqueued"
	EventStarted      EventKind = "started"
	EventSettled      EventKind = "settled"
	EventSuperseded   EventKind = "superseded"
	EventTimedOut     EventKind = "timed_out"
	EventForceCleared EventKind = "force_cleared"
	EventReset        EventKind = "reset"
)

// OperationEvent is published on every lifecycle transition so observers can
// follow coordinator activity without polling Status.
type OperationEvent struct {
	Kind     EventKind
	OpID     string
	Type     OpType
	EntityID string
	Priority int
	Err      error
	At       time.Time
}

func (c *Coordinator) publish(kind EventKind, op *Operation, err error) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(pubsub.UpdatedEvent, OperationEvent{
		Kind:     kind,
		OpID:     op.ID,
		Type:     op.Type,
		EntityID: op.EntityID,
		Priority: op.Priority,
		Err:      err,
		At:       time.Now(),
	})
}

// Events subscribes to operation lifecycle events. The subscription is
// released when ctx is cancelled.
func (c *Coordinator) Events(ctx context.Context) <-chan pubsub.Event[OperationEvent] {
	return c.broker.Subscribe(ctx)
}
