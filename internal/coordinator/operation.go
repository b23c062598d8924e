// Package coordinator serializes, prioritizes, and recovers asynchronous
// session operations. A single Coordinator instance owns a priority queue,
// per-entity state tracking, and cooldown windows; work callbacks execute
// concurrently up to a small cap while all scheduling decisions happen under
// one mutex.
package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// OpType identifies the kind of session operation.
type OpType string

const (
	// OpLoad reads an entity from the backing store.
	OpLoad OpType = "load"
	// OpSave writes an entity to the backing store.
	OpSave OpType = "save"
	// OpDelete removes an entity from the backing store.
	OpDelete OpType = "delete"
	// OpSetActive marks an entity as the active session.
	OpSetActive OpType = "setActive"
)

// String returns the string representation of the OpType.
func (t OpType) String() string {
	return string(t)
}

// IsValid returns true if the type is a recognized operation type.
func (t OpType) IsValid() bool {
	switch t {
	case OpLoad, OpSave, OpDelete, OpSetActive:
		return true
	default:
		return false
	}
}

// isWrite reports whether the operation mutates the entity. Write operations
// are mutually exclusive per entity; loads may overlap a single save.
func (t OpType) isWrite() bool {
	return t != OpLoad
}

// DefaultTimeout returns the per-type execution timeout applied when the
// caller does not override it.
func (t OpType) DefaultTimeout() time.Duration {
	switch t {
	case OpLoad:
		return 90 * time.Second
	case OpSave:
		return 60 * time.Second
	default:
		return 30 * time.Second
	}
}

// EntityNew is the sentinel entity ID for operations targeting an entity
// that does not exist yet.
const EntityNew = "new"

// WorkFunc is the opaque unit of work executed for an operation. The context
// is the caller's cancellation token; once work has started, cancellation is
// cooperative only.
type WorkFunc func(ctx context.Context) (any, error)

// Operation describes one queued unit of work. ID, Type, EntityID, and
// Sequence are immutable after creation; Priority is adjusted in place by the
// queue heuristics and is guarded by the coordinator mutex.
type Operation struct {
	ID         string
	Type       OpType
	EntityID   string
	Priority   int
	EnqueuedAt time.Time
	Sequence   uint64
	Timeout    time.Duration

	work   WorkFunc
	ctx    context.Context
	future *Future
}

func newOperation(ctx context.Context, typ OpType, entityID string, work WorkFunc, priority int, timeout time.Duration, seq uint64) *Operation {
	if timeout <= 0 {
		timeout = typ.DefaultTimeout()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Operation{
		ID:         uuid.New().String(),
		Type:       typ,
		EntityID:   entityID,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Sequence:   seq,
		Timeout:    timeout,
		work:       work,
		ctx:        ctx,
		future:     newFuture(),
	}
}

// cancelled reports whether the caller's cancellation token has fired.
// Checked before dequeue and before invoking work.
func (o *Operation) cancelled() bool {
	return o.ctx.Err() != nil
}

// Result is the outcome of a settled operation.
type Result struct {
	Value any
	Err   error
}

// Future is the caller's handle on a queued operation. It settles exactly
// once: the first of completion, timeout, cancellation, supersession, or
// forced clear wins and every later settle attempt is discarded.
type Future struct {
	done    chan struct{}
	settled atomic.Bool
	result  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settle records the result and releases waiters. Returns false if the
// future was already settled.
func (f *Future) settle(value any, err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.result = Result{Value: value, Err: err}
	close(f.done)
	return true
}

// Done returns a channel closed when the operation settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled outcome. Only valid after Done is closed.
func (f *Future) Result() Result {
	return f.result
}

// Wait blocks until the operation settles or the context is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
