package coordinator

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning is returned when queueing against a stopped coordinator.
var ErrNotRunning = errors.New("coordinator is not running")

// ValidationError indicates a queue request was rejected before enqueue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CooldownError indicates an operation was rejected due to an active throttle
// window for its (entity, type) pair.
type CooldownError struct {
	EntityID string
	Type     OpType
	Until    time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on %s is in cooldown until %s", e.Type, e.EntityID, e.Until.Format(time.RFC3339))
}

// TimeoutError indicates an in-flight operation exceeded its timeout.
// The underlying work is abandoned, not interrupted.
type TimeoutError struct {
	EntityID string
	Type     OpType
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on %s timed out after %s", e.Type, e.EntityID, e.Elapsed.Round(time.Millisecond))
}

// SupersededError indicates a queued operation was cancelled because a newer
// operation made it redundant (save coalescing or a session switch).
type SupersededError struct {
	EntityID string
	Type     OpType
	Reason   string
}

func (e *SupersededError) Error() string {
	return fmt.Sprintf("%s on %s superseded: %s", e.Type, e.EntityID, e.Reason)
}

// ExecutionError wraps an error returned by an operation's work callback.
// Execution failures increment the coordinator's consecutive-error counter;
// all other error kinds do not.
type ExecutionError struct {
	EntityID string
	Type     OpType
	Cause    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s on %s failed: %v", e.Type, e.EntityID, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ForciblyClearedError indicates the health monitor or a manual clear
// intervened while the operation was queued or in flight. Callers should
// re-fetch any entity state they were relying on.
type ForciblyClearedError struct {
	EntityID string
	Reason   string
}

func (e *ForciblyClearedError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("operation forcibly cleared: %s", e.Reason)
	}
	return fmt.Sprintf("operation on %s forcibly cleared: %s", e.EntityID, e.Reason)
}
