package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/sessionflow/internal/log"
)

// dispatchLocked drains the queue up to the concurrency cap. Must be called
// with c.mu held. Side effects first (cancellations, save coalescing), then
// selection; candidates blocked by entity state are skipped for this pass
// and a debounced retry is scheduled so they are not forgotten.
func (c *Coordinator) dispatchLocked() {
	if !c.running.Load() {
		return
	}

	for _, op := range c.queue.removeCancelled() {
		err := op.ctx.Err()
		op.future.settle(nil, err)
		c.publish(EventSettled, op, err)
	}

	for _, op := range c.queue.coalesceSaves(c.cfg.KeepSaves, coalesceBoost) {
		err := &SupersededError{EntityID: op.EntityID, Type: op.Type, Reason: "newer saves pending"}
		op.future.settle(nil, err)
		c.totals.superseded++
		log.Debug(log.CatQueue, "save coalesced", "op", op.ID, "entity", op.EntityID)
		c.publish(EventSuperseded, op, err)
	}

	skip := make(map[string]struct{})
	for c.activeCount < c.cfg.MaxConcurrent {
		op := c.queue.nextEligible(time.Now(), c.isSwitchTarget, skip)
		if op == nil {
			break
		}
		if !c.state.canBegin(op.EntityID, op.Type) {
			// Another op for this entity is in flight. Skip just this
			// candidate; a different entity's op may still be runnable.
			skip[op.ID] = struct{}{}
			continue
		}
		c.queue.remove(op.ID)
		c.startLocked(op)
	}

	if len(skip) > 0 && c.activeCount < c.cfg.MaxConcurrent {
		c.scheduleDebounceLocked()
	}
}

// startLocked transitions an operation from queued to in flight and spawns
// its worker. Must be called with c.mu held.
func (c *Coordinator) startLocked(op *Operation) {
	c.state.begin(op.EntityID, op.ID, op.Type)
	c.activeCount++
	c.lastProgress = time.Now()

	inf := &inflightOp{op: op, startedAt: time.Now()}
	inf.timer = time.AfterFunc(op.Timeout, func() { c.onTimeout(op.ID) })
	c.inflight[op.ID] = inf

	log.Debug(log.CatDispatch, "operation started",
		"op", op.ID, "type", op.Type, "entity", op.EntityID, "active", c.activeCount)
	c.publish(EventStarted, op, nil)

	go c.execute(op)
}

// execute runs the work callback outside the lock and reports the outcome.
// Panics in the callback become execution errors rather than crashing the
// process.
func (c *Coordinator) execute(op *Operation) {
	ctx := op.ctx
	var span trace.Span
	if c.cfg.Tracer != nil {
		ctx, span = c.cfg.Tracer.Start(ctx, "coordinator.execute",
			trace.WithAttributes(
				attribute.String("op.id", op.ID),
				attribute.String("op.type", op.Type.String()),
				attribute.String("op.entity", op.EntityID),
				attribute.Int("op.priority", op.Priority),
			))
		defer span.End()
	}

	if err := op.ctx.Err(); err != nil {
		c.complete(op, nil, err)
		return
	}

	var value any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("operation panicked: %v", r)
			}
		}()
		value, err = op.work(ctx)
	}()

	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.complete(op, value, err)
}

// complete settles a finished operation. The in-flight table is the
// authority on whether the result still matters: a missing entry means the
// operation already timed out or was force-cleared, and the late result is
// discarded (the future settled long ago).
func (c *Coordinator) complete(op *Operation, value any, err error) {
	c.mu.Lock()
	inf, ok := c.inflight[op.ID]
	if !ok {
		c.mu.Unlock()
		log.Debug(log.CatDispatch, "late result discarded", "op", op.ID, "entity", op.EntityID)
		return
	}
	inf.timer.Stop()
	delete(c.inflight, op.ID)
	c.activeCount--
	c.state.end(op.EntityID, op.ID, err != nil)
	c.lastProgress = time.Now()

	var settleErr error
	switch {
	case err == nil:
		c.consecErrors = 0
		c.totals.completed++
		if op.Type == OpLoad {
			// A completed load fulfills any pending switch to this entity.
			c.switchTargets.Delete(op.EntityID)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Caller cancellation is not a failure of the work itself.
		settleErr = err
	default:
		settleErr = &ExecutionError{EntityID: op.EntityID, Type: op.Type, Cause: err}
		c.consecErrors++
		c.totals.failed++
	}

	needsReset := c.consecErrors > c.cfg.ErrorThreshold
	c.dispatchLocked()
	c.mu.Unlock()

	op.future.settle(value, settleErr)
	if settleErr != nil {
		log.Warn(log.CatDispatch, "operation failed",
			"op", op.ID, "type", op.Type, "entity", op.EntityID, "error", settleErr)
	} else {
		log.Debug(log.CatDispatch, "operation completed", "op", op.ID, "entity", op.EntityID)
	}
	c.publish(EventSettled, op, settleErr)

	if needsReset {
		go c.fullReset("consecutive error threshold exceeded")
	}
}

// onTimeout fires when an operation overruns its deadline. The caller is
// rejected immediately; the worker goroutine is abandoned and its eventual
// result discarded by complete.
func (c *Coordinator) onTimeout(opID string) {
	c.mu.Lock()
	inf, ok := c.inflight[opID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inflight, opID)
	c.activeCount--
	op := inf.op
	elapsed := time.Since(inf.startedAt)
	c.state.end(op.EntityID, op.ID, true)
	c.totals.timedOut++
	c.dispatchLocked()
	c.mu.Unlock()

	err := &TimeoutError{EntityID: op.EntityID, Type: op.Type, Elapsed: elapsed}
	op.future.settle(nil, err)
	log.Warn(log.CatDispatch, "operation timed out",
		"op", op.ID, "type", op.Type, "entity", op.EntityID, "elapsed", elapsed)
	c.publish(EventTimedOut, op, err)
}

// scheduleDebounceLocked arranges a single delayed dispatch pass. Must be
// called with c.mu held. Collapses bursts of blocked candidates into one
// retry instead of spinning on the lock.
func (c *Coordinator) scheduleDebounceLocked() {
	if c.debouncePending {
		return
	}
	c.debouncePending = true
	time.AfterFunc(c.cfg.Debounce, func() {
		c.mu.Lock()
		c.debouncePending = false
		c.dispatchLocked()
		c.mu.Unlock()
	})
}
