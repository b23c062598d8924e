package coordinator

import (
	"context"
	"time"

	"github.com/zjrosen/sessionflow/internal/log"
)

// HealthStatus summarizes what the health monitor sees.
type HealthStatus struct {
	Healthy           bool
	QueueLength       int
	ActiveOperations  int
	ConsecutiveErrors int
	StuckEntities     []string
	LastProgress      time.Time
	ResetCount        int
}

// CheckHealth evaluates the same signals the periodic sweep uses without
// taking any corrective action.
func (c *Coordinator) CheckHealth() HealthStatus {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var stuck []string
	for _, inf := range c.inflight {
		if now.Sub(inf.startedAt) > c.cfg.MaxRunTime {
			stuck = append(stuck, inf.op.EntityID)
		}
	}

	return HealthStatus{
		Healthy:           len(stuck) == 0 && c.consecErrors <= c.cfg.ErrorThreshold,
		QueueLength:       c.queue.len(),
		ActiveOperations:  c.activeCount,
		ConsecutiveErrors: c.consecErrors,
		StuckEntities:     stuck,
		LastProgress:      c.lastProgress,
		ResetCount:        c.resetCount,
	}
}

// healthLoop sweeps at a fixed interval until the coordinator stops.
func (c *Coordinator) healthLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runHealthSweep()
		}
	}
}

// runHealthSweep applies the three recovery tiers in escalating order:
// force-clear stuck operations, boost stalled queue entries, and as a last
// resort reset everything.
func (c *Coordinator) runHealthSweep() {
	now := time.Now()

	c.mu.Lock()
	if !c.running.Load() {
		c.mu.Unlock()
		return
	}

	// Tier 1: operations running past MaxRunTime are presumed wedged.
	// Their workers are abandoned and the entity's loads and saves both get
	// a short cooldown, so a hot retry loop on either path cannot
	// immediately wedge it again.
	var stuck []*inflightOp
	for id, inf := range c.inflight {
		if now.Sub(inf.startedAt) <= c.cfg.MaxRunTime {
			continue
		}
		inf.timer.Stop()
		delete(c.inflight, id)
		c.activeCount--
		c.state.end(inf.op.EntityID, inf.op.ID, true)
		c.cooldowns.set(inf.op.EntityID, OpLoad, 5*time.Second)
		c.cooldowns.set(inf.op.EntityID, OpSave, 5*time.Second)
		if inf.op.Type != OpLoad && inf.op.Type != OpSave {
			c.cooldowns.set(inf.op.EntityID, inf.op.Type, 5*time.Second)
		}
		stuck = append(stuck, inf)
	}

	// Tier 2: stall signals on the queue. Boost loads harder than writes so
	// reads drain first and unblock whoever is waiting on them.
	stalledEntities := 0
	if c.queue.len() > 0 {
		globalStall := now.Sub(c.lastProgress) > c.cfg.MaxRunTime*3/2
		for entityID, ops := range c.queue.pendingByEntity() {
			loads, saves := 0, 0
			for _, op := range ops {
				switch op.Type {
				case OpLoad:
					loads++
				case OpSave:
					saves++
				}
			}
			if globalStall || (loads > 0 && saves > 0) || loads > c.cfg.StallLoadBacklog {
				c.queue.boostEntity(entityID, stallLoadBoost, stallWriteBoost)
				stalledEntities++
			}
		}
	}

	needsReset := c.consecErrors > c.cfg.ErrorThreshold
	c.dispatchLocked()
	c.mu.Unlock()

	for _, inf := range stuck {
		err := &ForciblyClearedError{EntityID: inf.op.EntityID, Reason: "operation exceeded max run time"}
		inf.op.future.settle(nil, err)
		log.Warn(log.CatHealth, "stuck operation cleared",
			"op", inf.op.ID, "type", inf.op.Type, "entity", inf.op.EntityID,
			"running_for", now.Sub(inf.startedAt))
		c.publish(EventForceCleared, inf.op, err)
	}
	if stalledEntities > 0 {
		log.Info(log.CatHealth, "stalled entities boosted", "entities", stalledEntities)
	}

	// Tier 3: too many consecutive failures means the backing store is
	// likely unhealthy. Reset and let the recovery hook verify it.
	if needsReset {
		c.fullReset("consecutive error threshold exceeded")
	}
}

// fullReset drains the queue, abandons in-flight work, clears all entity
// state and cooldowns, and runs the recovery hook. The consecutive-error
// counter resets only when the hook succeeds, so a persistently broken
// store keeps tripping resets instead of silently looking healthy.
func (c *Coordinator) fullReset(reason string) {
	c.mu.Lock()
	if !c.running.Load() || c.consecErrors <= c.cfg.ErrorThreshold {
		c.mu.Unlock()
		return
	}
	pending := c.queue.drain()
	abandoned := make([]*Operation, 0, len(c.inflight))
	for _, inf := range c.inflight {
		inf.timer.Stop()
		abandoned = append(abandoned, inf.op)
	}
	c.inflight = make(map[string]*inflightOp)
	c.activeCount = 0
	c.state.reset()
	c.cooldowns.reset()
	c.switchTargets.Flush()
	c.resetCount++
	c.lastProgress = time.Now()
	c.mu.Unlock()

	log.Error(log.CatHealth, "full reset",
		"reason", reason, "rejected_pending", len(pending), "abandoned_inflight", len(abandoned))
	for _, op := range append(pending, abandoned...) {
		err := &ForciblyClearedError{EntityID: op.EntityID, Reason: "coordinator reset: " + reason}
		op.future.settle(nil, err)
		c.publish(EventForceCleared, op, err)
	}
	c.publish(EventReset, &Operation{}, nil)

	hookErr := c.runRecoveryHook()
	c.mu.Lock()
	if hookErr == nil {
		c.consecErrors = 0
	}
	c.mu.Unlock()
	if hookErr != nil {
		log.ErrorErr(log.CatHealth, "recovery hook failed", hookErr)
	} else {
		log.Info(log.CatHealth, "recovery complete")
	}
}

func (c *Coordinator) runRecoveryHook() error {
	if c.cfg.RecoveryHook == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.cfg.RecoveryHook(ctx)
}
