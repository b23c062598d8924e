package coordinator

import (
	"sort"
	"time"
)

// opQueue holds pending operations. It is not safe for concurrent use on its
// own: the Coordinator's mutex guards every call, so enqueue, selection, and
// removal are atomic with respect to entity-state transitions.
//
// The queue is a plain slice re-sorted on demand rather than a heap, because
// priorities mutate after insertion (starvation boosts, switch demotions).
// The O(n log n) re-sort is acceptable at expected sizes of tens of entries.
type opQueue struct {
	items         []*Operation
	starvationAge time.Duration
}

func newOpQueue(starvationAge time.Duration) *opQueue {
	return &opQueue{starvationAge: starvationAge}
}

func (q *opQueue) enqueue(op *Operation) {
	q.items = append(q.items, op)
	q.resort()
}

func (q *opQueue) len() int {
	return len(q.items)
}

// remove deletes the operation with the given ID and returns it, or nil if
// not queued. Linear scan; removal is rare relative to selection.
func (q *opQueue) remove(id string) *Operation {
	for i, op := range q.items {
		if op.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return op
		}
	}
	return nil
}

// drain empties the queue and returns everything that was pending.
func (q *opQueue) drain() []*Operation {
	drained := q.items
	q.items = nil
	return drained
}

// removeCancelled extracts every operation whose cancellation token has
// fired. The dispatcher settles these before making a selection.
func (q *opQueue) removeCancelled() []*Operation {
	var cancelled []*Operation
	kept := q.items[:0]
	for _, op := range q.items {
		if op.cancelled() {
			cancelled = append(cancelled, op)
		} else {
			kept = append(kept, op)
		}
	}
	q.items = kept
	return cancelled
}

// resort orders by priority (higher first), then arrival.
func (q *opQueue) resort() {
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority > q.items[j].Priority
		}
		if !q.items[i].EnqueuedAt.Equal(q.items[j].EnqueuedAt) {
			return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
		}
		return q.items[i].Sequence < q.items[j].Sequence
	})
}

// coalesceSaves enforces the write-coalescing rule: when an entity has
// keepSaves+1 or more queued saves, only the keepSaves most recent (by
// sequence) remain; the rest are removed and returned for rejection. Kept
// saves get a priority boost so the surviving write lands promptly.
func (q *opQueue) coalesceSaves(keepSaves, boost int) []*Operation {
	byEntity := make(map[string][]*Operation)
	for _, op := range q.items {
		if op.Type == OpSave {
			byEntity[op.EntityID] = append(byEntity[op.EntityID], op)
		}
	}

	var dropped []*Operation
	for _, saves := range byEntity {
		if len(saves) <= keepSaves {
			continue
		}
		sort.Slice(saves, func(i, j int) bool {
			return saves[i].Sequence > saves[j].Sequence // newest first
		})
		for _, op := range saves[:keepSaves] {
			op.Priority += boost
		}
		dropped = append(dropped, saves[keepSaves:]...)
	}

	if len(dropped) > 0 {
		for _, op := range dropped {
			q.remove(op.ID)
		}
		q.resort()
	}
	return dropped
}

// nextEligible selects the next operation to dispatch without removing it.
// Rules apply in order until one produces a selection:
//
//  1. Deadlock avoidance: an entity with both a load and a save queued is
//     served in arrival order, so a livelock between a reader and a writer
//     cannot form.
//  2. Duplicate-load fairness: an entity with more than one queued load is
//     served its oldest load.
//  3. Switch priority: a load for a pending switch-target entity preempts
//     numeric priority.
//  4. Starvation guard: anything waiting longer than starvationAge is served
//     oldest-first.
//  5. Default: highest priority, ties broken by earliest arrival.
//
// Operations in skip (by ID) were already found entity-incompatible this
// pass and are ignored. Cancelled operations are never selected.
func (q *opQueue) nextEligible(now time.Time, isSwitchTarget func(string) bool, skip map[string]struct{}) *Operation {
	cands := make([]*Operation, 0, len(q.items))
	for _, op := range q.items {
		if _, skipped := skip[op.ID]; skipped {
			continue
		}
		if op.cancelled() {
			continue
		}
		cands = append(cands, op)
	}
	if len(cands) == 0 {
		return nil
	}

	// Rule 1: load/save pairs resolve by arrival order.
	if op := oldestOfContendedPair(cands); op != nil {
		return op
	}

	// Rule 2: duplicate loads serve the oldest.
	if op := oldestDuplicateLoad(cands); op != nil {
		return op
	}

	// Rule 3: switch-target loads jump the line.
	if isSwitchTarget != nil {
		var pick *Operation
		for _, op := range cands {
			if op.Type == OpLoad && isSwitchTarget(op.EntityID) {
				if pick == nil || op.Sequence < pick.Sequence {
					pick = op
				}
			}
		}
		if pick != nil {
			return pick
		}
	}

	// Rule 4: starvation guard.
	if q.starvationAge > 0 {
		var pick *Operation
		for _, op := range cands {
			if now.Sub(op.EnqueuedAt) > q.starvationAge {
				if pick == nil || op.EnqueuedAt.Before(pick.EnqueuedAt) {
					pick = op
				}
			}
		}
		if pick != nil {
			return pick
		}
	}

	// Rule 5: priority, then arrival.
	pick := cands[0]
	for _, op := range cands[1:] {
		if op.Priority > pick.Priority ||
			(op.Priority == pick.Priority && op.EnqueuedAt.Before(pick.EnqueuedAt)) ||
			(op.Priority == pick.Priority && op.EnqueuedAt.Equal(pick.EnqueuedAt) && op.Sequence < pick.Sequence) {
			pick = op
		}
	}
	return pick
}

// oldestOfContendedPair finds entities with both a load and a save queued
// and returns the oldest of the two kinds for the entity whose contention is
// oldest overall. Arrival order decides: if the save arrived first, the
// write lands before any read observes intermediate state, and vice versa.
func oldestOfContendedPair(cands []*Operation) *Operation {
	type pair struct {
		oldestLoad *Operation
		oldestSave *Operation
	}
	byEntity := make(map[string]*pair)
	for _, op := range cands {
		if op.Type != OpLoad && op.Type != OpSave {
			continue
		}
		p := byEntity[op.EntityID]
		if p == nil {
			p = &pair{}
			byEntity[op.EntityID] = p
		}
		switch op.Type {
		case OpLoad:
			if p.oldestLoad == nil || op.Sequence < p.oldestLoad.Sequence {
				p.oldestLoad = op
			}
		case OpSave:
			if p.oldestSave == nil || op.Sequence < p.oldestSave.Sequence {
				p.oldestSave = op
			}
		}
	}

	var pick *Operation
	for _, p := range byEntity {
		if p.oldestLoad == nil || p.oldestSave == nil {
			continue
		}
		oldest := p.oldestLoad
		if p.oldestSave.Sequence < oldest.Sequence {
			oldest = p.oldestSave
		}
		if pick == nil || oldest.Sequence < pick.Sequence {
			pick = oldest
		}
	}
	return pick
}

// oldestDuplicateLoad returns the oldest load for any entity with more than
// one load queued. Duplicate loads are wasteful but must not starve.
func oldestDuplicateLoad(cands []*Operation) *Operation {
	loads := make(map[string][]*Operation)
	for _, op := range cands {
		if op.Type == OpLoad {
			loads[op.EntityID] = append(loads[op.EntityID], op)
		}
	}

	var pick *Operation
	for _, entityLoads := range loads {
		if len(entityLoads) < 2 {
			continue
		}
		oldest := entityLoads[0]
		for _, op := range entityLoads[1:] {
			if op.Sequence < oldest.Sequence {
				oldest = op
			}
		}
		if pick == nil || oldest.Sequence < pick.Sequence {
			pick = oldest
		}
	}
	return pick
}

// opsForEntity returns the queued operations targeting the given entity.
func (q *opQueue) opsForEntity(entityID string) []*Operation {
	var ops []*Operation
	for _, op := range q.items {
		if op.EntityID == entityID {
			ops = append(ops, op)
		}
	}
	return ops
}

// pendingByEntity groups queued operations by entity for health auditing.
func (q *opQueue) pendingByEntity() map[string][]*Operation {
	byEntity := make(map[string][]*Operation)
	for _, op := range q.items {
		byEntity[op.EntityID] = append(byEntity[op.EntityID], op)
	}
	return byEntity
}

// boostEntity raises the priority of an entity's queued operations. Loads
// receive loadBoost and writes receive writeBoost, letting the health
// monitor favor reads when breaking a load/save cycle.
func (q *opQueue) boostEntity(entityID string, loadBoost, writeBoost int) {
	changed := false
	for _, op := range q.items {
		if op.EntityID != entityID {
			continue
		}
		if op.Type == OpLoad {
			op.Priority += loadBoost
		} else {
			op.Priority += writeBoost
		}
		changed = true
	}
	if changed {
		q.resort()
	}
}
