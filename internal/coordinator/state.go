package coordinator

import "time"

// EntityState describes what an entity is currently doing.
type EntityState string

const (
	StateIdle     EntityState = "idle"
	StateLoading  EntityState = "loading"
	StateSaving   EntityState = "saving"
	StateDeleting EntityState = "deleting"
)

// entityRecord tracks the operations in flight for one entity plus metadata
// about the most recent one to finish.
type entityRecord struct {
	active     map[string]OpType // op ID -> type
	lastType   OpType
	lastEnd    time.Time
	lastFailed bool
}

// stateTracker enforces same-entity serialization. Guarded by the
// coordinator mutex; no internal locking.
//
// Writes (save, delete, setActive) are mutually exclusive with everything.
// The one exception: a load may begin while a single save is in flight,
// since the reader sees either the pre-save or post-save snapshot and both
// are consistent. Loads serialize with loads to keep duplicate reads cheap.
type stateTracker struct {
	entities map[string]*entityRecord
}

func newStateTracker() *stateTracker {
	return &stateTracker{entities: make(map[string]*entityRecord)}
}

// canBegin reports whether an operation of the given type may start on the
// entity right now.
func (s *stateTracker) canBegin(entityID string, typ OpType) bool {
	rec := s.entities[entityID]
	if rec == nil || len(rec.active) == 0 {
		return true
	}
	if typ != OpLoad {
		return false
	}
	if len(rec.active) != 1 {
		return false
	}
	for _, activeType := range rec.active {
		if activeType != OpSave {
			return false
		}
	}
	return true
}

// begin records the operation as in flight. Callers must have checked
// canBegin under the same lock hold.
func (s *stateTracker) begin(entityID, opID string, typ OpType) {
	rec := s.entities[entityID]
	if rec == nil {
		rec = &entityRecord{active: make(map[string]OpType)}
		s.entities[entityID] = rec
	}
	rec.active[opID] = typ
}

// end marks the operation finished. The entity returns to idle once its last
// in-flight operation ends, regardless of outcome.
func (s *stateTracker) end(entityID, opID string, failed bool) {
	rec := s.entities[entityID]
	if rec == nil {
		return
	}
	typ, ok := rec.active[opID]
	if !ok {
		return
	}
	delete(rec.active, opID)
	rec.lastType = typ
	rec.lastEnd = time.Now()
	rec.lastFailed = failed
	// The record is kept for last-op metadata; state derives to idle once
	// active is empty.
}

// stateOf derives the entity's visible state from its in-flight operations.
// Any write in flight dominates; setActive reports as saving since it
// mutates the entity the same way.
func (s *stateTracker) stateOf(entityID string) EntityState {
	rec := s.entities[entityID]
	if rec == nil || len(rec.active) == 0 {
		return StateIdle
	}
	state := StateIdle
	for _, typ := range rec.active {
		switch typ {
		case OpDelete:
			return StateDeleting
		case OpSave, OpSetActive:
			state = StateSaving
		case OpLoad:
			if state == StateIdle {
				state = StateLoading
			}
		}
	}
	return state
}

// activeOps returns the IDs of operations in flight for the entity.
func (s *stateTracker) activeOps(entityID string) []string {
	rec := s.entities[entityID]
	if rec == nil {
		return nil
	}
	ids := make([]string, 0, len(rec.active))
	for id := range rec.active {
		ids = append(ids, id)
	}
	return ids
}

// clear forcibly drops all tracking for an entity.
func (s *stateTracker) clear(entityID string) {
	delete(s.entities, entityID)
}

// reset drops all entity tracking.
func (s *stateTracker) reset() {
	s.entities = make(map[string]*entityRecord)
}

// snapshot returns the non-idle entities and their states.
func (s *stateTracker) snapshot() map[string]EntityState {
	states := make(map[string]EntityState)
	for id, rec := range s.entities {
		if len(rec.active) == 0 {
			continue
		}
		states[id] = s.stateOf(id)
	}
	return states
}
