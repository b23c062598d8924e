package coordinator

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/sessionflow/internal/log"
	"github.com/zjrosen/sessionflow/internal/pubsub"
)

// Config tunes the coordinator. Zero values take the defaults below.
type Config struct {
	// MaxConcurrent caps operations executing at once. Default 3.
	MaxConcurrent int
	// Debounce is the retry delay when queued candidates are blocked by
	// entity-state compatibility. Default 75ms.
	Debounce time.Duration
	// StarvationAge is the queue wait beyond which an operation preempts
	// priority ordering. Default 10s.
	StarvationAge time.Duration
	// MaxRunTime is how long an operation may execute before the health
	// monitor considers it stuck. Default 30s.
	MaxRunTime time.Duration
	// HealthInterval is the sweep cadence of the health monitor. Default 30s.
	HealthInterval time.Duration
	// ErrorThreshold is the consecutive execution-failure count that
	// triggers a full reset. Default 3.
	ErrorThreshold int
	// KeepSaves is how many queued saves per entity survive coalescing.
	// Default 2.
	KeepSaves int
	// SwitchMarkerTTL bounds how long a switch target keeps load priority
	// if its load never arrives. Default 2m.
	SwitchMarkerTTL time.Duration
	// StallLoadBacklog is the per-entity queued-load count treated as a
	// stall signal. Default 4.
	StallLoadBacklog int
	// RecoveryHook runs after a full reset, typically an integrity check on
	// the backing store. The consecutive-error counter only resets to zero
	// when the hook returns nil. A nil hook counts as success.
	RecoveryHook func(ctx context.Context) error
	// Tracer, when set, wraps each executed operation in a span.
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.Debounce <= 0 {
		c.Debounce = 75 * time.Millisecond
	}
	if c.StarvationAge <= 0 {
		c.StarvationAge = 10 * time.Second
	}
	if c.MaxRunTime <= 0 {
		c.MaxRunTime = 30 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 3
	}
	if c.KeepSaves <= 0 {
		c.KeepSaves = 2
	}
	if c.SwitchMarkerTTL <= 0 {
		c.SwitchMarkerTTL = 2 * time.Minute
	}
	if c.StallLoadBacklog <= 0 {
		c.StallLoadBacklog = 4
	}
	return c
}

// Priority boost magnitudes used by the scheduling heuristics.
const (
	coalesceBoost   = 5 // surviving saves after coalescing
	stallLoadBoost  = 3 // queued loads of a stalled entity
	stallWriteBoost = 1 // queued writes of a stalled entity
	switchDemote    = 5 // saves of the entity being switched away from
)

type inflightOp struct {
	op        *Operation
	startedAt time.Time
	timer     *time.Timer
}

// Coordinator serializes session operations per entity while running
// unrelated work concurrently. One mutex owns the queue, entity states,
// cooldowns, and the in-flight table; work callbacks run outside it.
type Coordinator struct {
	cfg Config

	mu              sync.Mutex
	queue           *opQueue
	state           *stateTracker
	cooldowns       *cooldownTable
	switchTargets   *gocache.Cache // entity ID -> previous entity ID
	inflight        map[string]*inflightOp
	activeCount     int
	consecErrors    int
	lastProgress    time.Time
	resetCount      int
	debouncePending bool
	totals          counters

	seq     atomic.Uint64
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	broker *pubsub.Broker[OperationEvent]
}

type counters struct {
	completed  uint64
	failed     uint64
	timedOut   uint64
	superseded uint64
}

// New builds a coordinator. Call Start before queueing.
func New(cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:           cfg,
		queue:         newOpQueue(cfg.StarvationAge),
		state:         newStateTracker(),
		cooldowns:     newCooldownTable(),
		switchTargets: gocache.New(cfg.SwitchMarkerTTL, time.Minute),
		inflight:      make(map[string]*inflightOp),
		lastProgress:  time.Now(),
		broker:        pubsub.NewBroker[OperationEvent](),
	}
}

// Start begins dispatching and launches the health monitor. The context
// bounds the coordinator's lifetime; cancelling it is equivalent to Stop.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.healthLoop(c.ctx)
	log.Info(log.CatCoord, "coordinator started",
		"max_concurrent", c.cfg.MaxConcurrent,
		"health_interval", c.cfg.HealthInterval)
}

// Stop halts dispatching. Pending operations are rejected; in-flight work is
// abandoned and its futures settle with ErrNotRunning.
func (c *Coordinator) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.cancel()

	c.mu.Lock()
	pending := c.queue.drain()
	abandoned := make([]*Operation, 0, len(c.inflight))
	for _, inf := range c.inflight {
		inf.timer.Stop()
		abandoned = append(abandoned, inf.op)
	}
	c.inflight = make(map[string]*inflightOp)
	c.activeCount = 0
	c.state.reset()
	c.mu.Unlock()

	for _, op := range pending {
		op.future.settle(nil, ErrNotRunning)
	}
	for _, op := range abandoned {
		op.future.settle(nil, ErrNotRunning)
	}

	c.wg.Wait()
	c.broker.Close()
	log.Info(log.CatCoord, "coordinator stopped",
		"rejected_pending", len(pending), "abandoned_inflight", len(abandoned))
}

// OpOption customizes a queued operation.
type OpOption func(*opSettings)

type opSettings struct {
	priority int
	timeout  time.Duration
}

// WithPriority sets the initial priority. Higher runs sooner.
func WithPriority(p int) OpOption {
	return func(s *opSettings) { s.priority = p }
}

// WithTimeout overrides the per-type default execution timeout.
func WithTimeout(d time.Duration) OpOption {
	return func(s *opSettings) { s.timeout = d }
}

// QueueOperation validates and enqueues one operation. The returned Future
// settles exactly once with the work's result or a coordinator error. The
// context cancels the operation cooperatively: before dequeue and before the
// work is invoked; once work has started it runs to completion or timeout.
func (c *Coordinator) QueueOperation(ctx context.Context, typ OpType, entityID string, work WorkFunc, opts ...OpOption) (*Future, error) {
	if !c.running.Load() {
		return nil, ErrNotRunning
	}
	if !typ.IsValid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown operation type " + string(typ)}
	}
	if entityID == "" {
		return nil, &ValidationError{Field: "entityID", Reason: "must not be empty"}
	}
	if work == nil {
		return nil, &ValidationError{Field: "work", Reason: "must not be nil"}
	}

	var settings opSettings
	for _, opt := range opts {
		opt(&settings)
	}

	c.mu.Lock()
	if until := c.cooldowns.until(entityID, typ); !until.IsZero() {
		c.mu.Unlock()
		return nil, &CooldownError{EntityID: entityID, Type: typ, Until: until}
	}
	op := newOperation(ctx, typ, entityID, work, settings.priority, settings.timeout, c.seq.Add(1))
	c.queue.enqueue(op)
	log.Debug(log.CatQueue, "operation enqueued",
		"op", op.ID, "type", typ, "entity", entityID,
		"priority", op.Priority, "queue_len", c.queue.len())
	c.publish(EventEnqueued, op, nil)
	c.dispatchLocked()
	c.mu.Unlock()

	return op.future, nil
}

// TransactionStep is one unit of an atomic multi-step operation.
type TransactionStep struct {
	Type OpType
	Work WorkFunc
}

// ExecuteTransaction queues a group of steps as a single operation against
// one entity. Steps run sequentially; the first error aborts the rest. The
// wrapper is scheduled as a write when any step writes, so entity exclusion
// covers the whole group. The future's value is a []any of step results.
func (c *Coordinator) ExecuteTransaction(ctx context.Context, entityID string, steps []TransactionStep, opts ...OpOption) (*Future, error) {
	if len(steps) == 0 {
		return nil, &ValidationError{Field: "steps", Reason: "must not be empty"}
	}
	wrapperType := OpLoad
	for i, step := range steps {
		if !step.Type.IsValid() {
			return nil, &ValidationError{Field: "steps", Reason: "unknown operation type at step " + strconv.Itoa(i)}
		}
		if step.Work == nil {
			return nil, &ValidationError{Field: "steps", Reason: "nil work at step " + strconv.Itoa(i)}
		}
		if step.Type.isWrite() {
			wrapperType = OpSave
		}
	}

	work := func(ctx context.Context) (any, error) {
		results := make([]any, 0, len(steps))
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			value, err := step.Work(ctx)
			if err != nil {
				return results, err
			}
			results = append(results, value)
		}
		return results, nil
	}
	return c.QueueOperation(ctx, wrapperType, entityID, work, opts...)
}

// MarkSwitching records that the caller is switching sessions. Loads for the
// target preempt priority ordering until the target's first load completes
// (or the marker expires). Queued saves for the previous entity are cancelled
// as superseded except the most recent, which only carries the final state
// worth persisting; the survivor is deprioritized since its author is
// navigating away.
func (c *Coordinator) MarkSwitching(targetID, previousID string) {
	if targetID != "" {
		c.switchTargets.SetDefault(targetID, previousID)
	}

	var superseded []*Operation
	c.mu.Lock()
	if previousID != "" {
		var newest *Operation
		for _, op := range c.queue.opsForEntity(previousID) {
			if op.Type != OpSave {
				continue
			}
			if newest == nil || op.Sequence > newest.Sequence {
				newest = op
			}
		}
		for _, op := range c.queue.opsForEntity(previousID) {
			if op.Type != OpSave || op == newest {
				continue
			}
			c.queue.remove(op.ID)
			superseded = append(superseded, op)
		}
		c.totals.superseded += uint64(len(superseded))
		if newest != nil {
			newest.Priority -= switchDemote
			c.queue.resort()
		}
	}
	c.dispatchLocked()
	c.mu.Unlock()

	for _, op := range superseded {
		err := &SupersededError{EntityID: op.EntityID, Type: op.Type, Reason: "superseded by session switch"}
		op.future.settle(nil, err)
		c.publish(EventSuperseded, op, err)
	}

	log.Debug(log.CatCoord, "switch marked",
		"target", targetID, "previous", previousID, "superseded_saves", len(superseded))
}

// ClearStuckEntity force-settles everything queued or in flight for the
// entity and resets its state. Returns the number of operations cleared.
func (c *Coordinator) ClearStuckEntity(entityID string) int {
	c.mu.Lock()
	var cleared []*Operation
	for _, op := range c.queue.opsForEntity(entityID) {
		c.queue.remove(op.ID)
		cleared = append(cleared, op)
	}
	for id, inf := range c.inflight {
		if inf.op.EntityID != entityID {
			continue
		}
		inf.timer.Stop()
		delete(c.inflight, id)
		c.activeCount--
		cleared = append(cleared, inf.op)
	}
	c.state.clear(entityID)
	c.cooldowns.clearEntity(entityID)
	c.dispatchLocked()
	c.mu.Unlock()

	for _, op := range cleared {
		err := &ForciblyClearedError{EntityID: entityID, Reason: "manual clear"}
		op.future.settle(nil, err)
		c.publish(EventForceCleared, op, err)
	}
	if len(cleared) > 0 {
		log.Warn(log.CatCoord, "entity cleared", "entity", entityID, "ops", len(cleared))
	}
	return len(cleared)
}

// SetCooldown opens (or with d <= 0 closes) a throttle window for the pair.
// Queue requests during the window fail fast with CooldownError.
func (c *Coordinator) SetCooldown(entityID string, typ OpType, d time.Duration) {
	c.mu.Lock()
	c.cooldowns.set(entityID, typ, d)
	c.mu.Unlock()
	log.Debug(log.CatCoord, "cooldown set", "entity", entityID, "type", typ, "duration", d)
}

// Status is a point-in-time snapshot of coordinator state.
type Status struct {
	Running           bool
	QueueLength       int
	ActiveOperations  int
	EntityStates      map[string]EntityState
	ConsecutiveErrors int
	ActiveCooldowns   int
	LastProgress      time.Time
	ResetCount        int
	Completed         uint64
	Failed            uint64
	TimedOut          uint64
	Superseded        uint64
}

// Status reports current queue depth, in-flight work, and error counters.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:           c.running.Load(),
		QueueLength:       c.queue.len(),
		ActiveOperations:  c.activeCount,
		EntityStates:      c.state.snapshot(),
		ConsecutiveErrors: c.consecErrors,
		ActiveCooldowns:   c.cooldowns.count(),
		LastProgress:      c.lastProgress,
		ResetCount:        c.resetCount,
		Completed:         c.totals.completed,
		Failed:            c.totals.failed,
		TimedOut:          c.totals.timedOut,
		Superseded:        c.totals.superseded,
	}
}

func (c *Coordinator) isSwitchTarget(entityID string) bool {
	_, ok := c.switchTargets.Get(entityID)
	return ok
}

