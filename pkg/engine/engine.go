// Package engine implements the discrete-event simulation core: a
// priority-ordered event timeline, timers, deferred callbacks, and the
// trace sink hookup. It is strictly single-threaded and cooperative;
// no component spawns goroutines and no component is reentered while
// the engine is mid-dispatch (see EdfScheduler.Resched and doResched in
// the scheduler package for resched()'s defer() discipline).
package engine

import (
	"container/heap"

	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// TimerID identifies a scheduled timer. It becomes invalid once the
// timer fires or is canceled.
type TimerID uint64

// JobArrivalHandler routes a released job to the allocator. It is
// installed exactly once via SetJobArrivalHandler.
type JobArrivalHandler func(e *Engine, task workload.TaskID, duration units.Duration)

// Engine owns the event timeline and the platform it drives.
type Engine struct {
	platform *hardware.Platform
	sink     Sink

	now      units.TimePoint
	queue    eventHeap
	sequence uint64
	nextTimerID TimerID

	// timers maps a still-live TimerID to its heap entry, so Cancel can
	// use heap.Remove in O(log n) instead of scanning.
	timers map[TimerID]*scheduledEvent

	arrivalHandler JobArrivalHandler

	// deferredBucket batches defer() calls made during dispatch of the
	// bucket currently in flight; they are flushed once that bucket is
	// fully drained (see Step()).
	deferredBucket []func(*Engine)

	dispatching bool
	haveBucket  bool
	bucket      EventKey

	halted bool
}

// RequestHalt asks the engine to stop processing further events: the
// run loops check it before every Step, so the event being dispatched
// finishes and no later event runs, not even the rest of its bucket.
// Used by DeadlineMissPolicy ==
// StopSimulation.
func (e *Engine) RequestHalt() { e.halted = true }

// Halted reports whether RequestHalt has been called.
func (e *Engine) Halted() bool { return e.halted }

// New constructs an Engine over platform. sink may be nil (no tracing).
func New(platform *hardware.Platform, sink Sink) *Engine {
	e := &Engine{
		platform: platform,
		sink:     sink,
		timers:   make(map[TimerID]*scheduledEvent),
	}
	heap.Init(&e.queue)
	return e
}

func (e *Engine) Platform() *hardware.Platform { return e.platform }
func (e *Engine) Now() units.TimePoint         { return e.now }

// BindPlatform attaches platform to an Engine constructed before the
// platform existed. Loaders need the engine to exist first (schedulers
// built while constructing the platform hold a reference to it), so
// New accepts a nil platform and the loader calls this once
// construction finishes.
func (e *Engine) BindPlatform(platform *hardware.Platform) { e.platform = platform }

// SetJobArrivalHandler installs the allocator's entry point. A second
// call returns HandlerAlreadySetError.
func (e *Engine) SetJobArrivalHandler(h JobArrivalHandler) error {
	if e.arrivalHandler != nil {
		return simerr.NewHandlerAlreadySetError("job arrival handler already installed")
	}
	e.arrivalHandler = h
	return nil
}

func (e *Engine) nextSequence() uint64 {
	e.sequence++
	return e.sequence
}

func (e *Engine) post(t units.TimePoint, pr Priority, kind string, handler func(*Engine)) *scheduledEvent {
	ev := &scheduledEvent{
		key:     EventKey{Time: t, Priority: pr, Sequence: e.nextSequence()},
		kind:    kind,
		handler: handler,
	}
	heap.Push(&e.queue, ev)
	return ev
}

// PostJobArrival posts a JobArrival event at t for task, with the
// given job duration (reference-unit work), at PriorityJobArrival.
func (e *Engine) PostJobArrival(t units.TimePoint, task workload.TaskID, duration units.Duration) {
	e.post(t, PriorityJobArrival, "job_arrival", func(eng *Engine) {
		if eng.arrivalHandler != nil {
			eng.arrivalHandler(eng, task, duration)
		}
	})
}

// PostJobFinished posts a JobFinished event at t, at
// PriorityJobCompletion (the highest-priority class, so that a job
// finishing and another arriving at the same instant frees the
// processor before the arrival is processed). It returns a handle so
// the scheduler can cancel the pending completion if the server is
// preempted before it fires.
func (e *Engine) PostJobFinished(t units.TimePoint, handler func(*Engine)) *TimerHandle {
	return e.postCancellable(t, PriorityJobCompletion, "job_finished", handler)
}

// PostDeadlineMiss posts a deadline-miss check at t, at
// PriorityDeadlineMiss. A job that completes exactly at its deadline
// does not miss, because PriorityJobCompletion sorts before
// PriorityDeadlineMiss at the same timestamp.
func (e *Engine) PostDeadlineMiss(t units.TimePoint, handler func(*Engine)) *TimerHandle {
	return e.postCancellable(t, PriorityDeadlineMiss, "deadline_miss", handler)
}

// PostProcessorAvailable posts a processor-freed event (e.g. budget
// exhausted releasing a core) at t, at PriorityProcessorAvailable.
func (e *Engine) PostProcessorAvailable(t units.TimePoint, handler func(*Engine)) {
	e.post(t, PriorityProcessorAvailable, "processor_available", handler)
}

// TimerHandle is returned by timer-posting APIs so callers can cancel.
type TimerHandle struct {
	id TimerID
	e  *Engine
}

// postCancellable posts an event and registers it in the live-timer
// table. The id is removed from the table before handler runs, so a
// Cancel racing a fired event is a no-op rather than a stale removal.
func (e *Engine) postCancellable(t units.TimePoint, pr Priority, kind string, handler func(*Engine)) *TimerHandle {
	e.nextTimerID++
	id := e.nextTimerID
	ev := e.post(t, pr, kind, func(eng *Engine) {
		delete(eng.timers, id)
		handler(eng)
	})
	e.timers[id] = ev
	return &TimerHandle{id: id, e: e}
}

// AddTimer schedules callback to fire at t with PriorityTimerDefault
// (the lowest priority at any given time, so reactive hooks observe
// stabilized state). Returns a TimerHandle for cancellation. The id is
// removed from the live-timer table before callback runs, keeping
// re-entrant cancellation from inside the callback safe.
func (e *Engine) AddTimer(t units.TimePoint, callback func(*Engine)) *TimerHandle {
	return e.postCancellable(t, PriorityTimerDefault, "timer", callback)
}

// Cancel removes a still-pending timer. Canceling a timer that has
// already fired or been canceled is a no-op. A handle always refers to
// a registered timer, so Cancel never fails; raw ids that were never
// registered are rejected by CancelTimer.
func (h *TimerHandle) Cancel() error {
	ev, ok := h.e.timers[h.id]
	if !ok {
		return nil // already fired: no-op
	}
	delete(h.e.timers, h.id)
	if ev.index >= 0 && ev.index < len(h.e.queue) && h.e.queue[ev.index] == ev {
		heap.Remove(&h.e.queue, ev.index)
	}
	return nil
}

// CancelTimer cancels by raw TimerID, raising InvalidStateError if id
// was never registered. Ids are issued in increasing order, so an id
// no greater than the last one issued that is no longer live has
// already fired or been canceled, and canceling it is a no-op, as with
// Cancel on a TimerHandle.
func (e *Engine) CancelTimer(id TimerID) error {
	ev, ok := e.timers[id]
	if !ok {
		if id == 0 || id > e.nextTimerID {
			return simerr.NewInvalidStateError("cancel of unknown timer id")
		}
		return nil // already fired or canceled: no-op
	}
	delete(e.timers, id)
	if ev.index >= 0 {
		heap.Remove(&e.queue, ev.index)
	}
	return nil
}

// Defer schedules callback to run at the current time, after every
// event in the bucket currently being dispatched has been processed.
// This is the hook schedulers use to batch reactions (e.g. resched())
// to a cluster of same-instant arrivals instead of reacting once per
// arrival.
func (e *Engine) Defer(callback func(*Engine)) {
	if e.dispatching {
		e.deferredBucket = append(e.deferredBucket, callback)
		return
	}
	// Called outside dispatch (e.g. from loader setup): queue it as a
	// timer at the current time, so it runs on a later Step after any
	// higher-priority events already posted for this instant.
	e.AddTimer(e.now, callback)
}

// Empty reports whether the event queue has nothing left to process.
func (e *Engine) Empty() bool { return len(e.queue) == 0 }

// PeekTime returns the time of the next event, and false if the queue
// is empty.
func (e *Engine) PeekTime() (units.TimePoint, bool) {
	if len(e.queue) == 0 {
		return 0, false
	}
	return e.queue[0].key.Time, true
}

// Step pops the single lowest-key event, advances the time cursor to
// its timestamp, and dispatches it. It returns false if the queue was
// empty. Deferred callbacks registered via Defer() during dispatch of
// a (time, priority) bucket run once that bucket is fully drained —
// i.e. as soon as Step observes the next event belongs to a different
// bucket, or the queue empties.
func (e *Engine) Step() bool {
	if len(e.queue) == 0 {
		// Deferred callbacks may schedule more work (a resched posting
		// completions); only report exhaustion once flushing adds nothing.
		e.flushDeferred()
		e.haveBucket = false
		if len(e.queue) == 0 {
			return false
		}
	}
	head := e.queue[0]
	if e.haveBucket && (!head.key.Time.Equal(e.bucket.Time) || head.key.Priority != e.bucket.Priority) {
		// The in-flight bucket is done: run its deferred callbacks
		// before touching the next bucket. Flushing may insert or cancel
		// events, so the head is re-read afterwards.
		e.flushDeferred()
		if len(e.queue) == 0 {
			e.haveBucket = false
			return false
		}
	}
	ev := heap.Pop(&e.queue).(*scheduledEvent)
	e.haveBucket = true
	e.bucket = EventKey{Time: ev.key.Time, Priority: ev.key.Priority}

	simerr.Assert(!ev.key.Time.Before(e.now), "event cursor must not decrease")
	e.now = ev.key.Time

	e.dispatching = true
	ev.handler(e)
	e.dispatching = false

	if len(e.queue) == 0 {
		e.flushDeferred()
	}
	return true
}

func (e *Engine) flushDeferred() {
	for len(e.deferredBucket) > 0 {
		batch := e.deferredBucket
		e.deferredBucket = nil
		for _, cb := range batch {
			cb(e)
		}
	}
}

// RunUntil repeatedly calls Step while the next event's time <= t and
// no halt has been requested. The last processed bucket's deferred
// callbacks run before returning, so callers observe settled state
// even when later events remain past the horizon.
func (e *Engine) RunUntil(t units.TimePoint) {
	for !e.halted {
		peek, ok := e.PeekTime()
		if !ok || peek.After(t) {
			if len(e.deferredBucket) == 0 {
				return
			}
			e.flushDeferred()
			continue
		}
		e.Step()
	}
}

// RunToCompletion drains the queue entirely, unless halted early.
func (e *Engine) RunToCompletion() {
	for !e.halted && e.Step() {
	}
}
