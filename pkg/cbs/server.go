// Package cbs implements the Constant Bandwidth Server: the per-task
// bandwidth-isolation state machine (budget, virtual deadline, FIFO
// job queue) that the EDF scheduler dispatches. Reclamation policy
// (plain CBS / GRUB / CASH) is injected so this package never imports
// the scheduler: it declares the interfaces it needs (ReclamationPolicy,
// Hooks) and the scheduler package supplies concrete implementations.
package cbs

import (
	"math"

	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// State is one of the four CBS server states.
type State int

const (
	Inactive State = iota
	Ready
	Running
	NonContending // GRUB only
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case NonContending:
		return "non_contending"
	default:
		return "unknown"
	}
}

// DeadlineMissPolicy controls the effect of a posted DEADLINE_MISS
// event once the deadline timer actually fires.
type DeadlineMissPolicy int

const (
	Continue DeadlineMissPolicy = iota
	AbortJob
	AbortTask
	StopSimulation
)

// ReclamationPolicy is the plug-in surface for bandwidth reclamation
// (plain CBS, GRUB, CASH). See pkg/reclamation for implementations.
type ReclamationPolicy interface {
	// OnEarlyCompletion is called when a job completes with budget and
	// time remaining and the server's queue is empty. A true return
	// means the server should enter NonContending rather than going
	// straight to Inactive (GRUB semantics).
	OnEarlyCompletion(s *Server, residual units.Duration) (enterNonContending bool)
	// OnBudgetExhausted is called when a running server drains its
	// budget to zero; a positive return grants that much extra budget
	// instead of the default postpone-deadline-and-refill behavior.
	OnBudgetExhausted(s *Server) (grantedExtra units.Duration)
	// ComputeVirtualTime advances virtual time given exec seconds of
	// wall-clock execution already converted to reference-frequency
	// units.
	ComputeVirtualTime(s *Server, vtNow units.TimePoint, exec units.Duration) units.TimePoint
	// BudgetDrainRate returns the factor to multiply a wall-clock
	// duration by to get the budget consumed, given execRate (the
	// work-drain conversion factor already in effect for this server).
	BudgetDrainRate(s *Server, execRate float64) float64
	OnServerStateChange(s *Server, from, to State)
}

// Hooks lets a Server reach back into its owning scheduler without
// this package importing the scheduler package.
type Hooks interface {
	ActiveUtilization() float64
	AddActiveUtilization(delta float64)
	Resched()
	ReclamationPolicy() ReclamationPolicy
	DeadlineMissPolicy() DeadlineMissPolicy
	OnDeadlineMissed(s *Server)
}

// ServerID is a scheduler-assigned arena index.
type ServerID int

// Server is the per-task CBS bandwidth server.
type Server struct {
	id   ServerID
	task workload.TaskID
	eng  *engine.Engine
	hk   Hooks

	budget units.Duration // Q
	period units.Duration // T

	remaining units.Duration
	virtualDeadline units.TimePoint // d_s
	virtualTime     units.TimePoint // vt

	state State
	queue []*workload.Job

	lastDispatch units.TimePoint
	assignedProcessor int // -1 if not dispatched; hardware.ProcessorID value

	deadlineTimer *engine.TimerHandle
}

// NewServer constructs an Inactive server attached to task with
// bandwidth Q/T. remaining starts at zero, not budget: a server that
// has never run has no carried-over budget, so its first Enqueue
// takes the Inactive state's "fresh bandwidth window" branch rather
// than reusing an uninitialized virtual deadline of zero.
func NewServer(id ServerID, task workload.TaskID, eng *engine.Engine, hk Hooks, budget, period units.Duration) *Server {
	return &Server{
		id:                id,
		task:              task,
		eng:               eng,
		hk:                hk,
		budget:            budget,
		period:            period,
		remaining:         0,
		state:             Inactive,
		assignedProcessor: -1,
	}
}

func (s *Server) ID() ServerID                 { return s.id }
func (s *Server) Task() workload.TaskID        { return s.task }
func (s *Server) State() State                 { return s.state }
func (s *Server) Budget() units.Duration       { return s.budget }
func (s *Server) Period() units.Duration       { return s.period }
func (s *Server) Remaining() units.Duration    { return s.remaining }
func (s *Server) VirtualDeadline() units.TimePoint { return s.virtualDeadline }
func (s *Server) VirtualTime() units.TimePoint     { return s.virtualTime }
func (s *Server) QueueLen() int                { return len(s.queue) }
func (s *Server) AssignedProcessor() int       { return s.assignedProcessor }
func (s *Server) LastDispatch() units.TimePoint { return s.lastDispatch }

// Utilization returns Q/T.
func (s *Server) Utilization() float64 { return float64(s.budget) / float64(s.period) }

func (s *Server) setState(to State) {
	from := s.state
	s.state = to
	if s.hk.ReclamationPolicy() != nil {
		s.hk.ReclamationPolicy().OnServerStateChange(s, from, to)
	}
}

// Enqueue appends a newly-arrived job and runs the Inactive/NonContending
// arrival transitions from the CBS state table.
func (s *Server) Enqueue(job *workload.Job) {
	s.queue = append(s.queue, job)

	switch s.state {
	case Inactive:
		if !s.remaining.Positive() {
			// remaining <= 0: fresh bandwidth window
			base := s.virtualDeadline
			if s.eng.Now().After(base) {
				base = s.eng.Now()
			}
			s.virtualDeadline = base.Add(s.period)
			s.remaining = s.budget
		}
		s.hk.AddActiveUtilization(s.Utilization())
		s.postDeadlineMiss()
		s.setState(Ready)
		s.traceServReady()
		s.hk.Resched()
	case NonContending:
		if s.deadlineTimer != nil {
			_ = s.deadlineTimer.Cancel()
			s.deadlineTimer = nil
		}
		s.postDeadlineMiss()
		s.setState(Ready)
		s.traceServReady()
		s.hk.Resched()
	case Ready, Running:
		// already contending; nothing else to do but let resched pick it
		// up on the next bucket flush.
	}
}

func (s *Server) traceServReady() {
	s.eng.Trace(s.eng.Now(), "serv_ready", func(sk engine.Sink) {
		sk.Field("sid", int(s.id))
		sk.Field("tid", int(s.task))
	})
}

func (s *Server) postDeadlineMiss() {
	// A preserved virtual deadline can already lie in the past when a
	// job arrives late into a window with leftover budget; the miss then
	// fires immediately rather than at a time before the cursor.
	at := s.virtualDeadline
	if s.eng.Now().After(at) {
		at = s.eng.Now()
	}
	s.deadlineTimer = s.eng.PostDeadlineMiss(at, func(e *engine.Engine) {
		s.hk.OnDeadlineMissed(s)
	})
}

// Dispatch transitions Ready -> Running on the given processor at the
// current engine time.
func (s *Server) Dispatch(processor int) {
	simerr.Assert(s.state == Ready, "Dispatch called on a server not in Ready state")
	s.assignedProcessor = processor
	s.lastDispatch = s.eng.Now()
	s.setState(Running)
}

// execRate is the single conversion helper for DVFS-scaled work and
// budget drain; nothing else in the scheduling path multiplies raw
// frequency ratios by hand.
func execRate(f units.Frequency, fRefMax units.Frequency, perf float64) float64 {
	return float64(f) / float64(fRefMax) * perf
}

// ExecRate exports execRate for schedulers computing how much work a
// wall-clock duration represents before calling Preempt/Exhaust.
func ExecRate(f units.Frequency, fRefMax units.Frequency, perf float64) float64 {
	return execRate(f, fRefMax, perf)
}

// Accumulate applies wall-clock duration delta of execution at the
// given clock rate (f, relative to fRefMax) on a processor of
// performance perf, draining both the job's remaining work and this
// server's budget, and advancing virtual time via the reclamation
// policy. It does not change state; callers (Preempt, budget-exhaustion
// detection, completion) do that afterward based on the resulting
// remaining/budget values.
func (s *Server) Accumulate(job *workload.Job, delta units.Duration, f, fRefMax units.Frequency, perf float64) {
	rate := execRate(f, fRefMax, perf)
	work := units.Duration(float64(delta) * rate)
	job.Drain(work)

	drainRate := 1.0
	if pol := s.hk.ReclamationPolicy(); pol != nil {
		drainRate = pol.BudgetDrainRate(s, rate)
	} else {
		drainRate = 1.0 / rate
	}
	budgetUsed := units.Duration(float64(delta) * drainRate)
	s.remaining = (s.remaining - budgetUsed).ClampNonNegative()

	if pol := s.hk.ReclamationPolicy(); pol != nil {
		s.virtualTime = pol.ComputeVirtualTime(s, s.virtualTime, work)
	} else {
		s.virtualTime = s.virtualTime.Add(units.Duration(float64(work) / s.Utilization()))
	}
}

// RestartAccounting resets the execution-accounting window to the
// current time. Schedulers call it after folding elapsed execution
// into the budget via Accumulate while the server keeps Running, e.g.
// across a mid-window frequency change.
func (s *Server) RestartAccounting() {
	s.lastDispatch = s.eng.Now()
}

// Abort empties the queue and forces the server Inactive, releasing
// its U_active contribution if it was contending. The caller must
// detach it from any processor first.
func (s *Server) Abort() {
	simerr.Assert(s.state != Running, "Abort called while still Running")
	s.queue = nil
	if s.deadlineTimer != nil {
		_ = s.deadlineTimer.Cancel()
		s.deadlineTimer = nil
	}
	if s.state == Ready || s.state == NonContending {
		s.deactivate()
	}
}

// Preempt transitions Running -> Ready, keeping whatever budget/vt
// Accumulate has already applied.
func (s *Server) Preempt() {
	simerr.Assert(s.state == Running, "Preempt called on a server not Running")
	s.assignedProcessor = -1
	s.setState(Ready)
}

// BudgetExhausted handles the Running -> Ready transition on budget
// depletion: the reclamation policy gets first refusal via a grant;
// absent a grant the deadline is postponed by one period and the
// budget refilled in full.
func (s *Server) BudgetExhausted() {
	simerr.Assert(s.state == Running, "BudgetExhausted called on a server not Running")
	s.assignedProcessor = -1

	grant := units.Duration(0)
	if pol := s.hk.ReclamationPolicy(); pol != nil {
		grant = pol.OnBudgetExhausted(s)
	}
	if grant.Positive() {
		s.remaining = grant
	} else {
		s.virtualDeadline = s.virtualDeadline.Add(s.period)
		s.remaining = s.budget
		if s.deadlineTimer != nil {
			_ = s.deadlineTimer.Cancel()
		}
		s.postDeadlineMiss()
	}
	s.setState(Ready)
}

// CompleteJob pops the finished job off the queue (it must be the
// front) and runs the Running -> {Inactive, NonContending} transition
// table when the queue is now empty.
func (s *Server) CompleteJob() {
	simerr.Assert(len(s.queue) > 0, "CompleteJob called with an empty queue")
	s.queue = s.queue[1:]
	s.assignedProcessor = -1

	if len(s.queue) > 0 {
		// More queued work: stay contending under the same (remaining,
		// d_s) window, deadline posting included.
		s.setState(Ready)
		return
	}
	if s.deadlineTimer != nil {
		_ = s.deadlineTimer.Cancel()
		s.deadlineTimer = nil
	}

	residual := s.remaining
	enterNonContending := false
	if pol := s.hk.ReclamationPolicy(); pol != nil {
		enterNonContending = pol.OnEarlyCompletion(s, residual)
	}
	if enterNonContending {
		s.setState(NonContending)
		s.deadlineTimer = s.eng.AddTimer(s.virtualDeadline, func(e *engine.Engine) {
			s.deadlineReached()
		})
		return
	}
	s.deactivate()
}

func (s *Server) deadlineReached() {
	simerr.Assert(s.state == NonContending, "deadline-reached timer fired outside NonContending")
	s.deactivate()
}

func (s *Server) deactivate() {
	s.deadlineTimer = nil
	s.hk.AddActiveUtilization(-s.Utilization())
	s.setState(Inactive)
	s.eng.Trace(s.eng.Now(), "serv_inactive", func(sk engine.Sink) {
		sk.Field("sid", int(s.id))
		sk.Field("tid", int(s.task))
	})
}

// WallClockToFinishWork returns how much wall-clock time is needed to
// drain the current job's remaining work at the given clock rate.
func (s *Server) WallClockToFinishWork(f, fRefMax units.Frequency, perf float64) units.Duration {
	job := s.CurrentJob()
	if job == nil {
		return 0
	}
	rate := execRate(f, fRefMax, perf)
	if rate <= 0 {
		return units.Duration(math.Inf(1))
	}
	return units.Duration(float64(job.RemainingWork()) / rate)
}

// WallClockToExhaustBudget returns how much wall-clock time is needed
// to drain this server's remaining budget at the given clock rate.
func (s *Server) WallClockToExhaustBudget(f, fRefMax units.Frequency, perf float64) units.Duration {
	rate := execRate(f, fRefMax, perf)
	drainRate := 1.0 / rate
	if pol := s.hk.ReclamationPolicy(); pol != nil {
		drainRate = pol.BudgetDrainRate(s, rate)
	}
	if drainRate <= 0 {
		return units.Duration(math.Inf(1))
	}
	return units.Duration(float64(s.remaining) / drainRate)
}

// CurrentJob returns the job at the front of the FIFO, or nil.
func (s *Server) CurrentJob() *workload.Job {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}
