// Package scheduler implements the per-cluster EDF ready queue:
// admission tests, dispatch via resched(), and utilization tracking.
// It declares the DVFSPolicy interface it calls out to (concrete
// policies live in pkg/dvfs, which imports this package — not the
// other way around, so there is no cycle).
package scheduler

import (
	"sort"

	"github.com/fillien/schedsim-go/pkg/cbs"
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// AdmissionTest selects which sufficient schedulability test
// CanAdmit applies.
type AdmissionTest int

const (
	CapacityBound AdmissionTest = iota
	GFB                           // Goossens-Funk-Baruah
)

// DVFSPolicy is notified of utilization and processor-power-state
// changes so it can retarget frequency/active-core-count. Concrete
// policies live in pkg/dvfs.
type DVFSPolicy interface {
	OnUtilizationChanged(sched *EdfScheduler)
	OnProcessorIdle(sched *EdfScheduler, proc *hardware.Processor)
	OnProcessorActive(sched *EdfScheduler, proc *hardware.Processor)
}

// EdfScheduler owns a fixed processor list and a set of CBS servers,
// dispatching by ascending virtual deadline.
type EdfScheduler struct {
	eng      *engine.Engine
	platform *hardware.Platform
	processors []hardware.ProcessorID

	clockDomain hardware.ClockDomainID

	servers      []*cbs.Server
	serverByTask map[workload.TaskID]cbs.ServerID

	uTotal float64
	uActive float64
	uMax   float64

	admissionTest      AdmissionTest
	reclamation        cbs.ReclamationPolicy
	deadlineMissPolicy cbs.DeadlineMissPolicy
	dvfs               DVFSPolicy

	completionTimers map[cbs.ServerID]*engine.TimerHandle

	// expectedArrivals, when set for a task, releases the server's
	// bandwidth once that many jobs have completed and its queue is
	// empty (used by batch experiments).
	expectedArrivals map[workload.TaskID]int
	completedJobs    map[workload.TaskID]int
}

// New constructs an EdfScheduler over the given fixed processor set,
// all belonging to the same clock domain (cluster).
func New(eng *engine.Engine, platform *hardware.Platform, clockDomain hardware.ClockDomainID, processors []hardware.ProcessorID, admission AdmissionTest, reclamation cbs.ReclamationPolicy, deadlineMissPolicy cbs.DeadlineMissPolicy) *EdfScheduler {
	return &EdfScheduler{
		eng:               eng,
		platform:          platform,
		processors:        processors,
		clockDomain:       clockDomain,
		serverByTask:      make(map[workload.TaskID]cbs.ServerID),
		admissionTest:     admission,
		reclamation:       reclamation,
		deadlineMissPolicy: deadlineMissPolicy,
		completionTimers:  make(map[cbs.ServerID]*engine.TimerHandle),
		expectedArrivals:  make(map[workload.TaskID]int),
		completedJobs:     make(map[workload.TaskID]int),
	}
}

func (sch *EdfScheduler) SetDVFSPolicy(p DVFSPolicy) { sch.dvfs = p }

// SetReclamationPolicy (re)binds the reclamation policy after
// construction. Loaders use this to break the construction cycle
// between a scheduler and a reclamation policy like GRUB that needs
// the scheduler itself as its ActiveUtilizationSource.
func (sch *EdfScheduler) SetReclamationPolicy(p cbs.ReclamationPolicy) { sch.reclamation = p }

func (sch *EdfScheduler) Engine() *engine.Engine            { return sch.eng }
func (sch *EdfScheduler) Platform() *hardware.Platform       { return sch.platform }
func (sch *EdfScheduler) ClockDomain() hardware.ClockDomainID { return sch.clockDomain }
func (sch *EdfScheduler) Processors() []hardware.ProcessorID { return sch.processors }
func (sch *EdfScheduler) TotalUtilization() float64          { return sch.uTotal }
func (sch *EdfScheduler) MaxUtilization() float64            { return sch.uMax }
func (sch *EdfScheduler) NumProcessors() int                 { return len(sch.processors) }
func (sch *EdfScheduler) Servers() []*cbs.Server              { return sch.servers }

// --- cbs.Hooks ---

func (sch *EdfScheduler) ActiveUtilization() float64 { return sch.uActive }

func (sch *EdfScheduler) AddActiveUtilization(delta float64) {
	sch.uActive += delta
	if sch.uActive < 0 {
		sch.uActive = 0
	}
	if sch.dvfs != nil {
		sch.dvfs.OnUtilizationChanged(sch)
	}
}

func (sch *EdfScheduler) Resched() {
	sch.eng.Defer(func(e *engine.Engine) { sch.doResched() })
}

func (sch *EdfScheduler) ReclamationPolicy() cbs.ReclamationPolicy { return sch.reclamation }
func (sch *EdfScheduler) DeadlineMissPolicy() cbs.DeadlineMissPolicy { return sch.deadlineMissPolicy }

func (sch *EdfScheduler) OnDeadlineMissed(s *cbs.Server) {
	sch.eng.Trace(sch.eng.Now(), "deadline_miss", func(sk engine.Sink) {
		sk.Field("sid", int(s.ID()))
		sk.Field("tid", int(s.Task()))
	})
	switch sch.deadlineMissPolicy {
	case cbs.Continue:
		// nothing else to do
	case cbs.AbortJob:
		if job := s.CurrentJob(); job != nil {
			s.CompleteJob()
			sch.Resched()
		}
	case cbs.AbortTask:
		sch.Detach(s.Task())
	case cbs.StopSimulation:
		sch.eng.RequestHalt()
	}
}

// --- admission ---

// CanAdmit reports whether a server with bandwidth Q/T can be
// admitted under the configured sufficient schedulability test.
func (sch *EdfScheduler) CanAdmit(q, t units.Duration) bool {
	m := float64(len(sch.processors))
	uNew := float64(q) / float64(t)
	switch sch.admissionTest {
	case GFB:
		uMax := sch.uMax
		if uNew > uMax {
			uMax = uNew
		}
		return sch.uTotal+uNew <= m-(m-1)*uMax
	default: // CapacityBound
		return sch.uTotal+uNew <= m
	}
}

// Admit creates and registers a new server for task with bandwidth
// Q/T, failing with AdmissionError if CanAdmit refuses it.
func (sch *EdfScheduler) Admit(task workload.TaskID, q, t units.Duration) (*cbs.Server, error) {
	if !sch.CanAdmit(q, t) {
		return nil, simerr.NewAdmissionError("insufficient capacity", float64(q)/float64(t), float64(len(sch.processors))-sch.uTotal)
	}
	id := cbs.ServerID(len(sch.servers))
	srv := cbs.NewServer(id, task, sch.eng, sch, q, t)
	sch.servers = append(sch.servers, srv)
	sch.serverByTask[task] = id
	sch.uTotal += srv.Utilization()
	if srv.Utilization() > sch.uMax {
		sch.uMax = srv.Utilization()
	}
	return srv, nil
}

// ServerFor returns the server already registered for task, if any.
func (sch *EdfScheduler) ServerFor(task workload.TaskID) (*cbs.Server, bool) {
	id, ok := sch.serverByTask[task]
	if !ok {
		return nil, false
	}
	return sch.servers[id], true
}

// SetExpectedArrivals records how many jobs task is expected to
// release; once that many have completed with an empty queue, Detach
// may be used to release its bandwidth (see §4.3 "Detach").
func (sch *EdfScheduler) SetExpectedArrivals(task workload.TaskID, n int) {
	sch.expectedArrivals[task] = n
}

// SubmitJob is the EDF scheduler's job-arrival entry point: locate or
// lazily create the server for task (admitting it if new), append job
// to its FIFO, and let Enqueue's own state machine trigger U_active
// bookkeeping, DVFS notification, and resched().
func (sch *EdfScheduler) SubmitJob(task workload.TaskID, jobID workload.JobID, totalWork units.Duration, absoluteDeadline units.TimePoint, q, t units.Duration) error {
	srv, ok := sch.ServerFor(task)
	if !ok {
		var err error
		srv, err = sch.Admit(task, q, t)
		if err != nil {
			return err
		}
	}
	job := workload.NewJob(jobID, task, totalWork, absoluteDeadline)
	sch.eng.Trace(sch.eng.Now(), "job_arrival", func(sk engine.Sink) {
		sk.Field("tid", int(task))
		sk.Field("sid", int(srv.ID()))
	})
	srv.Enqueue(job)
	return nil
}

// Detach releases a server's bandwidth entirely: used by the
// AbortTask deadline-miss policy and by batch experiments once
// SetExpectedArrivals' count of jobs has completed with an empty
// queue. A still-running server is stopped and its processor freed
// before the bandwidth is returned.
func (sch *EdfScheduler) Detach(task workload.TaskID) {
	srv, ok := sch.ServerFor(task)
	if !ok {
		return
	}
	if handle, ok := sch.completionTimers[srv.ID()]; ok {
		_ = handle.Cancel()
		delete(sch.completionTimers, srv.ID())
	}
	if srv.State() == cbs.Running {
		proc := sch.platform.Processor(hardware.ProcessorID(srv.AssignedProcessor()))
		sch.stopRunning(proc, srv)
	}
	srv.Abort()
	sch.uTotal -= srv.Utilization()
	if sch.uTotal < 0 {
		sch.uTotal = 0
	}
	delete(sch.serverByTask, task)
	delete(sch.expectedArrivals, task)
	delete(sch.completedJobs, task)
	sch.Resched()
}

// --- dispatch ---

func (sch *EdfScheduler) refFreqAndPerf(proc *hardware.Processor) (units.Frequency, units.Frequency, float64) {
	domain := sch.platform.ClockDomain(proc.ClockDomain())
	pt := sch.platform.ProcessorType(proc.ProcessorType())
	refPerf := sch.platform.ReferenceType().Performance()
	return domain.Current(), domain.FreqMax(), pt.Performance() / refPerf
}

// doResched is the real resched() body; it only ever runs via
// Engine.Defer (see Resched), so it is never reentered while a
// previous bucket's dispatch or trace emission is still in flight.
func (sch *EdfScheduler) doResched() {
	var availableProcs []*hardware.Processor
	var idleAtStart []*hardware.Processor
	for _, pid := range sch.processors {
		proc := sch.platform.Processor(pid)
		switch proc.State() {
		case hardware.StateRunning:
			availableProcs = append(availableProcs, proc)
		case hardware.StateIdle:
			availableProcs = append(availableProcs, proc)
			idleAtStart = append(idleAtStart, proc)
		}
	}
	m := len(availableProcs)

	runningByProc := make(map[hardware.ProcessorID]*cbs.Server)
	var candidates []*cbs.Server
	for _, srv := range sch.servers {
		switch srv.State() {
		case cbs.Ready:
			candidates = append(candidates, srv)
		case cbs.Running:
			candidates = append(candidates, srv)
			runningByProc[hardware.ProcessorID(srv.AssignedProcessor())] = srv
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].VirtualDeadline(), candidates[j].VirtualDeadline()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return candidates[i].ID() < candidates[j].ID()
	})

	top := candidates
	if len(top) > m {
		top = top[:m]
	}
	selected := make(map[cbs.ServerID]bool, len(top))
	for _, s := range top {
		selected[s.ID()] = true
	}

	freedProcs := append([]*hardware.Processor(nil), idleAtStart...)
	for pid, srv := range runningByProc {
		if !selected[srv.ID()] {
			proc := sch.platform.Processor(pid)
			sch.stopRunning(proc, srv)
			freedProcs = append(freedProcs, proc)
		}
	}

	var toDispatch []*cbs.Server
	for _, s := range top {
		switch s.State() {
		case cbs.Ready:
			toDispatch = append(toDispatch, s)
		case cbs.Running:
			// Survives this resched in place. Fold elapsed execution at
			// the rate currently in effect and re-derive its completion
			// timer: the domain frequency may have changed since the
			// timer was posted.
			proc := sch.platform.Processor(hardware.ProcessorID(s.AssignedProcessor()))
			sch.checkpointServer(proc, s)
			if handle, ok := sch.completionTimers[s.ID()]; ok {
				_ = handle.Cancel()
				delete(sch.completionTimers, s.ID())
			}
			sch.postCompletion(proc, s)
		}
	}

	for i, s := range toDispatch {
		if i >= len(freedProcs) {
			break
		}
		sch.dispatch(freedProcs[i], s)
	}
}

// checkpointServer folds the wall-clock execution since srv's last
// accounting restart into its job work, budget, and virtual time, then
// restarts the accounting window at the current time.
func (sch *EdfScheduler) checkpointServer(proc *hardware.Processor, srv *cbs.Server) {
	delta := sch.eng.Now().Sub(srv.LastDispatch())
	if job := srv.CurrentJob(); job != nil && delta.Positive() {
		f, fRefMax, perf := sch.refFreqAndPerf(proc)
		srv.Accumulate(job, delta, f, fRefMax, perf)
	}
	srv.RestartAccounting()
}

// CheckpointRunning checkpoints every Running server at the clock rate
// currently in effect. DVFS policies call this immediately before
// changing the domain frequency so the elapsed window is charged at
// the old rate; the resched they trigger afterwards re-derives the
// completion timers at the new one.
func (sch *EdfScheduler) CheckpointRunning() {
	for _, srv := range sch.servers {
		if srv.State() != cbs.Running {
			continue
		}
		proc := sch.platform.Processor(hardware.ProcessorID(srv.AssignedProcessor()))
		sch.checkpointServer(proc, srv)
	}
}

func (sch *EdfScheduler) stopRunning(proc *hardware.Processor, srv *cbs.Server) {
	if handle, ok := sch.completionTimers[srv.ID()]; ok {
		_ = handle.Cancel()
		delete(sch.completionTimers, srv.ID())
	}
	sch.checkpointServer(proc, srv)
	srv.Preempt()
	proc.Release()
	sch.eng.Trace(sch.eng.Now(), "preempt", func(sk engine.Sink) {
		sk.Field("sid", int(srv.ID()))
		sk.Field("cpu", int(proc.ID()))
	})
	if sch.dvfs != nil {
		sch.dvfs.OnProcessorIdle(sch, proc)
	}
}

func (sch *EdfScheduler) dispatch(proc *hardware.Processor, srv *cbs.Server) {
	srv.Dispatch(int(proc.ID()))
	proc.Dispatch(srv.CurrentJob())
	if sch.dvfs != nil {
		sch.dvfs.OnProcessorActive(sch, proc)
	}
	sch.eng.Trace(sch.eng.Now(), "dispatch", func(sk engine.Sink) {
		sk.Field("sid", int(srv.ID()))
		sk.Field("cpu", int(proc.ID()))
	})
	sch.postCompletion(proc, srv)
}

// postCompletion posts the JobFinished event for srv's current window:
// it fires when the job's remaining work or the server's remaining
// budget runs out, whichever is sooner at the current clock rate.
func (sch *EdfScheduler) postCompletion(proc *hardware.Processor, srv *cbs.Server) {
	f, fRefMax, perf := sch.refFreqAndPerf(proc)
	wall := units.MinDuration(
		srv.WallClockToFinishWork(f, fRefMax, perf),
		srv.WallClockToExhaustBudget(f, fRefMax, perf),
	)
	handle := sch.eng.PostJobFinished(sch.eng.Now().Add(wall), func(e *engine.Engine) {
		sch.onCompletionTimer(proc, srv)
	})
	sch.completionTimers[srv.ID()] = handle
}

func (sch *EdfScheduler) onCompletionTimer(proc *hardware.Processor, srv *cbs.Server) {
	delete(sch.completionTimers, srv.ID())
	sch.checkpointServer(proc, srv)
	job := srv.CurrentJob()

	if job != nil && job.IsComplete() {
		sch.eng.Trace(sch.eng.Now(), "job_finished", func(sk engine.Sink) {
			sk.Field("sid", int(srv.ID()))
			sk.Field("cpu", int(proc.ID()))
		})
		task := srv.Task()
		srv.CompleteJob()
		proc.Release()
		if sch.dvfs != nil {
			sch.dvfs.OnProcessorIdle(sch, proc)
		}
		sch.completedJobs[task]++
		if expected, ok := sch.expectedArrivals[task]; ok && sch.completedJobs[task] >= expected && srv.QueueLen() == 0 {
			sch.Detach(task)
		}
	} else {
		sch.eng.Trace(sch.eng.Now(), "serv_budget_exhausted", func(sk engine.Sink) {
			sk.Field("sid", int(srv.ID()))
		})
		srv.BudgetExhausted()
		proc.Release()
		if sch.dvfs != nil {
			sch.dvfs.OnProcessorIdle(sch, proc)
		}
	}
	sch.Resched()
}
