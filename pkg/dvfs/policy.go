// Package dvfs implements the DVFS/DPM frequency and active-core-count
// policies (PowerAware, FFA, CSF) and their timer-deferred,
// cooldown-coalescing variants. Concrete policies implement
// scheduler.DVFSPolicy and are handed to an EdfScheduler via
// SetDVFSPolicy; this package imports scheduler, never the reverse.
package dvfs

import (
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// PlatformTarget is the output of a DVFS computation: the frequency
// the clock domain should run at and how many of its processors
// should stay active (the rest are sent to the deepest requested
// C-state).
type PlatformTarget struct {
	Frequency   units.Frequency
	ActiveCount int
}

// Equal reports whether two targets describe the same operating point.
func (t PlatformTarget) Equal(other PlatformTarget) bool {
	return t.Frequency == other.Frequency && t.ActiveCount == other.ActiveCount
}

// compute is the shared signature every policy kind implements: given
// the scheduler for one cluster, return the target operating point.
type compute func(sched *scheduler.EdfScheduler) PlatformTarget

// apply drives a clock domain toward target: it sleeps the excess
// idle processors (construction order, so the choice of which
// processors sleep is deterministic), and if the frequency changed it
// sets it on the ClockDomain and fires on_frequency_changed, which
// triggers a cluster-wide resched so running servers pick up the new
// drain rate.
func apply(sched *scheduler.EdfScheduler, target PlatformTarget) {
	platform := sched.Platform()
	domain := platform.ClockDomain(sched.ClockDomain())
	procs := platform.ProcessorsIn(sched.ClockDomain())

	activeBudget := target.ActiveCount
	for _, proc := range procs {
		if proc.State() == hardware.StateRunning {
			activeBudget--
			continue
		}
	}
	for _, proc := range procs {
		if proc.State() != hardware.StateIdle && proc.State() != hardware.StateSleep {
			continue
		}
		pd := platform.PowerDomain(proc.PowerDomain())
		before := proc.RequestedCState()
		if activeBudget > 0 { // wake (or keep awake) up to the target count
			proc.RequestCState(0)
			pd.RequestCState(proc.ID(), 0)
			activeBudget--
		} else {
			level := pd.DeepestLevel()
			proc.RequestCState(level)
			pd.RequestCState(proc.ID(), level)
		}
		if proc.RequestedCState() != before {
			traceProcStateChange(sched.Engine(), proc)
		}
	}

	if target.Frequency != domain.Current() {
		// Charge every Running server's elapsed window at the old rate
		// before the switch; the resched below re-derives completion
		// timers at the new one.
		sched.CheckpointRunning()
		if _, err := domain.SetFrequency(target.Frequency); err == nil {
			traceFreqChange(sched.Engine(), sched.ClockDomain(), domain.Current())
			onFrequencyChanged(sched)
		}
	}
}

// currentState reads the operating point a cluster is actually at:
// the domain's current frequency and its count of non-sleeping cores.
func currentState(sched *scheduler.EdfScheduler) PlatformTarget {
	domain := sched.Platform().ClockDomain(sched.ClockDomain())
	active := 0
	for _, proc := range sched.Platform().ProcessorsIn(sched.ClockDomain()) {
		if proc.State() != hardware.StateSleep {
			active++
		}
	}
	return PlatformTarget{Frequency: domain.Current(), ActiveCount: active}
}

func traceFreqChange(eng *engine.Engine, domain hardware.ClockDomainID, freq units.Frequency) {
	eng.Trace(eng.Now(), "freq_change", func(sk engine.Sink) {
		sk.Field("domain", int(domain))
		sk.Field("freq", float64(freq))
	})
}

func traceProcStateChange(eng *engine.Engine, proc *hardware.Processor) {
	eng.Trace(eng.Now(), "proc_state_change", func(sk engine.Sink) {
		sk.Field("cpu", int(proc.ID()))
		sk.Field("state", proc.State().String())
		sk.Field("cstate", proc.RequestedCState())
	})
}

// onFrequencyChanged: a frequency change invalidates every Running
// server's drain rate,
// so the cluster must resched to re-derive completion/exhaustion
// timers at the new rate.
func onFrequencyChanged(sched *scheduler.EdfScheduler) {
	sched.Resched()
}

// utilizationInputs pulls the three quantities every policy formula
// needs out of the scheduler: the cluster's processor count m,
// U_active, and u_max (the largest per-server utilization admitted on
// this cluster). PowerAware reads U_total from the scheduler itself.
func utilizationInputs(sched *scheduler.EdfScheduler) (m int, uActive, uMax float64) {
	return sched.NumProcessors(), sched.ActiveUtilization(), sched.MaxUtilization()
}

// pending tracks a cooldown-deferred target for one clock domain: the
// timer-deferred policy variants overwrite target in place while the
// timer is outstanding, so only the latest computed target is ever
// applied once Δ_cd elapses.
type pending struct {
	target PlatformTarget
	timer  *engine.TimerHandle
}
