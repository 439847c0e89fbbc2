// Package allocator implements the multi-cluster placement layer: it
// registers itself as the engine's sole job-arrival handler, pins
// each task to a cluster on its first job (never migrating it
// afterward), and hands every subsequent job straight to that
// cluster's EdfScheduler.
package allocator

import (
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// Policy chooses which cluster a not-yet-pinned task should land on.
// Select returns ok=false when no cluster can accept the task, which
// the Allocator reports as task_rejected.
type Policy interface {
	Select(a *Allocator, task workload.TaskID, q, t units.Duration) (clusterIdx int, ok bool)
}

// Allocator is the engine-facing entry point: one instance owns the
// full cluster set for a run and the task->cluster pinning table.
type Allocator struct {
	eng      *engine.Engine
	platform *hardware.Platform
	clusters []*scheduler.Cluster
	policy   Policy

	pinned map[workload.TaskID]int

	nextJobID workload.JobID

	// uMaxObs is the largest per-task utilization observed so far,
	// consumed by the FFCapAdaptive* policies.
	uMaxObs float64
	// expectedTotalUtil is an optional externally-supplied estimate of
	// the eventual aggregate utilization, also consumed by the
	// FFCapAdaptive* policies' threshold models.
	expectedTotalUtil float64
}

// New constructs an Allocator over clusters and installs it as the
// engine's job-arrival handler. Returns HandlerAlreadySetError if one
// is already installed.
func New(eng *engine.Engine, platform *hardware.Platform, clusters []*scheduler.Cluster, policy Policy) (*Allocator, error) {
	a := &Allocator{
		eng:      eng,
		platform: platform,
		clusters: clusters,
		policy:   policy,
		pinned:   make(map[workload.TaskID]int),
	}
	if err := eng.SetJobArrivalHandler(a.onJobArrival); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator) Clusters() []*scheduler.Cluster { return a.clusters }
func (a *Allocator) Platform() *hardware.Platform    { return a.platform }

// MaxUtilizationObserved returns the largest per-task utilization seen
// across every job arrival so far.
func (a *Allocator) MaxUtilizationObserved() float64 { return a.uMaxObs }

// SetExpectedTotalUtilization configures the aggregate utilization
// estimate the adaptive capacity policies weigh their threshold
// models against (task sets are usually known ahead of a run).
func (a *Allocator) SetExpectedTotalUtilization(u float64) { a.expectedTotalUtil = u }

func (a *Allocator) ExpectedTotalUtilization() float64 { return a.expectedTotalUtil }

// ClusterOf returns the cluster index task is pinned to, if any.
func (a *Allocator) ClusterOf(task workload.TaskID) (int, bool) {
	idx, ok := a.pinned[task]
	return idx, ok
}

func (a *Allocator) onJobArrival(e *engine.Engine, taskID workload.TaskID, duration units.Duration) {
	task := a.platform.Task(taskID)
	q, t := task.ReferenceWCET(), task.Period()
	u := float64(q) / float64(t)
	if u > a.uMaxObs {
		a.uMaxObs = u
	}

	clusterIdx, ok := a.pinned[taskID]
	if !ok {
		idx, admitted := a.policy.Select(a, taskID, q, t)
		if !admitted {
			e.Trace(e.Now(), "task_rejected", func(sk engine.Sink) {
				sk.Field("tid", int(taskID))
			})
			return
		}
		a.pinned[taskID] = idx
		clusterIdx = idx
		cluster := a.clusters[idx]
		e.Trace(e.Now(), "task_placed", func(sk engine.Sink) {
			sk.Field("tid", int(taskID))
			sk.Field("cluster", cluster.ID)
		})
	}

	cluster := a.clusters[clusterIdx]
	a.nextJobID++
	absoluteDeadline := e.Now().Add(task.RelativeDeadline())
	if err := cluster.Scheduler.SubmitJob(taskID, a.nextJobID, duration, absoluteDeadline, q, t); err != nil {
		e.Trace(e.Now(), "task_rejected", func(sk engine.Sink) {
			sk.Field("tid", int(taskID))
		})
	}
}

// scaledTaskUtilization scales the new task's own utilization (not the
// cluster's running total) onto cluster idx's reference frequency and
// perf score.
func scaledTaskUtilization(a *Allocator, idx int, q, t units.Duration) float64 {
	c := a.clusters[idx]
	u := float64(q) / float64(t)
	return c.ScaledUtilization(u, a.platform)
}

// targetOrDefault returns a cluster's configured UTarget, defaulting to
// 1.0 (no additional cap beyond CanAdmit) when unset.
func targetOrDefault(c *scheduler.Cluster) float64 {
	if c.UTarget <= 0 {
		return 1.0
	}
	return c.UTarget
}

// canPlaceCapped is the shared placement gate: the new task's scaled
// utilization must clear the cluster's u_target (strict '<' for FFCap,
// '<=' for the rest of the family) before CanAdmit is even consulted.
func canPlaceCapped(a *Allocator, idx int, q, t units.Duration, target float64, strict bool) bool {
	su := scaledTaskUtilization(a, idx, q, t)
	if strict {
		if !(su < target) {
			return false
		}
	} else if su > target {
		return false
	}
	return a.clusters[idx].Scheduler.CanAdmit(q, t)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedByPerf(a *Allocator, descending bool) []int {
	order := make([]int, len(a.clusters))
	for i := range order {
		order[i] = i
	}
	insertionSortByPerf(a, order, descending)
	return order
}

// insertionSortByPerf keeps ties in construction order (a stable sort
// by perf score over a copy of the cluster index list).
func insertionSortByPerf(a *Allocator, order []int, descending bool) {
	less := func(i, j int) bool {
		pi, pj := a.clusters[i].PerfScore, a.clusters[j].PerfScore
		if descending {
			return pi > pj
		}
		return pi < pj
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && less(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}
