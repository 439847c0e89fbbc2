package allocator

import (
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// FirstFit probes clusters in construction order and admits the first
// that passes both CanAdmit and the cluster's u_target cap (1.0 when
// unset). This is the classic first-fit bin-packing heuristic: it
// favors filling earlier clusters, leaving later ones idle and
// available for power management.
type FirstFit struct{}

func NewFirstFit() *FirstFit { return &FirstFit{} }

func (p *FirstFit) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	for idx := range a.clusters {
		if canPlaceCapped(a, idx, q, t, targetOrDefault(a.clusters[idx]), false) {
			return idx, true
		}
	}
	return 0, false
}

// FFBigFirst is FirstFit over clusters sorted by descending perf score
// (construction order breaks ties).
type FFBigFirst struct{}

func NewFFBigFirst() *FFBigFirst { return &FFBigFirst{} }

func (p *FFBigFirst) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	for _, idx := range sortedByPerf(a, true) {
		if canPlaceCapped(a, idx, q, t, targetOrDefault(a.clusters[idx]), false) {
			return idx, true
		}
	}
	return 0, false
}

// FFLittleFirst is FirstFit over clusters sorted by ascending perf
// score.
type FFLittleFirst struct{}

func NewFFLittleFirst() *FFLittleFirst { return &FFLittleFirst{} }

func (p *FFLittleFirst) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	for _, idx := range sortedByPerf(a, false) {
		if canPlaceCapped(a, idx, q, t, targetOrDefault(a.clusters[idx]), false) {
			return idx, true
		}
	}
	return 0, false
}

// FFCap probes clusters sorted by ascending perf score, requiring the
// new task's own scaled utilization to strictly clear each cluster's
// u_target before consulting CanAdmit.
type FFCap struct{}

func NewFFCap() *FFCap { return &FFCap{} }

func (p *FFCap) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	for _, idx := range sortedByPerf(a, false) {
		target := targetOrDefault(a.clusters[idx])
		if canPlaceCapped(a, idx, q, t, target, true) {
			return idx, true
		}
	}
	return 0, false
}

// FFLb (load-balancing first-fit) measures the biggest cluster's
// average per-core utilization and, before the ascending-perf FF
// pass, sets every other cluster's u_target to that average scaled by
// its own perf score (see Open Question decision in DESIGN.md for the
// [0,1] clamp).
type FFLb struct{}

func NewFFLb() *FFLb { return &FFLb{} }

func (p *FFLb) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	order := sortedByPerf(a, false)
	if len(order) == 0 {
		return 0, false
	}
	biggest := a.clusters[order[len(order)-1]]
	avgBigUtil := biggest.Scheduler.TotalUtilization() / float64(biggest.Scheduler.NumProcessors())

	for i, idx := range order {
		c := a.clusters[idx]
		target := c.UTarget
		if i != len(order)-1 {
			target = clamp01(avgBigUtil * c.PerfScore)
			c.UTarget = target
		} else {
			target = targetOrDefault(c)
		}
		if canPlaceCapped(a, idx, q, t, target, false) {
			return idx, true
		}
	}
	return 0, false
}
