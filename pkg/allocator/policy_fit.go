package allocator

import (
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// remainingCapacity estimates how much headroom cluster idx would have
// left (in processor-count units) after seating a task of utilization
// q/t, used by BestFit/WorstFit to rank otherwise-admissible clusters.
func remainingCapacity(a *Allocator, idx int, q, t units.Duration) float64 {
	c := a.clusters[idx]
	m := float64(c.Scheduler.NumProcessors())
	uNew := float64(q) / float64(t)
	return m - (c.Scheduler.TotalUtilization() + uNew)
}

// BestFit scans every cluster that can admit the task and picks the
// one with the least remaining capacity (tightest fit). Ties resolve
// to construction order.
type BestFit struct{}

func NewBestFit() *BestFit { return &BestFit{} }

func (p *BestFit) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	best := -1
	bestRemaining := 0.0
	for idx := range a.clusters {
		if !a.clusters[idx].Scheduler.CanAdmit(q, t) {
			continue
		}
		remaining := remainingCapacity(a, idx, q, t)
		if best == -1 || remaining < bestRemaining {
			best = idx
			bestRemaining = remaining
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// WorstFit scans every cluster that can admit the task and picks the
// one with the most remaining capacity (loosest fit). Ties resolve to
// construction order.
type WorstFit struct{}

func NewWorstFit() *WorstFit { return &WorstFit{} }

func (p *WorstFit) Select(a *Allocator, _ workload.TaskID, q, t units.Duration) (int, bool) {
	best := -1
	bestRemaining := 0.0
	for idx := range a.clusters {
		if !a.clusters[idx].Scheduler.CanAdmit(q, t) {
			continue
		}
		remaining := remainingCapacity(a, idx, q, t)
		if best == -1 || remaining > bestRemaining {
			best = idx
			bestRemaining = remaining
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}
