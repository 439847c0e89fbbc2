package allocator

import (
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// Adaptive capacity model coefficients, fitted offline against traced
// simulation runs.
const (
	adaptiveLinearA = 1.616
	adaptiveLinearB = 0.098
	adaptiveLinearC = -0.373

	adaptivePolyC0 = -0.285854319
	adaptivePolyC1 = 2.339707990
	adaptivePolyC2 = 0.031898477
	adaptivePolyC3 = -1.376401346
	adaptivePolyC4 = -0.037369647
	adaptivePolyC5 = 0.007632732
)

// FFCapAdaptiveLinear behaves like FFCap, except its u_target gate is
// non-strict ('<=' rather than '<') and the smallest-perf
// cluster's u_target is recomputed on every call from a linear model
// over the largest per-task utilization observed so far and the
// allocator's expected aggregate utilization, instead of a static
// configured value.
type FFCapAdaptiveLinear struct{}

func NewFFCapAdaptiveLinear() *FFCapAdaptiveLinear { return &FFCapAdaptiveLinear{} }

func (p *FFCapAdaptiveLinear) Select(a *Allocator, task workload.TaskID, q, t units.Duration) (int, bool) {
	order := sortedByPerf(a, false)
	if len(order) == 0 {
		return 0, false
	}
	uMax := a.MaxUtilizationObserved()
	target := clamp01(adaptiveLinearA*uMax + adaptiveLinearB*a.ExpectedTotalUtilization() + adaptiveLinearC)
	a.clusters[order[0]].UTarget = target

	for _, idx := range order {
		if canPlaceCapped(a, idx, q, t, targetOrDefault(a.clusters[idx]), false) {
			return idx, true
		}
	}
	return 0, false
}

// FFCapAdaptivePoly is FFCapAdaptiveLinear with a degree-2 polynomial
// model in (u_max_observed, expected_total_util) instead of a linear
// one.
type FFCapAdaptivePoly struct{}

func NewFFCapAdaptivePoly() *FFCapAdaptivePoly { return &FFCapAdaptivePoly{} }

func (p *FFCapAdaptivePoly) Select(a *Allocator, task workload.TaskID, q, t units.Duration) (int, bool) {
	order := sortedByPerf(a, false)
	if len(order) == 0 {
		return 0, false
	}
	u := a.MaxUtilizationObserved()
	U := a.ExpectedTotalUtilization()
	target := clamp01(adaptivePolyC0 + adaptivePolyC1*u + adaptivePolyC2*U +
		adaptivePolyC3*u*u + adaptivePolyC4*u*U + adaptivePolyC5*U*U)
	a.clusters[order[0]].UTarget = target

	for _, idx := range order {
		if canPlaceCapped(a, idx, q, t, targetOrDefault(a.clusters[idx]), false) {
			return idx, true
		}
	}
	return 0, false
}
