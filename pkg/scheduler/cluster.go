package scheduler

import (
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/units"
)

// Cluster is the triple (ClockDomain, EdfScheduler, perf_score) with a
// reference-frequency normalization used by the multi-cluster
// allocator to compare clusters of different speed and core count.
type Cluster struct {
	ID          string
	ClockDomain hardware.ClockDomainID
	Scheduler   *EdfScheduler
	PerfScore   float64

	// RefFreqMax is the platform-wide reference frequency the
	// allocator normalizes every cluster's utilization against (see
	// ScaledUtilization). It is typically the fastest cluster's own
	// FreqMax.
	RefFreqMax units.Frequency

	// UTarget is the optional per-cluster utilization ceiling some
	// allocator variants (FFCap, FFLb, the adaptive variants) enforce
	// in addition to the admission test.
	UTarget float64
}

// ScaledUtilization normalizes u (a raw Q/T utilization or a
// scheduler's U_total) onto the platform-wide reference frequency and
// this cluster's performance score:
//
//	scaled_utilization(u) = u * (ref_freq_max / domain_freq_max) / perf_score
func (c *Cluster) ScaledUtilization(u float64, platform *hardware.Platform) float64 {
	domain := platform.ClockDomain(c.ClockDomain)
	return u * (float64(c.RefFreqMax) / float64(domain.FreqMax())) / c.PerfScore
}
