package ioformat

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fillien/schedsim-go/pkg/cbs"
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/reclamation"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// sleepWakeLatency and sleepPowerFraction pick the single additional
// C-state every cluster's PowerDomain is built with. The wire format
// carries no C-state data at all, so BuildPlatform synthesizes a
// conservative two-level
// domain: level 0 active (power governed at runtime by the polynomial
// power_model, via PowerModel/evalPowerModel) and level 1 a
// domain-wide sleep state whose static power is a fixed fraction of
// the power model evaluated at f_max.
const (
	sleepWakeLatency   units.Duration = 100e-6
	sleepPowerFraction                = 0.05
)

// BuildOptions supplies everything BuildPlatform needs beyond the
// Platform JSON document itself: the engine every per-cluster
// scheduler posts events through, and the scheduling policy selection
// that is constant across clusters for one run (the CLI takes a
// single --scheduler/--admission/--deadline-miss per invocation, not
// one per cluster).
type BuildOptions struct {
	Engine             *engine.Engine
	Admission          scheduler.AdmissionTest
	DeadlineMissPolicy cbs.DeadlineMissPolicy
	// NewReclamation constructs the reclamation policy for one cluster,
	// given that cluster's EdfScheduler as the ActiveUtilizationSource
	// (satisfies reclamation.ActiveUtilizationSource since EdfScheduler
	// already exposes ActiveUtilization()).
	NewReclamation func(source reclamation.ActiveUtilizationSource) cbs.ReclamationPolicy
}

// Cluster is one constructed cluster: its scheduler.Cluster plus the
// raw JSON parameters that produced it, needed by callers that attach
// DVFS policies (dvfs.NewFFATimer etc. need no extra hardware info,
// but cmd/schedsim reports placement in terms of these ids).
type Cluster struct {
	*scheduler.Cluster
	PowerModel []float64
}

// BuildPlatform constructs a finalized hardware.Platform and one
// scheduler.Cluster per Platform JSON cluster entry. Clusters are
// returned in document order, which is also each cluster's construction
// order (what FirstFit and friends iterate over).
func BuildPlatform(doc *PlatformDoc, opts BuildOptions) (*hardware.Platform, []*Cluster, error) {
	platform := hardware.NewPlatform()

	var refFreqMax units.Frequency
	for _, c := range doc.Clusters {
		f := units.Frequency(c.Frequencies[0])
		if f > refFreqMax {
			refFreqMax = f
		}
	}

	clusters := make([]*Cluster, 0, len(doc.Clusters))
	for i, cd := range doc.Clusters {
		ptID, err := platform.AddProcessorType(fmt.Sprintf("cluster-%d-type", i), cd.PerfScore, 0)
		if err != nil {
			return nil, nil, err
		}

		freqs := make([]units.Frequency, len(cd.Frequencies))
		for j, f := range cd.Frequencies {
			freqs[j] = units.Frequency(f)
		}
		clockDomain := hardware.NewClockDomain(0, freqs, units.Frequency(cd.EffectiveFreq), 0)
		cdID, err := platform.AddClockDomain(clockDomain)
		if err != nil {
			return nil, nil, err
		}

		sleepPower := units.Power(float64(evalPowerModel(cd.PowerModel, units.Frequency(cd.Frequencies[0]))) * sleepPowerFraction)
		powerDomain := hardware.NewPowerDomain(0, []hardware.CState{
			{Level: 0, Scope: hardware.ScopePerProcessor, WakeLatency: 0, Power: 0},
			{Level: 1, Scope: hardware.ScopeDomainWide, WakeLatency: sleepWakeLatency, Power: sleepPower},
		})
		pdID, err := platform.AddPowerDomain(powerDomain)
		if err != nil {
			return nil, nil, err
		}

		procIDs := make([]hardware.ProcessorID, 0, cd.NbProcs)
		for p := 0; p < cd.NbProcs; p++ {
			pid, err := platform.AddProcessor(ptID, cdID, pdID)
			if err != nil {
				return nil, nil, err
			}
			procIDs = append(procIDs, pid)
		}

		sched := scheduler.New(opts.Engine, platform, cdID, procIDs, opts.Admission, nil, opts.DeadlineMissPolicy)
		sched.SetReclamationPolicy(opts.NewReclamation(sched))

		clusters = append(clusters, &Cluster{
			Cluster: &scheduler.Cluster{
				ID:         uuid.NewString(),
				ClockDomain: cdID,
				Scheduler:  sched,
				PerfScore:  cd.PerfScore,
				RefFreqMax: refFreqMax,
				UTarget:    cd.UTarget,
			},
			PowerModel: cd.PowerModel,
		})
	}

	if err := platform.Finalize(); err != nil {
		return nil, nil, err
	}
	return platform, clusters, nil
}

// SchedulerClusters projects a []*Cluster down to the []*scheduler.Cluster
// slice allocator.New expects, discarding the PowerModel each entry
// also carries (callers needing it, e.g. pkg/metrics' energy
// integration, keep the original []*Cluster around instead).
func SchedulerClusters(clusters []*Cluster) []*scheduler.Cluster {
	out := make([]*scheduler.Cluster, len(clusters))
	for i, c := range clusters {
		out[i] = c.Cluster
	}
	return out
}
