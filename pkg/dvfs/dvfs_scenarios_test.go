package dvfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fillien/schedsim-go/pkg/cbs"
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/reclamation"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// twoCoreCluster builds a two-processor, three-mode clock domain
// (1500/1000/500) and an EdfScheduler bound to it, for exercising a
// DVFSPolicy purely through its exported scheduler.DVFSPolicy methods.
func twoCoreCluster(t *testing.T, admission scheduler.AdmissionTest) (*scheduler.EdfScheduler, *hardware.ClockDomain) {
	eng := engine.New(nil, nil)
	platform := hardware.NewPlatform()
	ptID, err := platform.AddProcessorType("ref", 1.0, 0)
	require.NoError(t, err)
	cd := hardware.NewClockDomain(0, []units.Frequency{500, 1000, 1500}, 1000, 0)
	cdID, err := platform.AddClockDomain(cd)
	require.NoError(t, err)
	pd := hardware.NewPowerDomain(0, []hardware.CState{
		{Level: 0, Scope: hardware.ScopePerProcessor, WakeLatency: 0, Power: 0},
	})
	pdID, err := platform.AddPowerDomain(pd)
	require.NoError(t, err)

	procs := make([]hardware.ProcessorID, 2)
	for i := range procs {
		pid, err := platform.AddProcessor(ptID, cdID, pdID)
		require.NoError(t, err)
		procs[i] = pid
	}
	require.NoError(t, platform.Finalize())
	eng.BindPlatform(platform)

	sch := scheduler.New(eng, platform, cdID, procs, admission, reclamation.NewPlain(), cbs.Continue)
	return sch, platform.ClockDomain(cdID)
}

// TestPowerAwareScalesFrequencyWithUtilization tracks two admissions
// on a two-core cluster through PowerAware's f_new formula:
//
//	admit U=0.2: f_new = 1500*(1*0.2+0.2)/2 =  300 -> floored at f_min, ceils to 500
//	admit U=0.6: f_new = 1500*(1*0.6+0.8)/2 = 1050 -> ceils to 1500
//
// proving frequency actually tracks utilization rather than sitting
// unchanged at the domain's max-at-construction value.
func TestPowerAwareScalesFrequencyWithUtilization(t *testing.T) {
	sch, cd := twoCoreCluster(t, scheduler.CapacityBound)
	sch.SetDVFSPolicy(NewPowerAware())

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(0.1), units.TimePoint(10), units.Duration(2), units.Duration(10)))
	require.Equal(t, units.Frequency(500), cd.Current())

	require.NoError(t, sch.SubmitJob(workload.TaskID(1), workload.JobID(2),
		units.Duration(0.1), units.TimePoint(10), units.Duration(6), units.Duration(10)))
	require.Equal(t, units.Frequency(1500), cd.Current())
}

// TestFFAHoldsAtEfficientFrequency drives a single U=0.1 server on a
// two-core cluster: f_min = 1500*(0.1+1*0.1)/2 = 150, which is below
// the domain's efficient point (1000), so FFA must hold frequency at
// 1000. Its core-count target, ceil(2*150/1000) = 1, is not checked
// here: this rig's power domain has no sleep state to shed a core into.
func TestFFAHoldsAtEfficientFrequency(t *testing.T) {
	sch, cd := twoCoreCluster(t, scheduler.CapacityBound)
	sch.SetDVFSPolicy(NewFFA())

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(0.1), units.TimePoint(10), units.Duration(1), units.Duration(10)))

	require.Equal(t, units.Frequency(1000), cd.Current())
}

// recordedEvent / recordingSink capture trace records for the
// scenarios below that assert on freq_change emission.
type recordedEvent struct {
	Time   units.TimePoint
	Type   string
	Fields map[string]any
}

type recordingSink struct {
	events  []recordedEvent
	current recordedEvent
}

func (r *recordingSink) Begin(t units.TimePoint)     { r.current = recordedEvent{Time: t, Fields: map[string]any{}} }
func (r *recordingSink) Type(name string)            { r.current.Type = name }
func (r *recordingSink) Field(key string, value any) { r.current.Fields[key] = value }
func (r *recordingSink) End()                        { r.events = append(r.events, r.current) }

func (r *recordingSink) byType(t string) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// cluster builds an nProcs-processor clock domain with the given
// frequency set and efficient point, bound to a fresh engine and
// EdfScheduler.
func cluster(t *testing.T, sink engine.Sink, nProcs int, freqs []units.Frequency, efficient units.Frequency) (*engine.Engine, *scheduler.EdfScheduler, *hardware.ClockDomain) {
	eng := engine.New(nil, sink)
	platform := hardware.NewPlatform()
	ptID, err := platform.AddProcessorType("ref", 1.0, 0)
	require.NoError(t, err)
	cd := hardware.NewClockDomain(0, freqs, efficient, 0)
	cdID, err := platform.AddClockDomain(cd)
	require.NoError(t, err)
	pd := hardware.NewPowerDomain(0, []hardware.CState{
		{Level: 0, Scope: hardware.ScopePerProcessor, WakeLatency: 0, Power: 0},
		{Level: 1, Scope: hardware.ScopePerProcessor, WakeLatency: units.Duration(100e-6), Power: 0},
	})
	pdID, err := platform.AddPowerDomain(pd)
	require.NoError(t, err)

	procs := make([]hardware.ProcessorID, nProcs)
	for i := range procs {
		pid, err := platform.AddProcessor(ptID, cdID, pdID)
		require.NoError(t, err)
		procs[i] = pid
	}
	require.NoError(t, platform.Finalize())
	eng.BindPlatform(platform)

	sch := scheduler.New(eng, platform, cdID, procs, scheduler.CapacityBound, reclamation.NewPlain(), cbs.Continue)
	return eng, sch, platform.ClockDomain(cdID)
}

// TestPowerAwareSlowsExecutionAtScaledFrequency:
// two admitted U=0.3 servers on one core with f_max=2000 give
// f = 2000*0.6 = 1200, ceiled to 1500, so work executes at 0.75x and a
// 3-unit job finishes at t=4 instead of t=3.
func TestPowerAwareSlowsExecutionAtScaledFrequency(t *testing.T) {
	sink := &recordingSink{}
	eng, sch, cd := cluster(t, sink, 1, []units.Frequency{2000, 1500, 1000}, 1000)
	sch.SetDVFSPolicy(NewPowerAware())

	// A second admitted (but idle) server contributes its 0.3 to U_total.
	_, err := sch.Admit(workload.TaskID(1), units.Duration(3), units.Duration(10))
	require.NoError(t, err)

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(3), units.TimePoint(10), units.Duration(3), units.Duration(10)))

	require.Equal(t, units.Frequency(1500), cd.Current())

	eng.RunToCompletion()

	finishes := sink.byType("job_finished")
	require.Len(t, finishes, 1)
	assert.True(t, finishes[0].Time.Equal(units.TimePoint(4)), "3 units at 0.75x finish at t=4, got %v", finishes[0].Time)
	assert.Empty(t, sink.byType("deadline_miss"))
}

// TestFFASleepsExcessCores: 4 cores with
// f_max=2000, f_eff=1000, two U=0.2 servers: f_min = 2000*(0.4+3*0.2)/4
// = 500 < f_eff, so frequency holds at 1000 and only
// ceil(4*500/1000) = 2 cores stay awake.
func TestFFASleepsExcessCores(t *testing.T) {
	sink := &recordingSink{}
	eng, sch, cd := cluster(t, sink, 4, []units.Frequency{2000, 1500, 1000, 500}, 1000)
	sch.SetDVFSPolicy(NewFFA())

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(1), units.TimePoint(10), units.Duration(2), units.Duration(10)))
	require.NoError(t, sch.SubmitJob(workload.TaskID(1), workload.JobID(2),
		units.Duration(1), units.TimePoint(10), units.Duration(2), units.Duration(10)))

	eng.RunUntil(units.TimePoint(0))

	require.Equal(t, units.Frequency(1000), cd.Current())
	asleep := 0
	for _, proc := range sch.Platform().Processors() {
		if proc.State() == hardware.StateSleep {
			asleep++
		}
	}
	assert.Equal(t, 2, asleep)
}

// TestCSFMinimizesActiveCoresBeforeScaling: one U=0.2 server on 4
// cores gives m_min = 1 and f_min = 2000*0.2 = 400 < f_eff, so CSF
// holds the frequency at 1000 and keeps only ceil(1*400/1000) = 1 core
// awake.
func TestCSFMinimizesActiveCoresBeforeScaling(t *testing.T) {
	sink := &recordingSink{}
	eng, sch, cd := cluster(t, sink, 4, []units.Frequency{2000, 1500, 1000, 500}, 1000)
	sch.SetDVFSPolicy(NewCSF())

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(1), units.TimePoint(10), units.Duration(2), units.Duration(10)))

	eng.RunUntil(units.TimePoint(0))

	require.Equal(t, units.Frequency(1000), cd.Current())
	asleep := 0
	for _, proc := range sch.Platform().Processors() {
		if proc.State() == hardware.StateSleep {
			asleep++
		}
	}
	assert.Equal(t, 3, asleep)
}

// TestCSFRunsAllCoresWhenMinimalCountNeedsFullSpeed: servers U=0.4,
// 0.3, 0.3 on 4 cores give m_min = ceil((1.0-0.4)/0.6) = 1 and
// f_min = 2000*1.0/1 = 2000 >= f_eff, so CSF keeps every core awake at
// the full 2000 rather than deriving a reduced count from capacity.
func TestCSFRunsAllCoresWhenMinimalCountNeedsFullSpeed(t *testing.T) {
	sink := &recordingSink{}
	eng, sch, cd := cluster(t, sink, 4, []units.Frequency{2000, 1500, 1000, 500}, 1000)
	sch.SetDVFSPolicy(NewCSF())

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(1), units.TimePoint(10), units.Duration(4), units.Duration(10)))
	require.NoError(t, sch.SubmitJob(workload.TaskID(1), workload.JobID(2),
		units.Duration(1), units.TimePoint(10), units.Duration(3), units.Duration(10)))
	require.NoError(t, sch.SubmitJob(workload.TaskID(2), workload.JobID(3),
		units.Duration(1), units.TimePoint(10), units.Duration(3), units.Duration(10)))

	eng.RunUntil(units.TimePoint(0))

	require.Equal(t, units.Frequency(2000), cd.Current())
	asleep := 0
	for _, proc := range sch.Platform().Processors() {
		if proc.State() == hardware.StateSleep {
			asleep++
		}
	}
	assert.Equal(t, 0, asleep)
}

// TestTimerDeferredCoalescesChangesWithinCooldown drives two
// utilization changes inside one cooldown window: exactly one
// freq_change is applied when the cooldown elapses, reflecting the
// target computed from both admissions.
func TestTimerDeferredCoalescesChangesWithinCooldown(t *testing.T) {
	sink := &recordingSink{}
	eng, sch, cd := cluster(t, sink, 2, []units.Frequency{1500, 1000, 500}, 1000)
	sch.SetDVFSPolicy(NewPowerAwareTimer(units.Duration(1)))

	require.NoError(t, sch.SubmitJob(workload.TaskID(0), workload.JobID(1),
		units.Duration(0.1), units.TimePoint(10), units.Duration(4), units.Duration(10)))

	eng.AddTimer(units.TimePoint(0.5), func(e *engine.Engine) {
		require.NoError(t, sch.SubmitJob(workload.TaskID(1), workload.JobID(2),
			units.Duration(0.1), units.TimePoint(10.5), units.Duration(4), units.Duration(10)))
	})

	eng.RunUntil(units.TimePoint(0.9))
	assert.Equal(t, units.Frequency(1500), cd.Current(), "nothing applied inside the cooldown")

	eng.RunToCompletion()

	changes := sink.byType("freq_change")
	require.Len(t, changes, 1)
	assert.Equal(t, units.TimePoint(1), changes[0].Time)
	// Coalesced target: f = 1500*(1*0.4 + 0.8)/2 = 900, ceiled to 1000.
	assert.Equal(t, units.Frequency(1000), cd.Current())
}
