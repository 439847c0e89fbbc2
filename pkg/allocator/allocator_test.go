package allocator

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

// taskSpec is one task to pre-register on a rig: every test declares
// its tasks' periods and WCETs upfront rather than registering them as
// jobs arrive.
type taskSpec struct {
	period units.Duration
	wcet   units.Duration
}

// twoClusterRig builds a one-big/one-little platform: cluster 0 is a
// single 2000MHz core (perf 2.0), cluster 1 a single 1000MHz core
// (perf 1.0), each with its own EdfScheduler, for exercising Policy
// implementations without a full JSON-loaded platform. It returns the
// TaskID assigned to each entry in specs, in order.
func twoClusterRig(t *testing.T, sink engine.Sink, specs ...taskSpec) (*engine.Engine, []*scheduler.Cluster, []workload.TaskID) {
	platform := hardware.NewPlatform()

	bigPT, err := platform.AddProcessorType("big", 2.0, 0)
	require.NoError(t, err)
	littlePT, err := platform.AddProcessorType("little", 1.0, 0)
	require.NoError(t, err)

	bigCD := hardware.NewClockDomain(0, []units.Frequency{2000}, 2000, 0)
	bigCDID, err := platform.AddClockDomain(bigCD)
	require.NoError(t, err)
	littleCD := hardware.NewClockDomain(0, []units.Frequency{1000}, 1000, 0)
	littleCDID, err := platform.AddClockDomain(littleCD)
	require.NoError(t, err)

	pd := hardware.NewPowerDomain(0, []hardware.CState{
		{Level: 0, Scope: hardware.ScopePerProcessor, WakeLatency: 0, Power: 0},
	})
	pdID, err := platform.AddPowerDomain(pd)
	require.NoError(t, err)

	bigProc, err := platform.AddProcessor(bigPT, bigCDID, pdID)
	require.NoError(t, err)
	littleProc, err := platform.AddProcessor(littlePT, littleCDID, pdID)
	require.NoError(t, err)

	taskIDs := make([]workload.TaskID, len(specs))
	for i, spec := range specs {
		id, err := platform.AddTask("", spec.period, spec.period, spec.wcet)
		require.NoError(t, err)
		taskIDs[i] = id
	}

	require.NoError(t, platform.Finalize())

	eng := engine.New(platform, sink)

	bigSched := scheduler.New(eng, platform, bigCDID, []hardware.ProcessorID{bigProc}, scheduler.CapacityBound, reclamation.NewPlain(), cbs.Continue)
	littleSched := scheduler.New(eng, platform, littleCDID, []hardware.ProcessorID{littleProc}, scheduler.CapacityBound, reclamation.NewPlain(), cbs.Continue)

	clusters := []*scheduler.Cluster{
		{ID: "big", ClockDomain: bigCDID, Scheduler: bigSched, PerfScore: 2.0, RefFreqMax: 2000},
		{ID: "little", ClockDomain: littleCDID, Scheduler: littleSched, PerfScore: 1.0, RefFreqMax: 2000},
	}
	return eng, clusters, taskIDs
}

func TestFirstFitPicksFirstAdmissibleClusterInConstructionOrder(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil, taskSpec{period: 10, wcet: 5})
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewFirstFit())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(5))
	eng.RunToCompletion()

	idx, ok := a.ClusterOf(tasks[0])
	require.True(t, ok)
	assert.Equal(t, 0, idx, "big cluster is first in construction order")
}

func TestFFLittleFirstPrefersLowerPerfCluster(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil, taskSpec{period: 10, wcet: 5})
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewFFLittleFirst())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(5))
	eng.RunToCompletion()

	idx, ok := a.ClusterOf(tasks[0])
	require.True(t, ok)
	assert.Equal(t, 1, idx, "little cluster has the lower perf score")
}

func TestBestFitPicksTightestRemainingCapacity(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil,
		taskSpec{period: 10, wcet: 8}, // u=0.8, lands on cluster 0
		taskSpec{period: 10, wcet: 1}, // u=0.1, should prefer the tighter cluster 0
	)
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewBestFit())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(8))
	eng.RunUntil(units.TimePoint(0))
	idx0, _ := a.ClusterOf(tasks[0])
	require.Equal(t, 0, idx0)

	eng.PostJobArrival(units.TimePoint(0), tasks[1], units.Duration(1))
	eng.RunToCompletion()
	idx1, ok := a.ClusterOf(tasks[1])
	require.True(t, ok)
	assert.Equal(t, 0, idx1, "cluster 0 has the least remaining capacity once it fits")
}

func TestWorstFitPicksLoosestRemainingCapacity(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil,
		taskSpec{period: 10, wcet: 8},
		taskSpec{period: 10, wcet: 1},
	)
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewWorstFit())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(8))
	eng.RunUntil(units.TimePoint(0))
	idx0, _ := a.ClusterOf(tasks[0])
	require.Equal(t, 0, idx0)

	eng.PostJobArrival(units.TimePoint(0), tasks[1], units.Duration(1))
	eng.RunToCompletion()
	idx1, ok := a.ClusterOf(tasks[1])
	require.True(t, ok)
	assert.Equal(t, 1, idx1, "cluster 1 is still empty and has the most remaining capacity")
}

func TestTaskPinnedOnFirstArrivalNeverMigrates(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil, taskSpec{period: 10, wcet: 5})
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewFirstFit())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(5))
	eng.RunUntil(units.TimePoint(0))
	first, _ := a.ClusterOf(tasks[0])

	eng.PostJobArrival(units.TimePoint(20), tasks[0], units.Duration(5))
	eng.RunToCompletion()
	second, _ := a.ClusterOf(tasks[0])

	assert.Equal(t, first, second)
}

func TestAllocatorRejectsWhenNoClusterAdmits(t *testing.T) {
	sink := &recordingSink{}
	eng, clusters, tasks := twoClusterRig(t, sink, taskSpec{period: 10, wcet: 20}) // u=2, no cluster admits
	_, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewFirstFit())
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(20))
	eng.RunToCompletion()

	rejected := sink.byType("task_rejected")
	assert.NotEmpty(t, rejected)
}

func TestMCTSReplaysPatternWithOutOfRangeWraparound(t *testing.T) {
	eng, clusters, tasks := twoClusterRig(t, nil,
		taskSpec{period: 100, wcet: 1},
		taskSpec{period: 100, wcet: 1},
	)
	a, err := New(eng, clusters[0].Scheduler.Platform(), clusters, NewMCTS([]int{1, 7}))
	require.NoError(t, err)

	eng.PostJobArrival(units.TimePoint(0), tasks[0], units.Duration(1))
	eng.RunUntil(units.TimePoint(0))
	idx0, _ := a.ClusterOf(tasks[0])
	assert.Equal(t, 1, idx0, "first pattern entry selects cluster 1 directly")

	eng.PostJobArrival(units.TimePoint(0), tasks[1], units.Duration(1))
	eng.RunToCompletion()
	idx1, _ := a.ClusterOf(tasks[1])
	assert.Equal(t, 7%2, idx1, "second pattern entry (7) wraps modulo the 2-cluster count")
}

// recordingSink is a minimal engine.Sink test double.
type recordingSink struct {
	events  []recordedEvent
	current recordedEvent
}

type recordedEvent struct {
	Type   string
	Fields map[string]any
}

func (r *recordingSink) Begin(t units.TimePoint)     { r.current = recordedEvent{Fields: map[string]any{}} }
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
