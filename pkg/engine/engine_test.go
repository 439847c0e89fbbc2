package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

func TestStepOrdersByTimeThenPriority(t *testing.T) {
	eng := New(nil, nil)
	var order []string

	eng.PostProcessorAvailable(units.TimePoint(1), func(e *Engine) { order = append(order, "proc_available") })
	eng.PostJobFinished(units.TimePoint(1), func(e *Engine) { order = append(order, "job_finished") })
	eng.PostDeadlineMiss(units.TimePoint(1), func(e *Engine) { order = append(order, "deadline_miss") })
	eng.PostJobArrival(units.TimePoint(1), 0, 0)

	eng.RunToCompletion()

	require.Len(t, order, 3)
	assert.Equal(t, []string{"job_finished", "deadline_miss", "proc_available"}, order)
}

func TestTimerHandleCancelPreventsFiring(t *testing.T) {
	eng := New(nil, nil)
	fired := false
	handle := eng.AddTimer(units.TimePoint(5), func(e *Engine) { fired = true })

	require.NoError(t, handle.Cancel())
	eng.RunToCompletion()

	assert.False(t, fired)
	assert.True(t, eng.Empty())
}

func TestCancelAlreadyFiredTimerIsNoop(t *testing.T) {
	eng := New(nil, nil)
	handle := eng.AddTimer(units.TimePoint(1), func(e *Engine) {})
	eng.RunToCompletion()
	assert.NoError(t, handle.Cancel())
}

func TestCancelUnknownTimerIDErrors(t *testing.T) {
	eng := New(nil, nil)
	err := eng.CancelTimer(TimerID(999))
	assert.Error(t, err)
}

func TestDeferRunsAfterBucketDrains(t *testing.T) {
	eng := New(nil, nil)
	var order []string

	eng.AddTimer(units.TimePoint(1), func(e *Engine) {
		order = append(order, "first")
		e.Defer(func(e *Engine) { order = append(order, "deferred") })
	})
	eng.AddTimer(units.TimePoint(1), func(e *Engine) {
		order = append(order, "second")
	})

	eng.RunToCompletion()

	require.Len(t, order, 3)
	assert.Equal(t, "deferred", order[2])
}

func TestRunUntilStopsAtHorizon(t *testing.T) {
	eng := New(nil, nil)
	ran := false
	eng.AddTimer(units.TimePoint(10), func(e *Engine) { ran = true })

	eng.RunUntil(units.TimePoint(5))

	assert.False(t, ran)
	assert.False(t, eng.Empty())
}

func TestRequestHaltStopsProcessing(t *testing.T) {
	eng := New(nil, nil)
	var fired []int
	eng.AddTimer(units.TimePoint(1), func(e *Engine) {
		fired = append(fired, 1)
		e.RequestHalt()
	})
	eng.AddTimer(units.TimePoint(2), func(e *Engine) {
		fired = append(fired, 2)
	})

	eng.RunToCompletion()

	assert.Equal(t, []int{1}, fired)
	assert.True(t, eng.Halted())
}

func TestSetJobArrivalHandlerTwiceErrors(t *testing.T) {
	eng := New(nil, nil)
	noop := func(e *Engine, task workload.TaskID, d units.Duration) {}

	require.NoError(t, eng.SetJobArrivalHandler(noop))
	assert.Error(t, eng.SetJobArrivalHandler(noop))
}
