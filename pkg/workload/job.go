package workload

import "github.com/fillien/schedsim-go/pkg/units"

// JobID is a monotonic identifier assigned when a job is released into
// the engine; it is only used for trace correlation.
type JobID int64

// Job tracks one released instance of a Task: its total and remaining
// work (in reference-processor-type units) and its absolute deadline.
// Invariant: 0 <= RemainingWork <= TotalWork (up to Epsilon); negative
// remainders from DVFS rounding are clamped to zero by Drain.
type Job struct {
	id              JobID
	task            TaskID
	totalWork       units.Duration
	remainingWork   units.Duration
	absoluteDeadline units.TimePoint
}

// NewJob releases a new Job for task, with the given total work (the
// job's actual execution requirement, which may differ from the
// task's worst-case bound) and absolute deadline.
func NewJob(id JobID, task TaskID, totalWork units.Duration, absoluteDeadline units.TimePoint) *Job {
	return &Job{
		id:               id,
		task:             task,
		totalWork:        totalWork,
		remainingWork:    totalWork,
		absoluteDeadline: absoluteDeadline,
	}
}

func (j *Job) ID() JobID                          { return j.id }
func (j *Job) Task() TaskID                       { return j.task }
func (j *Job) TotalWork() units.Duration          { return j.totalWork }
func (j *Job) RemainingWork() units.Duration      { return j.remainingWork }
func (j *Job) AbsoluteDeadline() units.TimePoint  { return j.absoluteDeadline }

// IsComplete reports whether the job has no remaining work.
func (j *Job) IsComplete() bool { return !j.remainingWork.Positive() }

// Drain subtracts executed work from RemainingWork, clamping at zero.
func (j *Job) Drain(executed units.Duration) {
	j.remainingWork = (j.remainingWork - executed).ClampNonNegative()
}
