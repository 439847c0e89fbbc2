// Package workload defines the periodic task and job model: immutable
// task parameters and per-job remaining-work tracking. It has no
// dependency on the hardware or scheduling packages.
package workload

import "github.com/fillien/schedsim-go/pkg/units"

// TaskID is an arena index into Platform.tasks, assigned by the
// hardware package at registration time. The caller-supplied id from
// scenario JSON is kept separately as the task's ExternalID.
type TaskID int

// Task holds immutable periodic-task parameters. ReferenceWCET is
// expressed in the reference ProcessorType's units; WCETOn a different
// type must be computed via that type's Performance.
type Task struct {
	id             TaskID
	externalID     string
	period         units.Duration
	relativeDeadline units.Duration
	referenceWCET  units.Duration
}

// NewTask constructs an immutable Task.
func NewTask(id TaskID, externalID string, period, relativeDeadline, referenceWCET units.Duration) Task {
	return Task{
		id:               id,
		externalID:       externalID,
		period:           period,
		relativeDeadline: relativeDeadline,
		referenceWCET:    referenceWCET,
	}
}

func (t Task) ID() TaskID                        { return t.id }
func (t Task) ExternalID() string                { return t.externalID }
func (t Task) Period() units.Duration            { return t.period }
func (t Task) RelativeDeadline() units.Duration  { return t.relativeDeadline }
func (t Task) ReferenceWCET() units.Duration     { return t.referenceWCET }

// Utilization returns the task's nominal bandwidth ReferenceWCET/Period.
func (t Task) Utilization() float64 {
	return float64(t.referenceWCET) / float64(t.period)
}

// WCETOn converts ReferenceWCET into the units of a ProcessorType with
// the given performance, relative to referencePerf (the reference
// type's own performance): wcet_on = reference_wcet * referencePerf / perf.
func (t Task) WCETOn(perf, referencePerf float64) units.Duration {
	return units.Duration(float64(t.referenceWCET) * referencePerf / perf)
}
