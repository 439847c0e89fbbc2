package engine

// Priority orders events within the same timestamp. Lower ordinal
// value means higher priority (processed first). The ordering matters
// most at ties: a job that completes at the same instant another
// arrives frees its processor first, so the arrival sees the freed
// core; timer/deferred callbacks run last so they observe stabilized
// state.
type Priority int

const (
	PriorityJobCompletion Priority = iota
	PriorityDeadlineMiss
	PriorityProcessorAvailable
	PriorityJobArrival
	PriorityTimerDefault
)

func (p Priority) String() string {
	switch p {
	case PriorityJobCompletion:
		return "job_completion"
	case PriorityDeadlineMiss:
		return "deadline_miss"
	case PriorityProcessorAvailable:
		return "processor_available"
	case PriorityJobArrival:
		return "job_arrival"
	case PriorityTimerDefault:
		return "timer_default"
	default:
		return "unknown"
	}
}
