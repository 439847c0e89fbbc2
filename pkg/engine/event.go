package engine

import "github.com/fillien/schedsim-go/pkg/units"

// EventKey totally orders events: first by time, then by Priority,
// then by a monotonic sequence counter that breaks ties within a
// single (time, priority) bucket in insertion order.
type EventKey struct {
	Time     units.TimePoint
	Priority Priority
	Sequence uint64
}

// Less reports whether a sorts before b.
func (a EventKey) Less(b EventKey) bool {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c < 0
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Sequence < b.Sequence
}

// scheduledEvent is one entry in the engine's event heap. Kind is
// retained only for diagnostics/tracing; dispatch is always through
// handler, which closes over whatever payload the poster needs
// (JobArrival{task,duration}, JobFinished{processor}, etc.) — closures
// rather than a sum type switch, since every event kind dispatches to
// exactly one place.
type scheduledEvent struct {
	key     EventKey
	kind    string
	handler func(*Engine)
	index   int // maintained by container/heap for O(log n) cancellation
}

// eventHeap implements container/heap.Interface over scheduledEvent
// pointers, keyed by EventKey. Index bookkeeping mirrors the standard
// library's PriorityQueue example so Cancel can use heap.Remove in
// O(log n) instead of a linear scan.
type eventHeap []*scheduledEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].key.Less(h[j].key) }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*scheduledEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}
