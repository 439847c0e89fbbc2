package engine

import "github.com/fillien/schedsim-go/pkg/units"

// Sink is the trace writer contract the engine calls synchronously on
// every traced event. Implementations that buffer must flush on End().
type Sink interface {
	Begin(t units.TimePoint)
	Type(name string)
	Field(key string, value any)
	End()
}

// Trace emits one record if a sink is attached. fill is handed the
// sink between Begin/Type and End so it can add whatever fields are
// relevant to this record.
func (e *Engine) Trace(t units.TimePoint, recordType string, fill func(s Sink)) {
	if e.sink == nil {
		return
	}
	e.sink.Begin(t)
	e.sink.Type(recordType)
	if fill != nil {
		fill(e.sink)
	}
	e.sink.End()
}
