package ioformat

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// JSONLinesTrace is the mandatory trace sink: it writes one JSON
// object per record, newline-delimited. Each record's keys ("t",
// "type" and the fields) are written in sorted order, because End
// marshals them through a map, so field order is stable run to run but
// is not the order the engine supplied them in. It implements
// engine.Sink.
type JSONLinesTrace struct {
	w       *bufio.Writer
	t       units.TimePoint
	recType string
	fields  []jsonField
}

type jsonField struct {
	key   string
	value any
}

// NewJSONLinesTrace wraps w in a buffered writer, which End flushes
// after every record. Close flushes it once more.
func NewJSONLinesTrace(w io.Writer) *JSONLinesTrace {
	return &JSONLinesTrace{w: bufio.NewWriter(w)}
}

func (j *JSONLinesTrace) Begin(t units.TimePoint) {
	j.t = t
	j.recType = ""
	j.fields = j.fields[:0]
}

func (j *JSONLinesTrace) Type(name string) { j.recType = name }

func (j *JSONLinesTrace) Field(key string, value any) {
	j.fields = append(j.fields, jsonField{key: key, value: value})
}

// End marshals the buffered record, writes it as one line and flushes
// the writer, as the engine.Sink contract requires. A
// marshal failure (only possible for a value type json can't encode,
// which would be a programming error in a trace call site) is an
// AssertionError: trace emission is never allowed to fail silently.
func (j *JSONLinesTrace) End() {
	rec := make(map[string]any, len(j.fields)+2)
	rec["t"] = float64(j.t)
	rec["type"] = j.recType
	for _, f := range j.fields {
		rec[f.key] = f.value
	}
	data, err := json.Marshal(rec)
	simerr.Assert(err == nil, "trace record failed to marshal")
	_, _ = j.w.Write(data)
	_, _ = j.w.Write([]byte{'\n'})
	_ = j.w.Flush()
}

// Close flushes any buffered output.
func (j *JSONLinesTrace) Close() error { return j.w.Flush() }

// FanoutSink broadcasts every call to all of its members, letting a
// run feed both the JSON-lines file writer and the SQLite trace store
// from the same engine.Trace call.
type FanoutSink struct {
	sinks []engine.Sink
}

// NewFanoutSink combines sinks into one. A nil member is skipped,
// letting callers pass a trace path or DB path that may be disabled.
func NewFanoutSink(sinks ...engine.Sink) *FanoutSink {
	f := &FanoutSink{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *FanoutSink) Begin(t units.TimePoint) {
	for _, s := range f.sinks {
		s.Begin(t)
	}
}

func (f *FanoutSink) Type(name string) {
	for _, s := range f.sinks {
		s.Type(name)
	}
}

func (f *FanoutSink) Field(key string, value any) {
	for _, s := range f.sinks {
		s.Field(key, value)
	}
}

func (f *FanoutSink) End() {
	for _, s := range f.sinks {
		s.End()
	}
}
