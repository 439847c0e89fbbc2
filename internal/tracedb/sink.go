package tracedb

import (
	"encoding/json"

	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// Sink adapts a Repository to engine.Sink: every record is buffered in
// memory as it's built and appended to a pending batch on End(), which
// is flushed to SQLite in chunks of flushEvery records (and always on
// Close) so a long run doesn't hold every record in memory at once.
type Sink struct {
	repo  *Repository
	runID string

	seq     uint64
	t       units.TimePoint
	recType string
	fields  map[string]any

	pending   []TraceRecord
	flushEvery int
}

const defaultFlushEvery = 500

// NewSink constructs a Sink that persists every record under runID.
func NewSink(repo *Repository, runID string) *Sink {
	return &Sink{repo: repo, runID: runID, flushEvery: defaultFlushEvery}
}

func (s *Sink) Begin(t units.TimePoint) {
	s.t = t
	s.recType = ""
	s.fields = make(map[string]any, 4)
}

func (s *Sink) Type(name string) { s.recType = name }

func (s *Sink) Field(key string, value any) { s.fields[key] = value }

func (s *Sink) End() {
	data, err := json.Marshal(s.fields)
	simerr.Assert(err == nil, "trace record fields failed to marshal")
	s.seq++
	s.pending = append(s.pending, TraceRecord{
		RunID:  s.runID,
		Seq:    s.seq,
		Time:   float64(s.t),
		Type:   s.recType,
		Fields: string(data),
	})
	if len(s.pending) >= s.flushEvery {
		s.flush()
	}
}

func (s *Sink) flush() {
	if len(s.pending) == 0 {
		return
	}
	batch := s.pending
	s.pending = nil
	simerr.Assert(s.repo.SaveTraceRecords(batch) == nil, "trace batch insert failed")
}

// Close flushes any buffered records. Callers must call it after the
// run finishes.
func (s *Sink) Close() { s.flush() }
