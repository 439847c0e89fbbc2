package tracedb

import "time"

// Run represents one simulation invocation: its configuration and
// lifecycle.
type Run struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	PlatformPath string    `json:"platform_path"`
	ScenarioPath string    `json:"scenario_path"`
	Scheduler   string     `json:"scheduler"`
	Allocator   string     `json:"allocator"`
	Policy      string     `json:"policy"`
	Admission   string     `json:"admission"`
	Reclamation string     `json:"reclamation"`
	DeadlineMiss string    `json:"deadline_miss"`
	Seed        int64      `json:"seed"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Status      string     `json:"status"` // running, completed, failed
	Error       string     `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TraceRecord is one JSON-lines trace event, persisted flat: Fields
// holds the record's type-specific fields (tid, sid, cpu, freq, ...)
// serialized as a JSON object string, since the field set varies per
// record type and SQLite has no native JSON column type GORM targets
// portably.
type TraceRecord struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	RunID  string  `json:"run_id" gorm:"index"`
	Seq    uint64  `json:"seq" gorm:"index"`
	Time   float64 `json:"t" gorm:"index"`
	Type   string  `json:"type" gorm:"index"`
	Fields string  `json:"fields"`
}
