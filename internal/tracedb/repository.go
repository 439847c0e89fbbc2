package tracedb

import (
	"time"

	"gorm.io/gorm"
)

// Repository provides data access methods over the trace store.
type Repository struct {
	db *DB
}

// NewRepository wraps db.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateRun(run *Run) error {
	if run.StartTime.IsZero() {
		run.StartTime = time.Now()
	}
	return r.db.Create(run).Error
}

func (r *Repository) GetRun(id string) (*Run, error) {
	var run Run
	if err := r.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) ListRuns() ([]Run, error) {
	var runs []Run
	err := r.db.Order("created_at DESC").Find(&runs).Error
	return runs, err
}

// EndRun marks a run completed or failed, recording errMsg when status
// is "failed" (empty otherwise).
func (r *Repository) EndRun(id, status, errMsg string) error {
	now := time.Now()
	return r.db.Model(&Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"end_time": now,
			"status":   status,
			"error":    errMsg,
		}).Error
}

// SaveTraceRecords inserts a batch of trace records, 200 rows per
// INSERT statement.
func (r *Repository) SaveTraceRecords(records []TraceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.CreateInBatches(records, 200).Error
}

// GetTraceRecords returns every record for a run in emission order.
func (r *Repository) GetTraceRecords(runID string) ([]TraceRecord, error) {
	var records []TraceRecord
	err := r.db.Where("run_id = ?", runID).Order("seq ASC").Find(&records).Error
	return records, err
}

// GetTraceRecordsByType filters a run's records to one event type.
func (r *Repository) GetTraceRecordsByType(runID, recordType string) ([]TraceRecord, error) {
	var records []TraceRecord
	err := r.db.Where("run_id = ? AND type = ?", runID, recordType).Order("seq ASC").Find(&records).Error
	return records, err
}

// DeleteRun removes a run and all its trace records.
func (r *Repository) DeleteRun(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&TraceRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Run{}).Error
	})
}
