package runapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fillien/schedsim-go/internal/tracedb"
	"github.com/fillien/schedsim-go/pkg/metrics"
)

func newTestServer(t *testing.T) *Server {
	gin.SetMode(gin.TestMode)
	db, err := tracedb.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := tracedb.NewRepository(db)
	return NewServer(repo, "")
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestListRunsReturnsEmptyListInitially(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, rec.Code)

	var runs []tracedb.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)
}

func TestGetRunReturns404ForMissingRun(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunReturnsStoredRun(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.CreateRun(&tracedb.Run{ID: "run-1", Scheduler: "edf"}))

	rec := doRequest(s, http.MethodGet, "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var run tracedb.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "edf", run.Scheduler)
}

func TestGetTraceReturnsRecordsForRun(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.CreateRun(&tracedb.Run{ID: "run-1"}))
	require.NoError(t, s.repo.SaveTraceRecords([]tracedb.TraceRecord{
		{RunID: "run-1", Seq: 1, Type: "job_arrival"},
		{RunID: "run-1", Seq: 2, Type: "job_finished"},
	}))

	rec := doRequest(s, http.MethodGet, "/api/v1/runs/run-1/trace")
	assert.Equal(t, http.StatusOK, rec.Code)

	var records []tracedb.TraceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestGetTraceFiltersByType(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.CreateRun(&tracedb.Run{ID: "run-1"}))
	require.NoError(t, s.repo.SaveTraceRecords([]tracedb.TraceRecord{
		{RunID: "run-1", Seq: 1, Type: "job_arrival"},
		{RunID: "run-1", Seq: 2, Type: "job_finished"},
	}))

	rec := doRequest(s, http.MethodGet, "/api/v1/runs/run-1/trace?type=job_arrival")
	assert.Equal(t, http.StatusOK, rec.Code)

	var records []tracedb.TraceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "job_arrival", records[0].Type)
}

func TestGetMetricsSummarizesTrace(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.CreateRun(&tracedb.Run{ID: "run-1"}))
	require.NoError(t, s.repo.SaveTraceRecords([]tracedb.TraceRecord{
		{RunID: "run-1", Seq: 1, Time: 0, Type: "job_arrival", Fields: `{"sid":1}`},
		{RunID: "run-1", Seq: 2, Time: 2, Type: "job_arrival", Fields: `{"sid":1}`},
		{RunID: "run-1", Seq: 3, Time: 5, Type: "job_finished", Fields: `{"sid":1}`},
		{RunID: "run-1", Seq: 4, Time: 10, Type: "deadline_miss", Fields: `{"sid":1}`},
	}))

	rec := doRequest(s, http.MethodGet, "/api/v1/runs/run-1/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RunID       string          `json:"run_id"`
		RecordCount int             `json:"record_count"`
		Summary     metrics.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 4, body.RecordCount)
	assert.Equal(t, 2, body.Summary.JobArrivals)
	assert.Equal(t, 1, body.Summary.JobsCompleted)
	assert.Equal(t, 1, body.Summary.DeadlineMisses)
	assert.InDelta(t, 0.5, body.Summary.DeadlineMissRatio, 1e-9)
	// The first arrival (t=0) pairs FIFO with the finish at t=5.
	require.Equal(t, 1, body.Summary.Response.Count)
	assert.InDelta(t, 5, float64(body.Summary.Response.Mean), 1e-9)
}

func TestGetMetricsReturns404ForMissingRun(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/runs/nope/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
