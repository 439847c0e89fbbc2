// Package runapi is the read-only HTTP front end over a finished
// run's trace store: gin.Default() plus gin-contrib/cors, one
// versioned route group, gin.H error bodies. It serves history only; a
// run's simulation loop is never driven through HTTP.
package runapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fillien/schedsim-go/internal/tracedb"
	"github.com/fillien/schedsim-go/pkg/metrics"
	"github.com/fillien/schedsim-go/pkg/units"
)

// Server is the read-only run API.
type Server struct {
	router *gin.Engine
	repo   *tracedb.Repository
	addr   string
}

// NewServer builds a Server bound to addr (host:port), backed by repo.
func NewServer(repo *tracedb.Repository, addr string) *Server {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(config))

	s := &Server{router: router, repo: repo, addr: addr}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/runs/:id/trace", s.getTrace)
	api.GET("/runs/:id/metrics", s.getMetrics)
	api.GET("/health", s.healthCheck)
}

// Start blocks serving on s.addr.
func (s *Server) Start() error {
	return s.router.Run(s.addr)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.repo.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.repo.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getTrace(c *gin.Context) {
	id := c.Param("id")
	recordType := c.Query("type")

	var (
		records []tracedb.TraceRecord
		err     error
	)
	if recordType != "" {
		records, err = s.repo.GetTraceRecordsByType(id, recordType)
	} else {
		records, err = s.repo.GetTraceRecords(id)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getMetrics(c *gin.Context) {
	run, err := s.repo.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	records, err := s.repo.GetTraceRecords(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	decoded, err := decodeRecords(records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.ID,
		"record_count": len(records),
		"summary":      metrics.Summarize(decoded),
	})
}

// decodeRecords turns stored trace rows back into the metrics
// package's record shape, re-hydrating each row's JSON field blob.
func decodeRecords(records []tracedb.TraceRecord) ([]metrics.Record, error) {
	out := make([]metrics.Record, 0, len(records))
	for _, rec := range records {
		fields := map[string]any{}
		if rec.Fields != "" {
			if err := json.Unmarshal([]byte(rec.Fields), &fields); err != nil {
				return nil, err
			}
		}
		out = append(out, metrics.Record{
			Time:   units.TimePoint(rec.Time),
			Type:   rec.Type,
			Fields: fields,
		})
	}
	return out, nil
}
