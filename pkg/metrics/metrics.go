// Package metrics extracts statistics from a finished simulation
// trace: deadline misses, response-time distribution, per-cluster
// utilization, energy, and per-task job counts. It is a thin
// translation layer over the trace record stream the engine already
// produces: it never touches the engine, platform, or scheduler state
// directly, only the records they emitted.
package metrics

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"sort"

	"github.com/fillien/schedsim-go/pkg/ioformat"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// Record is one decoded trace line: the mandatory "t"/"type" fields
// plus whatever type-specific fields the emitting component attached
// (tid, sid, cpu, freq, ...).
type Record struct {
	Time   units.TimePoint
	Type   string
	Fields map[string]any
}

// Int reads an integer-valued field. JSON numbers decode as float64,
// so this accepts either representation.
func (r Record) Int(key string) (int, bool) {
	switch v := r.Fields[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// Float reads a float-valued field.
func (r Record) Float(key string) (float64, bool) {
	v, ok := r.Fields[key].(float64)
	return v, ok
}

// String reads a string-valued field.
func (r Record) String(key string) (string, bool) {
	v, ok := r.Fields[key].(string)
	return v, ok
}

// LoadJSONLines decodes a JSON-lines trace (one object per line, each
// with "t" and "type") into a slice of Records, in file order (which
// is emission order: the writer is fed synchronously by the engine).
func LoadJSONLines(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var out []Record
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, simerr.NewLoaderError("decoding trace record", err)
		}
		t, _ := raw["t"].(float64)
		typ, _ := raw["type"].(string)
		delete(raw, "t")
		delete(raw, "type")
		out = append(out, Record{Time: units.TimePoint(t), Type: typ, Fields: raw})
	}
	if err := sc.Err(); err != nil {
		return nil, simerr.NewLoaderError("scanning trace", err)
	}
	return out, nil
}

// ResponseStats summarizes the distribution of per-job response times
// (completion time minus arrival time).
type ResponseStats struct {
	Count int
	Min   units.Duration
	Max   units.Duration
	Mean  units.Duration
	P95   units.Duration
}

// Summary is the complete set of post-run statistics extracted from
// one trace.
type Summary struct {
	JobArrivals       int
	JobsCompleted     int
	DeadlineMisses    int
	DeadlineMissRatio float64
	TasksRejected     int
	TasksPlaced       int
	Response          ResponseStats
	JobCountByServer  map[int]int
}

// Summarize walks records once, in order, pairing each server's
// job_arrival events with its job_finished events FIFO (a CBS
// server's queue is strictly FIFO, so the Nth arrival on a server
// completes before the (N+1)th does) to derive response times.
func Summarize(records []Record) Summary {
	sum := Summary{JobCountByServer: make(map[int]int)}
	arrivalQueue := make(map[int][]units.TimePoint)
	var responses []units.Duration

	for _, rec := range records {
		switch rec.Type {
		case "job_arrival":
			sum.JobArrivals++
			if sid, ok := rec.Int("sid"); ok {
				arrivalQueue[sid] = append(arrivalQueue[sid], rec.Time)
				sum.JobCountByServer[sid]++
			}
		case "job_finished":
			sum.JobsCompleted++
			if sid, ok := rec.Int("sid"); ok {
				if q := arrivalQueue[sid]; len(q) > 0 {
					responses = append(responses, rec.Time.Sub(q[0]))
					arrivalQueue[sid] = q[1:]
				}
			}
		case "deadline_miss":
			sum.DeadlineMisses++
		case "task_rejected":
			sum.TasksRejected++
		case "task_placed":
			sum.TasksPlaced++
		}
	}

	if sum.JobArrivals > 0 {
		sum.DeadlineMissRatio = float64(sum.DeadlineMisses) / float64(sum.JobArrivals)
	}
	sum.Response = responseStats(responses)
	return sum
}

func responseStats(d []units.Duration) ResponseStats {
	if len(d) == 0 {
		return ResponseStats{}
	}
	sorted := append([]units.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum units.Duration
	for _, v := range sorted {
		sum += v
	}
	p95Idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if p95Idx < 0 {
		p95Idx = 0
	}
	if p95Idx >= len(sorted) {
		p95Idx = len(sorted) - 1
	}
	return ResponseStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / units.Duration(len(sorted)),
		P95:   sorted[p95Idx],
	}
}

// ClusterUtilization is the fraction of available processor-seconds a
// cluster's cores spent Running over the observed window.
type ClusterUtilization struct {
	ClusterID string
	Busy      units.Duration
	Capacity  units.Duration
	Fraction  float64
}

// ComputeUtilization integrates dispatch/preempt/job_finished events
// per processor into per-cluster busy time, using cpuCluster to map a
// trace's numeric "cpu" field to the cluster id that owns it (built by
// the caller from the live hardware.Platform / scheduler.Cluster set,
// since the trace itself carries no cluster id on dispatch events).
func ComputeUtilization(records []Record, cpuCluster map[int]string, until units.TimePoint) []ClusterUtilization {
	runningSince := make(map[int]units.TimePoint)
	running := make(map[int]bool)
	busy := make(map[int]units.Duration)

	for _, rec := range records {
		cpu, ok := rec.Int("cpu")
		if !ok {
			continue
		}
		switch rec.Type {
		case "dispatch":
			running[cpu] = true
			runningSince[cpu] = rec.Time
		case "preempt", "job_finished":
			if running[cpu] {
				busy[cpu] += rec.Time.Sub(runningSince[cpu])
				running[cpu] = false
			}
		}
	}
	for cpu, isRunning := range running {
		if isRunning {
			busy[cpu] += until.Sub(runningSince[cpu])
		}
	}

	busyByCluster := make(map[string]units.Duration)
	countByCluster := make(map[string]int)
	for cpu, cluster := range cpuCluster {
		busyByCluster[cluster] += busy[cpu]
		countByCluster[cluster]++
	}

	ids := make([]string, 0, len(busyByCluster))
	for id := range countByCluster {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ClusterUtilization, 0, len(ids))
	for _, id := range ids {
		n := countByCluster[id]
		capacity := units.Duration(float64(n) * float64(until))
		frac := 0.0
		if capacity.Positive() {
			frac = float64(busyByCluster[id]) / float64(capacity)
		}
		out = append(out, ClusterUtilization{
			ClusterID: id,
			Busy:      busyByCluster[id],
			Capacity:  capacity,
			Fraction:  frac,
		})
	}
	return out
}

// EnergyModel supplies the per-domain static data ComputeEnergy needs
// to turn freq_change/proc_state_change events into a power draw:
// each domain's active-state power polynomial (evaluated at the
// domain's current frequency, per Platform JSON's power_model) and its
// sleep-state power, plus the cpu->domain and initial-frequency maps a
// live hardware.Platform already knows at the start of a run.
type EnergyModel struct {
	CPUDomain   map[int]int
	PowerModel  map[int][]float64
	SleepPower  map[int]units.Power
	InitialFreq map[int]units.Frequency
}

// ComputeEnergy integrates total platform power over the trace: a cpu
// currently at C-state 0 draws its domain's power_model evaluated at
// the domain's current frequency; any deeper C-state draws the
// domain's flat sleep power instead.
func ComputeEnergy(records []Record, model EnergyModel) units.Energy {
	domainFreq := make(map[int]units.Frequency, len(model.InitialFreq))
	for d, f := range model.InitialFreq {
		domainFreq[d] = f
	}
	cpuAwake := make(map[int]bool, len(model.CPUDomain))
	for cpu := range model.CPUDomain {
		cpuAwake[cpu] = true
	}

	totalPower := func() units.Power {
		var p float64
		for cpu, domain := range model.CPUDomain {
			if cpuAwake[cpu] {
				p += float64(ioformat.PowerModel(model.PowerModel[domain], domainFreq[domain]))
			} else {
				p += float64(model.SleepPower[domain])
			}
		}
		return units.Power(p)
	}

	var energy units.Energy
	var lastTime units.TimePoint
	for _, rec := range records {
		if dt := rec.Time.Sub(lastTime); dt.Positive() {
			energy += totalPower().Energy(dt)
		}
		lastTime = rec.Time

		switch rec.Type {
		case "freq_change":
			domain, ok := rec.Int("domain")
			freq, fok := rec.Float("freq")
			if ok && fok {
				domainFreq[domain] = units.Frequency(freq)
			}
		case "proc_state_change":
			cpu, ok := rec.Int("cpu")
			cstate, cok := rec.Int("cstate")
			if ok && cok {
				cpuAwake[cpu] = cstate == 0
			}
		}
	}
	return energy
}
