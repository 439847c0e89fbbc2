// Package gantt renders a finished simulation trace as a timeline:
// a fixed-width ASCII view for terminals and logs, and an SVG view
// for browsers. Both are pure functions over a slice of
// metrics.Record — neither touches the engine or platform, and
// neither depends on a rendering framework.
package gantt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fillien/schedsim-go/pkg/metrics"
	"github.com/fillien/schedsim-go/pkg/units"
)

// colors is the fixed palette SVG execution bars cycle through, keyed
// by server index modulo len(colors) (see ColorFor), so the same
// server keeps the same color across a whole render.
var colors = []string{
	"#FF0000", "#008000", "#0000FF", "#00FFFF", "#FF00FF", "#FFFF00",
	"#808080", "#A9A9A9", "#D3D3D3", "#A52A2A", "#00FF00", "#808000",
	"#FFA500", "#FFC0CB", "#800080", "#008080", "#EE82EE",
}

// ColorFor returns the stable color assigned to a server index.
func ColorFor(index int) string { return colors[index%len(colors)] }

// Execution is one contiguous span a job spent Running on a cpu,
// derived by pairing dispatch with the preempt/job_finished event that
// ends it. ServerID identifies the CBS server (one per admitted task)
// that was running, which is what dispatch/preempt/job_finished trace
// records carry.
type Execution struct {
	ServerID int
	CPU      int
	Start    units.TimePoint
	Stop     units.TimePoint
}

// Timeline is the decoded, renderer-agnostic shape both outputs draw
// from: one row per cpu, the executions that ran on it, and the
// overall time extent.
type Timeline struct {
	CPUs       []int
	Executions []Execution
	Until      units.TimePoint
}

// BuildTimeline replays dispatch/preempt/job_finished events into
// per-cpu executions. A dispatch still running at until is closed off
// there, mirroring how metrics.ComputeUtilization treats an
// unfinished span.
func BuildTimeline(records []metrics.Record, until units.TimePoint) Timeline {
	open := make(map[int]Execution)
	cpuSet := make(map[int]bool)
	var execs []Execution

	for _, rec := range records {
		cpu, ok := rec.Int("cpu")
		if !ok {
			continue
		}
		switch rec.Type {
		case "dispatch":
			cpuSet[cpu] = true
			sid, _ := rec.Int("sid")
			open[cpu] = Execution{ServerID: sid, CPU: cpu, Start: rec.Time}
		case "preempt", "job_finished":
			if e, ok := open[cpu]; ok {
				e.Stop = rec.Time
				execs = append(execs, e)
				delete(open, cpu)
			}
		}
	}
	for _, e := range open {
		e.Stop = until
		execs = append(execs, e)
	}

	cpus := make([]int, 0, len(cpuSet))
	for cpu := range cpuSet {
		cpus = append(cpus, cpu)
	}
	sort.Ints(cpus)
	sort.Slice(execs, func(i, j int) bool {
		if execs[i].CPU != execs[j].CPU {
			return execs[i].CPU < execs[j].CPU
		}
		return execs[i].Start < execs[j].Start
	})

	return Timeline{CPUs: cpus, Executions: execs, Until: until}
}

// RenderTextual draws a fixed-width ASCII timeline: one row per cpu,
// with [0, Until) scaled onto width columns, each column marked with
// the running server's letter ('A' + server id mod 26) and '.'
// otherwise. It is deliberately coarse — meant for a
// quick terminal glance, not measurement.
func RenderTextual(tl Timeline, width int) string {
	if width <= 0 {
		width = 80
	}
	scale := float64(width) / float64(tl.Until)
	if tl.Until <= 0 {
		scale = 0
	}

	rows := make(map[int][]byte, len(tl.CPUs))
	for _, cpu := range tl.CPUs {
		row := make([]byte, width)
		for i := range row {
			row[i] = '.'
		}
		rows[cpu] = row
	}

	for _, e := range tl.Executions {
		row := rows[e.CPU]
		start := int(float64(e.Start) * scale)
		stop := int(float64(e.Stop) * scale)
		if stop > width {
			stop = width
		}
		mark := byte('A' + byte(e.ServerID%26))
		for i := start; i < stop && i < width; i++ {
			if i >= 0 {
				row[i] = mark
			}
		}
	}

	var b strings.Builder
	for _, cpu := range tl.CPUs {
		fmt.Fprintf(&b, "cpu%-3d |%s|\n", cpu, rows[cpu])
	}
	return b.String()
}

const svgRowHeight = 24
const svgPxPerUnit = 8
const svgLeftMargin = 60

// RenderSVG draws one horizontal bar per execution, one row per cpu,
// colored by server id. Time is mapped linearly to the x axis at
// svgPxPerUnit pixels per time unit.
func RenderSVG(tl Timeline, serverColors func(serverID int) string) string {
	if serverColors == nil {
		serverColors = ColorFor
	}
	width := svgLeftMargin + int(float64(tl.Until)*svgPxPerUnit) + 20
	height := len(tl.CPUs)*svgRowHeight + 20

	rowOf := make(map[int]int, len(tl.CPUs))
	for i, cpu := range tl.CPUs {
		rowOf[cpu] = i
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`+"\n", width, height)
	for i, cpu := range tl.CPUs {
		y := 10 + i*svgRowHeight
		fmt.Fprintf(&b, `<text x="4" y="%d" font-size="12">cpu%d</text>`+"\n", y+14, cpu)
	}
	for _, e := range tl.Executions {
		row, ok := rowOf[e.CPU]
		if !ok {
			continue
		}
		x := svgLeftMargin + float64(e.Start)*svgPxPerUnit
		w := float64(e.Stop-e.Start) * svgPxPerUnit
		y := 10 + row*svgRowHeight
		fmt.Fprintf(&b, `<rect x="%.2f" y="%d" width="%.2f" height="%d" fill="%s"/>`+"\n",
			x, y, w, svgRowHeight-4, serverColors(e.ServerID))
	}
	b.WriteString(`</svg>` + "\n")
	return b.String()
}
