// Package generate builds synthetic task sets with the
// UUniFast-Discard algorithm: UUniFast splits the total utilization
// among the tasks one task at a time, and the whole set is discarded
// and redrawn whenever any single task exceeds a caller-set cap. It never reads the global math/rand source — every call takes
// an explicit *rand.Rand, so two generators with the same seed produce
// identical task sets regardless of what else the process is doing.
package generate

import (
	"math"
	"math/rand"
	"sort"

	"github.com/fillien/schedsim-go/pkg/ioformat"
	"github.com/fillien/schedsim-go/pkg/simerr"
)

// TaskSpec is one generated task: its utilization, its period (drawn
// from Options.Periods), and the WCET implied by the two
// (WCET = Utilization * Period).
type TaskSpec struct {
	ID          uint64
	Utilization float64
	Period      float64
	WCET        float64
}

// Options bounds a UUniFastDiscard draw.
type Options struct {
	// NumTasks is the number of tasks to generate.
	NumTasks int
	// TotalUtilization is the target sum of per-task utilizations.
	TotalUtilization float64
	// MaxUtilization caps any single task's utilization; a draw with a
	// task above this cap is discarded and retried. Zero means no cap.
	MaxUtilization float64
	// Periods is the discrete set a task's period is drawn from
	// (uniformly, with replacement). Must be non-empty.
	Periods []float64
	// MaxAttempts bounds the discard-and-retry loop; zero uses 1000.
	MaxAttempts int
}

// UUniFastDiscard draws opts.NumTasks utilizations summing to
// opts.TotalUtilization via the UUniFast algorithm, discarding and
// redrawing the whole set whenever a task exceeds opts.MaxUtilization,
// then assigns each one a period from opts.Periods and derives WCET.
func UUniFastDiscard(opts Options, rng *rand.Rand) ([]TaskSpec, error) {
	if opts.NumTasks <= 0 {
		return nil, simerr.NewInvalidStateError("generate: NumTasks must be positive")
	}
	if opts.TotalUtilization <= 0 {
		return nil, simerr.NewInvalidStateError("generate: TotalUtilization must be positive")
	}
	if len(opts.Periods) == 0 {
		return nil, simerr.NewInvalidStateError("generate: Periods must be non-empty")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1000
	}

	var utils []float64
	for attempt := 0; ; attempt++ {
		if attempt >= maxAttempts {
			return nil, simerr.NewInvalidStateError("generate: exceeded max attempts satisfying utilization cap")
		}
		utils = uuniFast(opts.NumTasks, opts.TotalUtilization, rng)
		if opts.MaxUtilization <= 0 || withinCap(utils, opts.MaxUtilization) {
			break
		}
	}

	tasks := make([]TaskSpec, opts.NumTasks)
	for i, u := range utils {
		period := opts.Periods[rng.Intn(len(opts.Periods))]
		tasks[i] = TaskSpec{
			ID:          uint64(i + 1),
			Utilization: u,
			Period:      period,
			WCET:        u * period,
		}
	}
	return tasks, nil
}

// uuniFast implements Bini & Buttazzo's algorithm: for each of the
// first n-1 tasks, draw the utilization left for the tasks after it as
// sumU * r^(1/(n-i)) and give this task the difference; the last task
// takes whatever remains.
func uuniFast(n int, total float64, rng *rand.Rand) []float64 {
	utils := make([]float64, n)
	sumU := total
	for i := 0; i < n-1; i++ {
		next := sumU * math.Pow(rng.Float64(), 1.0/float64(n-i))
		utils[i] = sumU - next
		sumU = next
	}
	utils[n-1] = sumU
	return utils
}

func withinCap(utils []float64, cap float64) bool {
	for _, u := range utils {
		if u > cap {
			return false
		}
	}
	return true
}

// ToScenarioDoc packages generated tasks into a ScenarioDoc with a
// single job per task, releasing at time zero and running for exactly
// its WCET (a worst-case, no-early-completion scenario).
func ToScenarioDoc(tasks []TaskSpec) *ioformat.ScenarioDoc {
	doc := &ioformat.ScenarioDoc{Tasks: make([]ioformat.TaskDoc, len(tasks))}
	for i, t := range tasks {
		doc.Tasks[i] = ioformat.TaskDoc{
			ID:          t.ID,
			Utilization: t.Utilization,
			Period:      t.Period,
			Jobs: []ioformat.JobDoc{
				{Arrival: 0, Duration: t.WCET},
			},
		}
	}
	return doc
}

// SortByUtilization orders tasks descending by utilization, in place.
func SortByUtilization(tasks []TaskSpec) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Utilization > tasks[j].Utilization })
}
