package allocator

import (
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// mctsSeed is the fixed xor-shift seed, so MCTS runs are reproducible
// across a given pattern.
const mctsSeed uint64 = 0x9E3779B97F4A7C15

// MCTS replays a supplied cluster-index pattern step-by-step; once the
// pattern is exhausted it falls back to an xor-shift PRNG private to
// this instance (no global mutable state). It never
// consults CanAdmit itself — placement always "succeeds" from the
// allocator's point of view, and a downstream admission failure (if
// any) comes back as an error from EdfScheduler.SubmitJob, which the
// Allocator reports as the usual task_rejected trace.
type MCTS struct {
	pattern []int
	step    int
	rng     uint64
}

// NewMCTS constructs an MCTS allocator policy that replays pattern
// before falling back to the seeded PRNG.
func NewMCTS(pattern []int) *MCTS {
	return &MCTS{pattern: pattern, rng: mctsSeed}
}

func (p *MCTS) next() uint64 {
	x := p.rng
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	p.rng = x
	return x * 2685821657736338717
}

// pickRandom draws a cluster index: a 2-cluster platform is
// special-cased to a single low bit, everything else reduces modulo n.
func (p *MCTS) pickRandom(n int) int {
	if n == 2 {
		return int(p.next() & 1)
	}
	return int(p.next() % uint64(n))
}

func (p *MCTS) Select(a *Allocator, _ workload.TaskID, _, _ units.Duration) (int, bool) {
	n := len(a.clusters)
	if n == 0 {
		return 0, false
	}

	var idx int
	if p.step < len(p.pattern) {
		// Out-of-range pattern entries wrap modulo the cluster count
		// rather than erroring.
		idx = ((p.pattern[p.step] % n) + n) % n
	} else {
		idx = p.pickRandom(n)
	}
	p.step++
	return idx, true
}
