// Package factory resolves the CLI's string-named scheduler,
// allocator, admission, reclamation, and DVFS/DPM choices (internal/config)
// into the concrete pkg/* types the engine is wired from. It is the
// only package allowed to know every core package's constructor names
// at once; pkg/* packages never import each other this way.
package factory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fillien/schedsim-go/pkg/allocator"
	"github.com/fillien/schedsim-go/pkg/cbs"
	"github.com/fillien/schedsim-go/pkg/dvfs"
	"github.com/fillien/schedsim-go/pkg/reclamation"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// Admission maps --admission to a scheduler.AdmissionTest.
func Admission(name string) (scheduler.AdmissionTest, error) {
	switch name {
	case "", "capacity_bound":
		return scheduler.CapacityBound, nil
	case "gfb":
		return scheduler.GFB, nil
	default:
		return 0, simerr.NewLoaderError(fmt.Sprintf("unknown admission test %q", name), nil)
	}
}

// DeadlineMiss maps --deadline-miss to a cbs.DeadlineMissPolicy.
func DeadlineMiss(name string) (cbs.DeadlineMissPolicy, error) {
	switch name {
	case "", "continue":
		return cbs.Continue, nil
	case "abort_job":
		return cbs.AbortJob, nil
	case "abort_task":
		return cbs.AbortTask, nil
	case "stop":
		return cbs.StopSimulation, nil
	default:
		return 0, simerr.NewLoaderError(fmt.Sprintf("unknown deadline-miss policy %q", name), nil)
	}
}

// NewReclamation returns a constructor for --reclamation that the
// loader invokes once per cluster (GRUB needs that cluster's own
// scheduler as its ActiveUtilizationSource, so the factory can't build
// the policy itself before the scheduler exists).
func NewReclamation(name string) (func(source reclamation.ActiveUtilizationSource) cbs.ReclamationPolicy, error) {
	switch name {
	case "", "cbs":
		return func(reclamation.ActiveUtilizationSource) cbs.ReclamationPolicy { return reclamation.NewPlain() }, nil
	case "grub":
		return func(source reclamation.ActiveUtilizationSource) cbs.ReclamationPolicy { return reclamation.NewGRUB(source) }, nil
	case "cash":
		return func(reclamation.ActiveUtilizationSource) cbs.ReclamationPolicy { return reclamation.NewCASH() }, nil
	default:
		return nil, simerr.NewLoaderError(fmt.Sprintf("unknown reclamation policy %q", name), nil)
	}
}

// DVFS maps --policy (plus an optional cooldown for the _timer
// variants) to a scheduler.DVFSPolicy, or nil for "none".
func DVFS(name string, cooldown units.Duration) (scheduler.DVFSPolicy, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "power_aware":
		return dvfs.NewPowerAware(), nil
	case "ffa":
		return dvfs.NewFFA(), nil
	case "csf":
		return dvfs.NewCSF(), nil
	case "power_aware_timer":
		return dvfs.NewPowerAwareTimer(cooldown), nil
	case "ffa_timer":
		return dvfs.NewFFATimer(cooldown), nil
	case "csf_timer":
		return dvfs.NewCSFTimer(cooldown), nil
	default:
		return nil, simerr.NewLoaderError(fmt.Sprintf("unknown DVFS/DPM policy %q", name), nil)
	}
}

// Allocator parses "--allocator name[:k=v,...]" into an
// allocator.Policy. The only variant that consumes options is mcts,
// whose pattern is a dash-separated list under key "pattern" (e.g.
// "mcts:pattern=0-1-0-2").
func Allocator(spec string) (allocator.Policy, error) {
	name, opts := splitSpec(spec)
	switch name {
	case "", "first_fit":
		return allocator.NewFirstFit(), nil
	case "ff_big_first":
		return allocator.NewFFBigFirst(), nil
	case "ff_little_first":
		return allocator.NewFFLittleFirst(), nil
	case "ff_cap":
		return allocator.NewFFCap(), nil
	case "ff_lb":
		return allocator.NewFFLb(), nil
	case "best_fit":
		return allocator.NewBestFit(), nil
	case "worst_fit":
		return allocator.NewWorstFit(), nil
	case "ff_cap_adaptive_linear":
		return allocator.NewFFCapAdaptiveLinear(), nil
	case "ff_cap_adaptive_poly":
		return allocator.NewFFCapAdaptivePoly(), nil
	case "mcts":
		pattern, err := parseMCTSPattern(opts["pattern"])
		if err != nil {
			return nil, err
		}
		return allocator.NewMCTS(pattern), nil
	default:
		return nil, simerr.NewLoaderError(fmt.Sprintf("unknown allocator %q", name), nil)
	}
}

func splitSpec(spec string) (name string, opts map[string]string) {
	opts = make(map[string]string)
	parts := strings.SplitN(spec, ":", 2)
	name = parts[0]
	if len(parts) == 1 {
		return name, opts
	}
	for _, kv := range strings.Split(parts[1], ",") {
		if kv == "" {
			continue
		}
		pieces := strings.SplitN(kv, "=", 2)
		if len(pieces) == 2 {
			opts[pieces[0]] = pieces[1]
		}
	}
	return name, opts
}

func parseMCTSPattern(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	fields := strings.Split(raw, "-")
	pattern := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, simerr.NewLoaderError(fmt.Sprintf("invalid mcts pattern entry %q", f), err)
		}
		pattern = append(pattern, v)
	}
	return pattern, nil
}
