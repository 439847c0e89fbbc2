// Package reclamation implements the three bandwidth-reclamation
// policies plugged into a CBS server: plain CBS (no reclamation),
// GRUB, and CASH. Each implements cbs.ReclamationPolicy.
package reclamation

import (
	"github.com/fillien/schedsim-go/pkg/cbs"
	"github.com/fillien/schedsim-go/pkg/units"
)

// ActiveUtilizationSource lets a policy read the owning scheduler's
// U_active without this package importing the scheduler package.
type ActiveUtilizationSource interface {
	ActiveUtilization() float64
}

// minUtilization is GRUB's clamp floor, avoiding division by zero for
// a near-idle system.
const minUtilization = 0.01

// Plain is the default CBS reclamation policy: no reclamation at all.
// Virtual time advances at new_vt = vt_now + exec/U_i.
type Plain struct{}

func NewPlain() *Plain { return &Plain{} }

func (p *Plain) OnEarlyCompletion(s *cbs.Server, residual units.Duration) bool { return false }

func (p *Plain) OnBudgetExhausted(s *cbs.Server) units.Duration { return 0 }

func (p *Plain) ComputeVirtualTime(s *cbs.Server, vtNow units.TimePoint, exec units.Duration) units.TimePoint {
	u := s.Utilization()
	if u < minUtilization {
		u = minUtilization
	}
	return vtNow.Add(units.Duration(float64(exec) / u))
}

func (p *Plain) BudgetDrainRate(s *cbs.Server, execRate float64) float64 { return 1.0 / execRate }

func (p *Plain) OnServerStateChange(s *cbs.Server, from, to cbs.State) {}

// GRUB reclaims bandwidth from underloaded systems: virtual time
// advances at rate U_active/U_i, so idle capacity is never wasted.
// Early completion enters NonContending until vt >= d_s.
type GRUB struct {
	source ActiveUtilizationSource
}

func NewGRUB(source ActiveUtilizationSource) *GRUB { return &GRUB{source: source} }

func (g *GRUB) OnEarlyCompletion(s *cbs.Server, residual units.Duration) bool { return true }

func (g *GRUB) OnBudgetExhausted(s *cbs.Server) units.Duration { return 0 }

func (g *GRUB) ComputeVirtualTime(s *cbs.Server, vtNow units.TimePoint, exec units.Duration) units.TimePoint {
	ui := s.Utilization()
	if ui < minUtilization {
		ui = minUtilization
	}
	uActive := g.source.ActiveUtilization()
	if uActive < minUtilization {
		uActive = minUtilization
	}
	// vt advances at rate U_active/U_i: an underloaded system (small
	// U_active) slows the virtual clock, reclaiming the idle bandwidth.
	return vtNow.Add(units.Duration(float64(exec) * uActive / ui))
}

func (g *GRUB) BudgetDrainRate(s *cbs.Server, execRate float64) float64 {
	uActive := g.source.ActiveUtilization()
	if uActive < minUtilization {
		uActive = minUtilization
	}
	uI := s.Utilization()
	if uI < minUtilization {
		uI = minUtilization
	}
	return uActive / uI
}

func (g *GRUB) OnServerStateChange(s *cbs.Server, from, to cbs.State) {}

// CASH maintains a shared spare-budget pool across every server it
// governs: early completions deposit residual budget into the pool,
// and a budget exhaustion withdraws the whole pool at once. CASH does
// not use NonContending: that state is GRUB-only, and the two policies
// are mutually exclusive, never combined on one server.
type CASH struct {
	pool units.Duration
}

func NewCASH() *CASH { return &CASH{} }

func (c *CASH) OnEarlyCompletion(s *cbs.Server, residual units.Duration) bool {
	c.pool += residual
	return false
}

func (c *CASH) OnBudgetExhausted(s *cbs.Server) units.Duration {
	grant := c.pool
	c.pool = 0
	return grant
}

func (c *CASH) ComputeVirtualTime(s *cbs.Server, vtNow units.TimePoint, exec units.Duration) units.TimePoint {
	u := s.Utilization()
	if u < minUtilization {
		u = minUtilization
	}
	return vtNow.Add(units.Duration(float64(exec) / u))
}

func (c *CASH) BudgetDrainRate(s *cbs.Server, execRate float64) float64 { return 1.0 / execRate }

func (c *CASH) OnServerStateChange(s *cbs.Server, from, to cbs.State) {}

// Pool exposes the current shared spare-budget pool, for trace/metrics.
func (c *CASH) Pool() units.Duration { return c.pool }
