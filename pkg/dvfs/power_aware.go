package dvfs

import (
	"math"

	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// PowerAware scales frequency with total utilization and always keeps
// every core active:
//
//	f_new = f_max * ((m-1)*u_max + U_total) / m
type PowerAware struct{}

func NewPowerAware() *PowerAware { return &PowerAware{} }

func (p *PowerAware) compute(sched *scheduler.EdfScheduler) PlatformTarget {
	m, _, uMax := utilizationInputs(sched)
	uTotal := sched.TotalUtilization()
	domain := sched.Platform().ClockDomain(sched.ClockDomain())

	fNew := float64(domain.FreqMax()) * (float64(m-1)*uMax + uTotal) / float64(m)
	return PlatformTarget{
		Frequency:   domain.CeilToMode(units.Frequency(math.Max(fNew, float64(domain.FreqMin())))),
		ActiveCount: m,
	}
}

func (p *PowerAware) OnUtilizationChanged(sched *scheduler.EdfScheduler) {
	apply(sched, p.compute(sched))
}

func (p *PowerAware) OnProcessorIdle(sched *scheduler.EdfScheduler, proc *hardware.Processor) {
	apply(sched, p.compute(sched))
}

func (p *PowerAware) OnProcessorActive(sched *scheduler.EdfScheduler, proc *hardware.Processor) {}
