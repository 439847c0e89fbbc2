package dvfs

import (
	"math"

	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// FFA (Frequency-First Adaptation) computes the frequency needed to
// cover active utilization spread over m cores, then only falls back
// to sleeping cores when that frequency would drop below the
// efficient operating point:
//
//	f_min = f_max * (U_active + (m-1)*u_max) / m
//
// If f_min < f_eff, frequency holds at f_eff and active cores become
// ceil(m*f_min/f_eff); otherwise every core stays active at
// ceil_to_mode(f_min).
type FFA struct{}

func NewFFA() *FFA { return &FFA{} }

func ffaMin(sched *scheduler.EdfScheduler) (fMin units.Frequency, m int) {
	m, uActive, uMax := utilizationInputs(sched)
	domain := sched.Platform().ClockDomain(sched.ClockDomain())
	fMin = units.Frequency(float64(domain.FreqMax()) * (uActive + float64(m-1)*uMax) / float64(m))
	return fMin, m
}

func (p *FFA) compute(sched *scheduler.EdfScheduler) PlatformTarget {
	domain := sched.Platform().ClockDomain(sched.ClockDomain())
	fMin, m := ffaMin(sched)

	if fMin < domain.Efficient() {
		active := int(math.Ceil(float64(m) * float64(fMin) / float64(domain.Efficient())))
		if active < 1 {
			active = 1
		}
		return PlatformTarget{Frequency: domain.Efficient(), ActiveCount: active}
	}
	return PlatformTarget{Frequency: domain.CeilToMode(fMin), ActiveCount: m}
}

func (p *FFA) OnUtilizationChanged(sched *scheduler.EdfScheduler) {
	apply(sched, p.compute(sched))
}

func (p *FFA) OnProcessorIdle(sched *scheduler.EdfScheduler, proc *hardware.Processor) {
	apply(sched, p.compute(sched))
}

func (p *FFA) OnProcessorActive(sched *scheduler.EdfScheduler, proc *hardware.Processor) {}
