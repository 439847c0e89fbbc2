package dvfs

import (
	"math"

	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// CSF (Core-Sleep-First) inverts FFA's priority: it first shrinks the
// core count to the minimum able to carry the load at full speed,
//
//	m_min = ceil((U_active - u_max) / (1 - u_max))
//
// then derives the frequency needed on those m_min cores. Only below
// the efficient point does it trade cores for voltage: frequency holds
// at f_eff and the active count shrinks to ceil(m_min * f_min/f_eff).
// At or above f_eff every core stays awake at ceil_to_mode(f_min).
type CSF struct{}

func NewCSF() *CSF { return &CSF{} }

// clampProcs rounds value up to a legal core count in [1, m].
func clampProcs(value float64, m int) int {
	if value < 1 {
		return 1
	}
	n := int(math.Ceil(value))
	if n > m {
		return m
	}
	return n
}

func (p *CSF) compute(sched *scheduler.EdfScheduler) PlatformTarget {
	m, uActive, uMax := utilizationInputs(sched)
	domain := sched.Platform().ClockDomain(sched.ClockDomain())

	mMin := m
	if uMax < 1 {
		mMin = clampProcs((uActive-uMax)/(1-uMax), m)
	}
	fMin := units.Frequency(float64(domain.FreqMax()) * (uActive + float64(mMin-1)*uMax) / float64(mMin))

	if fMin < domain.Efficient() {
		active := clampProcs(float64(mMin)*float64(fMin)/float64(domain.Efficient()), m)
		return PlatformTarget{Frequency: domain.Efficient(), ActiveCount: active}
	}
	return PlatformTarget{Frequency: domain.CeilToMode(fMin), ActiveCount: m}
}

func (p *CSF) OnUtilizationChanged(sched *scheduler.EdfScheduler) {
	apply(sched, p.compute(sched))
}

func (p *CSF) OnProcessorIdle(sched *scheduler.EdfScheduler, proc *hardware.Processor) {
	apply(sched, p.compute(sched))
}

func (p *CSF) OnProcessorActive(sched *scheduler.EdfScheduler, proc *hardware.Processor) {}
