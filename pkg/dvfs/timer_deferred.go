package dvfs

import (
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/scheduler"
	"github.com/fillien/schedsim-go/pkg/units"
)

// computer is whatever a concrete policy exposes to compute its
// desired operating point; PowerAware, FFA, and CSF all satisfy it.
type computer interface {
	compute(sched *scheduler.EdfScheduler) PlatformTarget
}

// TimerDeferred wraps any policy with a cooldown Δ_cd between applied
// changes: a utilization change within the cooldown of the last one
// only overwrites the pending target in place, so a burst of changes
// within Δ_cd of each other applies exactly once, reflecting the
// latest target when the cooldown elapses.
type TimerDeferred struct {
	inner    computer
	cooldown units.Duration

	pend *pending
}

func newTimerDeferred(inner computer, cooldown units.Duration) *TimerDeferred {
	return &TimerDeferred{inner: inner, cooldown: cooldown}
}

func NewPowerAwareTimer(cooldown units.Duration) *TimerDeferred {
	return newTimerDeferred(&PowerAware{}, cooldown)
}

func NewFFATimer(cooldown units.Duration) *TimerDeferred {
	return newTimerDeferred(&FFA{}, cooldown)
}

func NewCSFTimer(cooldown units.Duration) *TimerDeferred {
	return newTimerDeferred(&CSF{}, cooldown)
}

func (t *TimerDeferred) OnUtilizationChanged(sched *scheduler.EdfScheduler) {
	t.reconsider(sched)
}

func (t *TimerDeferred) OnProcessorIdle(sched *scheduler.EdfScheduler, proc *hardware.Processor) {
	t.reconsider(sched)
}

func (t *TimerDeferred) OnProcessorActive(sched *scheduler.EdfScheduler, proc *hardware.Processor) {}

func (t *TimerDeferred) reconsider(sched *scheduler.EdfScheduler) {
	target := t.inner.compute(sched)

	if t.pend != nil {
		t.pend.target = target
		return
	}
	if target.Equal(currentState(sched)) {
		return
	}

	p := &pending{target: target}
	when := sched.Engine().Now().Add(t.cooldown)
	p.timer = sched.Engine().AddTimer(when, func(e *engine.Engine) {
		t.fire(sched, p)
	})
	t.pend = p
}

func (t *TimerDeferred) fire(sched *scheduler.EdfScheduler, p *pending) {
	if t.pend != p {
		return // stale: this pending target is no longer the live one
	}
	t.pend = nil
	apply(sched, p.target)
}

// Close cancels any outstanding cooldown timer, e.g. when the owning
// cluster is torn down mid-run.
func (t *TimerDeferred) Close() {
	if t.pend != nil {
		_ = t.pend.timer.Cancel()
		t.pend = nil
	}
}
