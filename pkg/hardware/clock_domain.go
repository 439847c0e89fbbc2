package hardware

import (
	"sort"

	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// ClockDomainID is an arena index into Platform.clockDomains.
type ClockDomainID int

// ClockDomain owns an ordered, discrete set of supported frequencies
// (stored descending) and tracks the currently active one. Invariant:
// freqMin <= current <= freqMax, and current is always a member of the
// supported set after CeilToMode.
type ClockDomain struct {
	id               ClockDomainID
	supported        []units.Frequency // descending
	current          units.Frequency
	efficient        units.Frequency // energy-per-work minimum operating point
	transitionDelay  units.Duration
	locked           bool
	transitioning    bool
}

// NewClockDomain constructs a ClockDomain. freqs need not be sorted;
// it is stored descending. The domain starts at its maximum frequency.
func NewClockDomain(id ClockDomainID, freqs []units.Frequency, efficient units.Frequency, transitionDelay units.Duration) *ClockDomain {
	sorted := append([]units.Frequency(nil), freqs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return &ClockDomain{
		id:              id,
		supported:       sorted,
		current:         sorted[0],
		efficient:       efficient,
		transitionDelay: transitionDelay,
	}
}

func (d *ClockDomain) ID() ClockDomainID         { return d.id }
func (d *ClockDomain) Current() units.Frequency  { return d.current }
func (d *ClockDomain) Efficient() units.Frequency { return d.efficient }
func (d *ClockDomain) FreqMax() units.Frequency  { return d.supported[0] }
func (d *ClockDomain) FreqMin() units.Frequency  { return d.supported[len(d.supported)-1] }
func (d *ClockDomain) Supported() []units.Frequency {
	out := make([]units.Frequency, len(d.supported))
	copy(out, d.supported)
	return out
}
func (d *ClockDomain) TransitionDelay() units.Duration { return d.transitionDelay }
func (d *ClockDomain) Locked() bool                    { return d.locked }
func (d *ClockDomain) Transitioning() bool              { return d.transitioning }
func (d *ClockDomain) SetLocked(v bool)                 { d.locked = v }
func (d *ClockDomain) SetTransitioning(v bool)           { d.transitioning = v }

// CeilToMode returns the smallest supported frequency >= f, or FreqMax
// if none qualifies (f above the top of the supported set).
func (d *ClockDomain) CeilToMode(f units.Frequency) units.Frequency {
	best := d.supported[0]
	for i := len(d.supported) - 1; i >= 0; i-- {
		if d.supported[i] >= f {
			best = d.supported[i]
			break
		}
	}
	return best
}

// SetFrequency sets the current frequency, ceiling to the nearest
// supported mode. Returns OutOfRangeError if f falls outside
// [FreqMin, FreqMax].
func (d *ClockDomain) SetFrequency(f units.Frequency) (units.Frequency, error) {
	if f < d.FreqMin() {
		return 0, simerr.NewOutOfRangeError("requested frequency below domain minimum")
	}
	if f > d.FreqMax() {
		return 0, simerr.NewOutOfRangeError("requested frequency above domain maximum")
	}
	d.current = d.CeilToMode(f)
	return d.current, nil
}
