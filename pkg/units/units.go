// Package units provides the strong-typed scalars the rest of the
// simulator is built on: rational time (TimePoint, Duration),
// Frequency, Power, and Energy. No code outside round_zero-derived
// helpers here may compare two raw floats for time or duration.
package units

import "math"

// Epsilon is the tolerance below which two time-like values are
// considered equal. All floating point drift from DVFS-scaled budget
// and work arithmetic is absorbed at this scale.
const Epsilon = 1e-9

// roundZero is the single primitive comparison helper; every other
// comparison in this package (and in callers that embed a Duration or
// TimePoint) is expressed in terms of it.
func roundZero(delta float64) float64 {
	if math.Abs(delta) < Epsilon {
		return 0
	}
	return delta
}

// TimePoint is an absolute instant in simulated time, in seconds.
type TimePoint float64

// Duration is a span of simulated time, in seconds.
type Duration float64

// Frequency is a clock rate, in MHz.
type Frequency float64

// Power is an instantaneous power draw, in mW.
type Power float64

// Energy is Power integrated over Duration, in mJ (mW * s).
type Energy float64

// Add returns t+d.
func (t TimePoint) Add(d Duration) TimePoint { return t + TimePoint(d) }

// Sub returns the Duration between two TimePoints (t - other).
func (t TimePoint) Sub(other TimePoint) Duration { return Duration(t - other) }

// Compare returns -1, 0, or 1 as t is before, equal to (within
// Epsilon), or after other.
func (t TimePoint) Compare(other TimePoint) int {
	d := roundZero(float64(t - other))
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly before other, outside Epsilon.
func (t TimePoint) Before(other TimePoint) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly after other, outside Epsilon.
func (t TimePoint) After(other TimePoint) bool { return t.Compare(other) > 0 }

// Equal reports whether t and other are equal within Epsilon.
func (t TimePoint) Equal(other TimePoint) bool { return t.Compare(other) == 0 }

// Compare returns -1, 0, or 1 as d is less than, equal to (within
// Epsilon), or greater than other.
func (d Duration) Compare(other Duration) int {
	delta := roundZero(float64(d - other))
	switch {
	case delta < 0:
		return -1
	case delta > 0:
		return 1
	default:
		return 0
	}
}

// Less reports whether d is strictly less than other, outside Epsilon.
func (d Duration) Less(other Duration) bool { return d.Compare(other) < 0 }

// Positive reports whether d is strictly greater than zero, outside
// Epsilon.
func (d Duration) Positive() bool { return d.Compare(0) > 0 }

// ClampNonNegative clamps d to zero if it is negative within Epsilon
// (accumulated DVFS rounding produces small negative remainders that
// are not meaningful work).
func (d Duration) ClampNonNegative() Duration {
	if d < 0 {
		return 0
	}
	return d
}

// MinDuration returns the smaller of two Durations.
func MinDuration(a, b Duration) Duration {
	if a.Less(b) {
		return a
	}
	return b
}

// Energy computes Power * Duration.
func (p Power) Energy(d Duration) Energy {
	return Energy(float64(p) * float64(d))
}
