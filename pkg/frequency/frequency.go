// Package frequency converts raw counter captures into an oscillator
// frequency in MHz.
package frequency

import (
	"math"

	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/diag"
)

const (
	// DefaultMultiplier is the prescaler between oscillator and counter.
	DefaultMultiplier = 80
	// MaxMHz is the upper bound of a valid reading.
	MaxMHz = 1000
)

// Estimator converts captures to MHz and maintains the frequency bits of
// the diagnostics word.
type Estimator struct {
	Multiplier float64
	OilIndex   float64
}

// New creates an estimator. A zero multiplier selects DefaultMultiplier.
func New(multiplier, oilIndex float64) *Estimator {
	if multiplier == 0 {
		multiplier = DefaultMultiplier
	}
	return &Estimator{Multiplier: multiplier, OilIndex: oilIndex}
}

// Estimate returns the frequency and whether it is usable. When a range
// check fails the computed value is still returned so that it can be shown;
// when the capture itself is unusable the returned value is NaN.
func (e *Estimator) Estimate(raw counter.RawSample, d *diag.Word) (float64, bool) {
	if raw.PulseHigh != 0 {
		d.Set(diag.ErrFrqHi)
		return math.NaN(), false
	}
	d.Clear(diag.ErrFrqHi)

	if raw.ElapsedMicros == 0 {
		d.Set(diag.ErrFrqLo)
		return math.NaN(), false
	}
	d.Clear(diag.ErrFrqLo)

	mhz := float64(raw.PulseLow)/float64(raw.ElapsedMicros)*e.Multiplier + e.OilIndex

	switch {
	case math.IsNaN(mhz), mhz < 0:
		d.Set(diag.ErrFrqLo)
		return mhz, false
	case mhz > MaxMHz:
		d.Set(diag.ErrFrqHi)
		return mhz, false
	}

	d.Clear(diag.ErrFrqHi | diag.ErrFrqLo)
	return mhz, true
}
