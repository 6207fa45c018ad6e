// Package density applies the oil density correction to watercut.
package density

import (
	"errors"
	"fmt"

	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/diag"
)

const (
	// WaterKgM3 is the density of water at 15C.
	WaterKgM3 = 999.016

	// MinKgM3 and MaxKgM3 bound a plausible oil density.
	MinKgM3 = 750.0
	MaxKgM3 = 998.0

	// MaxAdjustment bounds the correction in watercut percent.
	MaxAdjustment = 10.0

	// HoldAbove is the raw watercut above which the adjustment is held.
	HoldAbove = 5.0
)

var ErrUnknownUnit = errors.New("unknown density unit")

// ToKgM3 converts a density in unit to kg/m3 at 15C.
func ToKgM3(unit string, v float64) (float64, error) {
	switch unit {
	case config.UnitKgM3:
		return v, nil
	case config.UnitSG:
		return v * WaterKgM3, nil
	case config.UnitAPI:
		return 141.5 / (v + 131.5) * WaterKgM3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
}

// FromKgM3 converts a density in kg/m3 at 15C to unit.
func FromKgM3(unit string, kgm3 float64) (float64, error) {
	switch unit {
	case config.UnitKgM3:
		return kgm3, nil
	case config.UnitSG:
		return kgm3 / WaterKgM3, nil
	case config.UnitAPI:
		return 141.5/(kgm3/WaterKgM3) - 131.5, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
}

// Coefficients of the correction polynomial. D3 is stored but never applied.
type Coefficients struct {
	D0, D1, D2, D3 float64
}

// DefaultsForUnit returns the factory coefficients for a calibration unit.
// Only kg/m3 and API are calibration units.
func DefaultsForUnit(unit string) (Coefficients, error) {
	switch unit {
	case config.UnitKgM3:
		return Coefficients{D0: 24.6, D1: -0.0286}, nil
	case config.UnitAPI:
		return Coefficients{D1: 0.16}, nil
	}
	return Coefficients{}, fmt.Errorf("%w: %q is not a calibration unit", ErrUnknownUnit, unit)
}

// Corrector holds the correction state between cycles.
type Corrector struct {
	Coefficients Coefficients

	adjustment float64
}

// Result of one correction.
type Result struct {
	KgM3       float64
	Adjustment float64
	Watercut   float64
	OK         bool
}

// Adjustment returns the last adjustment, in watercut percent.
func (c *Corrector) Adjustment() float64 {
	return c.adjustment
}

// Reset clears the held adjustment.
func (c *Corrector) Reset() {
	c.adjustment = 0
}

// Apply corrects watercut using density kgm3. lastRaw is the most recently
// published raw watercut; the adjustment is recomputed only while it does
// not exceed HoldAbove. Range or saturation errors leave the watercut
// untouched and report !OK.
func (c *Corrector) Apply(kgm3, watercut, lastRaw, ceiling float64, d *diag.Word) Result {
	var raised diag.Bits

	if kgm3 < MinKgM3 {
		raised |= diag.ErrDnsLo
	} else if kgm3 > MaxKgM3 {
		raised |= diag.ErrDnsHi
	}

	// The reference density is fixed at zero.
	const ref = 0.0
	if lastRaw <= HoldAbove {
		x := kgm3 - ref
		c.adjustment = c.Coefficients.D2*x*x + c.Coefficients.D1*x + c.Coefficients.D0
	}

	if c.adjustment > MaxAdjustment {
		c.adjustment = MaxAdjustment
		raised |= diag.ErrDnsHi
	} else if c.adjustment < -MaxAdjustment {
		c.adjustment = -MaxAdjustment
		raised |= diag.ErrDnsLo
	}

	if raised != 0 {
		d.Set(raised)
		return Result{KgM3: kgm3, Adjustment: c.adjustment, Watercut: watercut}
	}
	d.Clear(diag.ErrDnsLo | diag.ErrDnsHi)

	wc := watercut + c.adjustment
	if wc > ceiling {
		wc = ceiling
	}

	return Result{KgM3: kgm3, Adjustment: c.adjustment, Watercut: wc, OK: true}
}
