// Package curve maps oscillator frequency and temperature to watercut using
// a bank of per-temperature cubic calibration curves.
package curve

import (
	"errors"
	"fmt"
	"math"

	"github.com/embeddedlinuxer/razor/pkg/phase"
)

// MaxWaterPhase is the watercut reported while water continuous.
const MaxWaterPhase = 100.0

// secondaryOffset is the row distance between a primary curve and its
// high-watercut partner.
const secondaryOffset = 3

var (
	ErrBankTooSmall    = errors.New("curve bank needs at least 4 curves")
	ErrBankMismatch    = errors.New("curve bank temperature and coefficient counts differ")
	ErrDegenerate      = errors.New("bracketing curves share a temperature")
	ErrNonFiniteResult = errors.New("watercut is not finite")
)

// Coefficients are {c0, c1, c2, c3} of c3*f^3 + c2*f^2 + c1*f + c0.
type Coefficients [4]float64

// Eval evaluates the cubic at f.
func (c Coefficients) Eval(f float64) float64 {
	return c[3]*f*f*f + c[2]*f*f + c[1]*f + c[0]
}

// Bank is an ordered set of calibration curves, one per breakpoint
// temperature.
type Bank struct {
	Temperatures []float64
	Coefficients []Coefficients
	DualCutoff   float64
}

// Bracket names the two curves used for one interpolation.
type Bracket struct {
	Upper, Lower   int     // coefficient rows
	TUpper, TLower float64 // interpolation temperatures
}

// NewBank builds a bank and checks its shape.
func NewBank(temps []float64, coeffs [][4]float64, dualCutoff float64) (*Bank, error) {
	if len(temps) != len(coeffs) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrBankMismatch, len(temps), len(coeffs))
	}
	if len(temps) < 4 {
		return nil, ErrBankTooSmall
	}

	b := &Bank{
		Temperatures: append([]float64(nil), temps...),
		Coefficients: make([]Coefficients, len(coeffs)),
		DualCutoff:   dualCutoff,
	}
	for i, c := range coeffs {
		b.Coefficients[i] = c
	}
	return b, nil
}

// Len returns the number of curves.
func (b *Bank) Len() int {
	return len(b.Temperatures)
}

// Bracket returns the primary bracket for temperature t: the first row i
// in [1, N-3) whose temperature exceeds t, or N-3, paired with i-1.
func (b *Bank) Bracket(t float64) Bracket {
	n := b.Len()
	i := 1
	for ; i < n-3; i++ {
		if b.Temperatures[i] > t {
			break
		}
	}
	return Bracket{
		Upper:  i,
		Lower:  i - 1,
		TUpper: b.Temperatures[i],
		TLower: b.Temperatures[i-1],
	}
}

// ExtendedBracket returns the secondary bracket used above the dual-curve
// cutoff. The search runs on the temperatures three rows up and uses those
// rows' coefficients, but interpolates on the primary rows' temperatures.
// Banks shorter than 5 curves have no secondary rows and return ok=false.
func (b *Bank) ExtendedBracket(t float64) (Bracket, bool) {
	n := b.Len()
	if n < secondaryOffset+2 {
		return Bracket{}, false
	}

	i := 1
	for ; i < n-secondaryOffset-1; i++ {
		if b.Temperatures[i+secondaryOffset] > t {
			break
		}
	}
	return Bracket{
		Upper:  i + secondaryOffset,
		Lower:  i - 1 + secondaryOffset,
		TUpper: b.Temperatures[i],
		TLower: b.Temperatures[i-1],
	}, true
}

// Interpolate evaluates the bracket at frequency f and temperature t.
// The result equals the lower curve exactly at TLower and the upper curve
// exactly at TUpper.
func (b *Bank) Interpolate(br Bracket, f, t float64) (float64, error) {
	if br.TUpper == br.TLower {
		return math.NaN(), fmt.Errorf("%w: rows %d and %d at %g", ErrDegenerate, br.Upper, br.Lower, br.TUpper)
	}

	wu := b.Coefficients[br.Upper].Eval(f)
	wl := b.Coefficients[br.Lower].Eval(f)

	return wl - (br.TLower-t)*(wl-wu)/(br.TLower-br.TUpper), nil
}

// Result is the outcome of one curve evaluation.
type Result struct {
	Watercut    float64 // biased and capped
	RawWatercut float64 // before bias, used by calibration
	Dual        bool    // secondary curve was used
}

// Engine evaluates the bank with the current bias and ceiling.
type Engine struct {
	Bank       *Bank
	Bias       float64
	OilCalcMax float64
}

// Compute returns the watercut for the committed phase.
func (e *Engine) Compute(p phase.Phase, freq, temp float64) (Result, error) {
	if p == phase.Water {
		return Result{Watercut: MaxWaterPhase, RawWatercut: MaxWaterPhase}, nil
	}

	w, err := e.Bank.Interpolate(e.Bank.Bracket(temp), freq, temp)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	if e.Bank.DualCutoff > 0 && w > e.Bank.DualCutoff {
		if br, ok := e.Bank.ExtendedBracket(temp); ok {
			w, err = e.Bank.Interpolate(br, freq, temp)
			if err != nil {
				return Result{}, err
			}
			res.Dual = true
		}
	}

	if math.IsNaN(w) || math.IsInf(w, 0) {
		return Result{}, ErrNonFiniteResult
	}

	res.RawWatercut = w
	res.Watercut = math.Min(w+e.Bias, e.OilCalcMax)

	return res, nil
}
