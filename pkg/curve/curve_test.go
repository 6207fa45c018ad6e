package curve

import (
	"math"
	"testing"

	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatBank returns a bank whose rows are constants, so every row evaluates
// to its c0 at any frequency.
func flatBank(t *testing.T, temps []float64, values []float64, cutoff float64) *Bank {
	t.Helper()
	coeffs := make([][4]float64, len(values))
	for i, v := range values {
		coeffs[i] = [4]float64{v, 0, 0, 0}
	}
	b, err := NewBank(temps, coeffs, cutoff)
	require.NoError(t, err)
	return b
}

func TestCoefficients_Eval(t *testing.T) {
	c := Coefficients{1, 2, 3, 4}
	assert.Equal(t, float64(1+2*2+3*4+4*8), c.Eval(2))
}

func TestNewBank_Validation(t *testing.T) {
	_, err := NewBank([]float64{1, 2, 3}, make([][4]float64, 3), 0)
	assert.ErrorIs(t, err, ErrBankTooSmall)

	_, err = NewBank([]float64{1, 2, 3, 4}, make([][4]float64, 5), 0)
	assert.ErrorIs(t, err, ErrBankMismatch)
}

func TestBank_Bracket(t *testing.T) {
	b := flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{0, 0, 0, 0, 0, 0}, 0)

	tests := []struct {
		name         string
		temp         float64
		upper, lower int
	}{
		{"below first breakpoint", 5, 1, 0},
		{"inside first interval", 15, 1, 0},
		{"on breakpoint moves up", 20, 2, 1},
		{"inside second interval", 25, 2, 1},
		{"search stops before last three rows", 35, 3, 2},
		{"far above", 100, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := b.Bracket(tt.temp)
			assert.Equal(t, tt.upper, br.Upper)
			assert.Equal(t, tt.lower, br.Lower)
			assert.Equal(t, b.Temperatures[tt.upper], br.TUpper)
			assert.Equal(t, b.Temperatures[tt.lower], br.TLower)
		})
	}
}

func TestBank_ExtendedBracket(t *testing.T) {
	b := flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{0, 0, 0, 0, 0, 0}, 1)

	br, ok := b.ExtendedBracket(15)
	require.True(t, ok)
	assert.Equal(t, 4, br.Upper)
	assert.Equal(t, 3, br.Lower)
	assert.Equal(t, float64(20), br.TUpper, "interpolates on primary temperatures")
	assert.Equal(t, float64(10), br.TLower)

	br, ok = b.ExtendedBracket(55)
	require.True(t, ok)
	assert.Equal(t, 5, br.Upper, "never indexes past the bank")
	assert.Equal(t, 4, br.Lower)

	small := flatBank(t, []float64{10, 20, 30, 40}, []float64{0, 0, 0, 0}, 1)
	_, ok = small.ExtendedBracket(15)
	assert.False(t, ok)
}

func TestBank_InterpolateMidpoint(t *testing.T) {
	b := flatBank(t, []float64{10, 20, 30, 40, 50}, []float64{5, 7, 9, 11, 13}, 0)

	w, err := b.Interpolate(b.Bracket(15), 600, 15)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, w, 1e-12)
}

func TestBank_InterpolateExactAtBreakpoints(t *testing.T) {
	b := flatBank(t, []float64{10, 20, 30, 40, 50}, []float64{5, 7, 9, 11, 13}, 0)
	br := Bracket{Upper: 1, Lower: 0, TUpper: 20, TLower: 10}

	w, err := b.Interpolate(br, 600, 10)
	require.NoError(t, err)
	assert.Equal(t, 5.0, w)

	w, err = b.Interpolate(br, 600, 20)
	require.NoError(t, err)
	assert.Equal(t, 7.0, w)
}

func TestBank_InterpolateDegenerate(t *testing.T) {
	b := flatBank(t, []float64{10, 10, 30, 40, 50}, []float64{5, 7, 9, 11, 13}, 0)

	_, err := b.Interpolate(b.Bracket(5), 600, 5)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestEngine_WaterPhaseSaturates(t *testing.T) {
	e := &Engine{
		Bank:       flatBank(t, []float64{10, 20, 30, 40}, []float64{5, 7, 9, 11}, 0),
		Bias:       -3,
		OilCalcMax: 85,
	}

	res, err := e.Compute(phase.Water, 560, 15)
	require.NoError(t, err)
	assert.Equal(t, MaxWaterPhase, res.Watercut)
	assert.Equal(t, MaxWaterPhase, res.RawWatercut)
}

func TestEngine_OilPrimary(t *testing.T) {
	e := &Engine{
		Bank:       flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{5, 7, 9, 11, 40, 60}, 0),
		Bias:       1.5,
		OilCalcMax: 85,
	}

	res, err := e.Compute(phase.Oil, 560, 15)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, res.RawWatercut, 1e-12)
	assert.InDelta(t, 7.5, res.Watercut, 1e-12)
	assert.False(t, res.Dual)
}

func TestEngine_OilDualCurve(t *testing.T) {
	e := &Engine{
		Bank:       flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{5, 7, 9, 11, 40, 60}, 5.5),
		Bias:       2,
		OilCalcMax: 85,
	}

	res, err := e.Compute(phase.Oil, 560, 15)
	require.NoError(t, err)
	assert.True(t, res.Dual)
	assert.InDelta(t, 25.5, res.RawWatercut, 1e-12)
	assert.InDelta(t, 27.5, res.Watercut, 1e-12)
}

func TestEngine_DualCurveNeedsPositiveCutoff(t *testing.T) {
	e := &Engine{
		Bank:       flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{5, 7, 9, 11, 40, 60}, 0),
		OilCalcMax: 85,
	}

	res, err := e.Compute(phase.Oil, 560, 15)
	require.NoError(t, err)
	assert.False(t, res.Dual)
}

func TestEngine_CeilingAlwaysApplied(t *testing.T) {
	for _, cutoff := range []float64{0, 5.5} {
		e := &Engine{
			Bank:       flatBank(t, []float64{10, 20, 30, 40, 50, 60}, []float64{5, 7, 9, 11, 40, 60}, cutoff),
			Bias:       100,
			OilCalcMax: 85,
		}

		res, err := e.Compute(phase.Oil, 560, 15)
		require.NoError(t, err)
		assert.Equal(t, 85.0, res.Watercut, "cutoff %v", cutoff)
		assert.Less(t, res.RawWatercut, 85.0)
	}
}

func TestEngine_NonFinite(t *testing.T) {
	e := &Engine{
		Bank:       flatBank(t, []float64{10, 20, 30, 40}, []float64{5, math.Inf(1), 9, 11}, 0),
		OilCalcMax: 85,
	}

	_, err := e.Compute(phase.Oil, 560, 15)
	assert.ErrorIs(t, err, ErrNonFiniteResult)
}

func TestEngine_CubicCurve(t *testing.T) {
	// w = 0.001 f^2 - 1.0 f + 300 at both breakpoints
	row := [4]float64{300, -1.0, 0.001, 0}
	b, err := NewBank([]float64{0, 100, 200, 300}, [][4]float64{row, row, row, row}, 0)
	require.NoError(t, err)

	e := &Engine{Bank: b, OilCalcMax: 85}
	res, err := e.Compute(phase.Oil, 500, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.001*500*500-500+300, res.RawWatercut, 1e-9)
}
