package density

import (
	"math"
	"testing"

	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversions_RoundTrip(t *testing.T) {
	for _, unit := range []string{config.UnitKgM3, config.UnitSG, config.UnitAPI} {
		t.Run(unit, func(t *testing.T) {
			kg, err := ToKgM3(unit, 0.87)
			require.NoError(t, err)
			back, err := FromKgM3(unit, kg)
			require.NoError(t, err)
			assert.InDelta(t, 0.87, back, 1e-9)
		})
	}

	_, err := ToKgM3("slugs", 1)
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = FromKgM3("slugs", 1)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestToKgM3_API(t *testing.T) {
	// 10 API is the density of water.
	kg, err := ToKgM3(config.UnitAPI, 10)
	require.NoError(t, err)
	assert.InDelta(t, WaterKgM3, kg, 1e-9)
}

func TestDefaultsForUnit(t *testing.T) {
	c, err := DefaultsForUnit(config.UnitKgM3)
	require.NoError(t, err)
	assert.Equal(t, Coefficients{D0: 24.6, D1: -0.0286}, c)

	c, err = DefaultsForUnit(config.UnitAPI)
	require.NoError(t, err)
	assert.Equal(t, Coefficients{D1: 0.16}, c)

	_, err = DefaultsForUnit(config.UnitSG)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestApply_ComputesAndAdds(t *testing.T) {
	var d diag.Word
	c := &Corrector{Coefficients: Coefficients{D0: 2, D1: 0.001, D2: 0.000001}}

	res := c.Apply(800, 10, 3, 85, &d)
	require.True(t, res.OK)

	want := 0.000001*800*800 + 0.001*800 + 2
	assert.InDelta(t, want, res.Adjustment, 1e-12)
	assert.InDelta(t, 10+want, res.Watercut, 1e-12)
	assert.Equal(t, diag.Bits(0), d.Load())
}

func TestApply_HoldsAboveFivePercent(t *testing.T) {
	var d diag.Word
	c := &Corrector{Coefficients: Coefficients{D0: 1}}

	res := c.Apply(850, 4, 5, 85, &d)
	require.True(t, res.OK)
	assert.Equal(t, 1.0, res.Adjustment, "5% still recomputes")

	c.Coefficients.D0 = 3
	res = c.Apply(850, 20, 5.01, 85, &d)
	require.True(t, res.OK)
	assert.Equal(t, 1.0, res.Adjustment, "held above 5%")
	assert.Equal(t, 21.0, res.Watercut)

	res = c.Apply(850, 20, math.NaN(), 85, &d)
	assert.Equal(t, 1.0, res.Adjustment, "NaN raw holds")
}

func TestApply_Saturation(t *testing.T) {
	tests := []struct {
		name string
		d0   float64
		want float64
		bit  diag.Bits
	}{
		{"high", 25, MaxAdjustment, diag.ErrDnsHi},
		{"low", -25, -MaxAdjustment, diag.ErrDnsLo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d diag.Word
			c := &Corrector{Coefficients: Coefficients{D0: tt.d0}}

			res := c.Apply(850, 10, 0, 85, &d)
			assert.False(t, res.OK)
			assert.Equal(t, tt.want, res.Adjustment)
			assert.Equal(t, 10.0, res.Watercut, "watercut untouched on failure")
			assert.Equal(t, tt.bit, d.Load())
		})
	}
}

func TestApply_RangeErrors(t *testing.T) {
	tests := []struct {
		name string
		kgm3 float64
		bit  diag.Bits
	}{
		{"too light", 700, diag.ErrDnsLo},
		{"too heavy", 1010, diag.ErrDnsHi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d diag.Word
			c := &Corrector{}

			res := c.Apply(tt.kgm3, 10, 0, 85, &d)
			assert.False(t, res.OK)
			assert.Equal(t, tt.bit, d.Load(), "in-range adjustment must not clear the range bit")
		})
	}
}

func TestApply_ClearsAfterRecovery(t *testing.T) {
	var d diag.Word
	d.Set(diag.ErrDnsLo | diag.ErrFrqHi)
	c := &Corrector{}

	res := c.Apply(850, 10, 0, 85, &d)
	assert.True(t, res.OK)
	assert.Equal(t, diag.ErrFrqHi, d.Load())
}

func TestApply_Ceiling(t *testing.T) {
	var d diag.Word
	c := &Corrector{Coefficients: Coefficients{D0: 5}}

	res := c.Apply(850, 84, 0, 85, &d)
	require.True(t, res.OK)
	assert.Equal(t, 85.0, res.Watercut)
}

func TestCorrector_Reset(t *testing.T) {
	var d diag.Word
	c := &Corrector{Coefficients: Coefficients{D0: 5}}
	c.Apply(850, 0, 0, 85, &d)
	require.Equal(t, 5.0, c.Adjustment())

	c.Reset()
	assert.Equal(t, 0.0, c.Adjustment())
}
