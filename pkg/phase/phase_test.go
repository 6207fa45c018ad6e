package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testThresholds = Thresholds{
	FreqLow:  400,
	FreqHigh: 800,
	P0:       0.2,
	P1:       0,
	Hold:     5,
}

var (
	// oilLike commits Oil at the end of a quiet window.
	oilLike = Input{Frequency: 560, ReflectedPower: 0.5}
	// waterLike is classified differently from oilLike and commits Water.
	waterLike = Input{Frequency: 560, ReflectedPower: 0.1}
	// lowFreq commits Water through the frequency rule.
	lowFreq = Input{Frequency: 350, ReflectedPower: 0.5}
)

func TestThresholds_Threshold(t *testing.T) {
	th := Thresholds{P0: 1.5, P1: 0.01}
	assert.InDelta(t, 7.1, th.Threshold(560), 1e-12)
}

func TestThresholds_Classify(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Phase
	}{
		{"in band, below threshold", Input{Frequency: 560, ReflectedPower: 0.1}, Oil},
		{"in band, above threshold", Input{Frequency: 560, ReflectedPower: 0.5}, Water},
		{"below band", Input{Frequency: 350, ReflectedPower: 0.1}, Water},
		{"above band", Input{Frequency: 850, ReflectedPower: 0.1}, Water},
		{"band edge inclusive", Input{Frequency: 400, ReflectedPower: 0.2}, Oil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testThresholds.Classify(tt.in))
		})
	}
}

func TestThresholds_DecideInvertsClassify(t *testing.T) {
	assert.Equal(t, Water, testThresholds.Classify(oilLike))
	assert.Equal(t, Oil, testThresholds.decide(oilLike))

	assert.Equal(t, Oil, testThresholds.Classify(waterLike))
	assert.Equal(t, Water, testThresholds.decide(waterLike))
}

func TestStep_CommitsOnlyAtHold(t *testing.T) {
	var s State

	for cycle := 1; cycle < testThresholds.Hold; cycle++ {
		s = Step(s, oilLike, testThresholds)
		assert.Equal(t, Water, s.Reported, "cycle %d must not commit", cycle)
		assert.NotEqual(t, Committed, s.Stage)
	}

	s = Step(s, oilLike, testThresholds)
	assert.Equal(t, Oil, s.Reported)
	assert.Equal(t, Committed, s.Stage)
	assert.Equal(t, testThresholds.Hold, s.Cycle)
}

func TestStep_WindowResets(t *testing.T) {
	var s State
	for i := 0; i < testThresholds.Hold; i++ {
		s = Step(s, oilLike, testThresholds)
	}
	require.Equal(t, Oil, s.Reported)

	// Cycle past the hold resets the counters.
	s = Step(s, waterLike, testThresholds)
	assert.Equal(t, 0, s.Cycle)
	assert.Equal(t, 0, s.Rollovers)
	assert.Equal(t, Oil, s.Reported)

	// Next cycle seeds the new window.
	s = Step(s, waterLike, testThresholds)
	assert.Equal(t, Seed, s.Stage)
	assert.Equal(t, 1, s.Cycle)
	assert.Equal(t, Oil, s.Previous, "waterLike inputs classify as Oil")
}

func TestStep_FlappingNeverCommits(t *testing.T) {
	var s State
	s.Reported = Oil

	seq := []Input{oilLike, waterLike, oilLike, waterLike, oilLike}
	for _, in := range seq {
		s = Step(s, in, testThresholds)
	}

	assert.Equal(t, 2, s.Rollovers)
	assert.Equal(t, testThresholds.Hold, s.Cycle)
	assert.Equal(t, Oil, s.Reported, "two flips in the window keep the reported phase")
	assert.Equal(t, Accumulating, s.Stage)
}

func TestStep_SingleFlipCommitsLastInput(t *testing.T) {
	var s State
	s.Reported = Oil

	seq := []Input{oilLike, oilLike, oilLike, oilLike, waterLike}
	for _, in := range seq {
		s = Step(s, in, testThresholds)
	}

	assert.Equal(t, 1, s.Rollovers)
	assert.Equal(t, Water, s.Reported)
}

func TestStep_LowFrequencyCommitsWater(t *testing.T) {
	var s State
	s.Reported = Oil

	for i := 0; i < testThresholds.Hold; i++ {
		s = Step(s, lowFreq, testThresholds)
	}

	assert.Equal(t, Water, s.Reported)
}

func TestStep_IsPure(t *testing.T) {
	s := State{Cycle: 2, Rollovers: 1, Previous: Oil, Reported: Oil}
	before := s

	_ = Step(s, waterLike, testThresholds)
	assert.Equal(t, before, s)
}

func TestDetector(t *testing.T) {
	d := NewDetector(testThresholds)

	var got Phase
	for i := 0; i < testThresholds.Hold; i++ {
		got = d.Update(oilLike)
	}
	assert.Equal(t, Oil, got)
	assert.Equal(t, Committed, d.State().Stage)
	assert.InDelta(t, 0.2, d.Threshold(560), 1e-12)

	d.SetThresholds(Thresholds{FreqLow: 600, FreqHigh: 800, Hold: 5})
	assert.Equal(t, Oil, d.State().Reported, "changing thresholds keeps state")
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "oil", Oil.String())
	assert.Equal(t, "water", Water.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
