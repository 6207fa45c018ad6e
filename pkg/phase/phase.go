// Package phase classifies the flow regime as oil or water continuous with
// a hold window that suppresses flapping.
package phase

import "fmt"

// Phase is the flow regime.
type Phase int

const (
	Water Phase = iota
	Oil
)

func (p Phase) String() string {
	if p == Oil {
		return "oil"
	}
	return "water"
}

// Stage describes where the detector is within its hold window.
type Stage int

const (
	// Seed is the first cycle of a window, where the reference class is taken.
	Seed Stage = iota
	// Accumulating cycles count flips against the reference.
	Accumulating
	// Committed is the cycle at which the window decided the reported phase.
	Committed
)

func (s Stage) String() string {
	switch s {
	case Seed:
		return "seed"
	case Accumulating:
		return "accumulating"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Thresholds configure the detector.
type Thresholds struct {
	FreqLow  float64
	FreqHigh float64
	P0       float64
	P1       float64
	Hold     int
}

// Input is one cycle's observation.
type Input struct {
	Frequency      float64
	ReflectedPower float64
}

// State is the detector state between cycles.
type State struct {
	Stage     Stage
	Cycle     int
	Rollovers int
	Current   Phase // this cycle's classification
	Previous  Phase // classification seeded at the start of the window
	Reported  Phase
}

// Threshold returns the reflected power threshold PT for a frequency.
func (th Thresholds) Threshold(freq float64) float64 {
	return th.P1*freq + th.P0
}

// Classify returns the per-cycle class used for flip counting.
func (th Thresholds) Classify(in Input) Phase {
	if in.Frequency < th.FreqLow || in.Frequency > th.FreqHigh || in.ReflectedPower > th.Threshold(in.Frequency) {
		return Water
	}
	return Oil
}

// decide returns the phase committed at the end of a quiet window.
// Its reflected power polarity is the inverse of Classify: RP above PT
// commits Oil here while Classify counts it as Water. The two rules are
// intentionally different and must not be unified.
func (th Thresholds) decide(in Input) Phase {
	if in.Frequency < th.FreqLow {
		return Water
	}
	if in.ReflectedPower > th.Threshold(in.Frequency) {
		return Oil
	}
	return Water
}

// Step advances the state by one cycle.
func Step(s State, in Input, th Thresholds) State {
	s.Cycle++
	s.Current = th.Classify(in)
	s.Stage = Accumulating

	if s.Cycle == 1 {
		s.Previous = s.Current
		s.Stage = Seed
	}

	if s.Current != s.Previous {
		s.Rollovers++
	}

	if s.Cycle > th.Hold {
		s.Cycle = 0
		s.Rollovers = 0
	}

	if s.Rollovers < 2 && s.Cycle == th.Hold {
		s.Reported = th.decide(in)
		s.Stage = Committed
	}

	return s
}

// Detector wraps Step with its state. It is not safe for concurrent use.
type Detector struct {
	th    Thresholds
	state State
}

// NewDetector creates a detector reporting Water until the first commit.
func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th}
}

// SetThresholds replaces the thresholds without resetting the window.
func (d *Detector) SetThresholds(th Thresholds) {
	d.th = th
}

// Update processes one cycle and returns the reported phase.
func (d *Detector) Update(in Input) Phase {
	d.state = Step(d.state, in, d.th)
	return d.state.Reported
}

// State returns the current state.
func (d *Detector) State() State {
	return d.state
}

// Threshold returns PT for freq under the current thresholds.
func (d *Detector) Threshold(freq float64) float64 {
	return d.th.Threshold(freq)
}
