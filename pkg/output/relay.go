package output

import (
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/diag"
)

// RelayInput is what the relay logic looks at on each tick.
type RelayInput struct {
	Watercut    float64
	Oil         bool
	Diagnostics diag.Bits
}

// Relay decides the relay state. The relay energizes once its condition
// has held for more than Delay ticks, or at once when manual is set, and
// drops as soon as the condition clears.
type Relay struct {
	cfg       config.RelayConfig
	count     int
	energized bool
}

// NewRelay creates relay logic from configuration.
func NewRelay(cfg config.RelayConfig) *Relay {
	return &Relay{cfg: cfg}
}

// Configure replaces the relay settings.
func (r *Relay) Configure(cfg config.RelayConfig) {
	r.cfg = cfg
}

// Condition reports whether the configured mode wants the relay on.
func (r *Relay) Condition(in RelayInput) bool {
	switch r.cfg.Mode {
	case config.RelayWatercut:
		return in.Watercut > r.cfg.Setpoint
	case config.RelayPhase:
		if r.cfg.ActOnOil {
			return in.Oil
		}
		return !in.Oil
	case config.RelayError:
		return in.Diagnostics != 0
	case config.RelayManual:
		return r.cfg.Manual
	}
	return false
}

// Update advances the delay counter and returns the relay state.
func (r *Relay) Update(in RelayInput) bool {
	if !r.Condition(in) {
		r.energized = false
		r.count = 0
		return false
	}

	r.count++
	if r.count > r.cfg.Delay || r.cfg.Manual {
		r.energized = true
		r.count = 0
	}
	return r.energized
}

// Energized returns the last relay state.
func (r *Relay) Energized() bool {
	return r.energized
}
