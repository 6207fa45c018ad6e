// Package output drives the analyzer's 4-20 mA loop and alarm relay.
package output

import (
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/diag"
)

// Loop current limits in mA.
const (
	SpanLow   = 4.0
	SpanHigh  = 20.0
	AlarmHigh = 20.5
	AlarmLow  = 3.6
)

// Loop is the result of one analog output update.
type Loop struct {
	Output float64 // current from the watercut, held across failures
	Drive  float64 // current actually driven
	Alarm  bool
}

// Analog computes the loop current from the published watercut.
type Analog struct {
	AlarmMode   string
	Manual      bool
	ManualValue float64

	output float64
	alarm  bool
}

// NewAnalog creates an analog output from configuration.
func NewAnalog(cfg config.OutputConfig) *Analog {
	a := &Analog{output: SpanLow}
	a.Configure(cfg)
	return a
}

// Configure applies output settings without losing the held output.
func (a *Analog) Configure(cfg config.OutputConfig) {
	a.AlarmMode = cfg.AlarmMode
	a.Manual = cfg.Manual
	a.ManualValue = cfg.ManualValue
}

// Scale maps watercut percent onto the 4-20 mA span.
func Scale(watercut float64) float64 {
	return 16*(watercut/100) + 4
}

// Update records a cycle outcome. On success the output follows watercut;
// on failure it holds and the alarm mode decides the driven current.
func (a *Analog) Update(ok bool, watercut float64, d *diag.Word) Loop {
	if ok {
		a.alarm = false
		out := Scale(watercut)
		switch {
		case out > SpanHigh:
			out = SpanHigh
			d.Set(diag.ErrAoSat)
		case out < SpanLow:
			out = SpanLow
			d.Set(diag.ErrAoSat)
		default:
			d.Clear(diag.ErrAoSat)
		}
		a.output = out
	} else {
		a.alarm = true
	}

	return Loop{Output: a.output, Drive: a.drive(), Alarm: a.alarm}
}

func (a *Analog) drive() float64 {
	if a.Manual {
		return a.ManualValue
	}
	if a.alarm {
		switch a.AlarmMode {
		case config.AlarmHigh:
			return AlarmHigh
		case config.AlarmLow:
			return AlarmLow
		}
	}
	return a.output
}
