// Package command defines the operator commands accepted by the analyzer.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/embeddedlinuxer/razor/pkg/config"
)

// Kind names an operator command.
type Kind string

const (
	BeginCapture            Kind = "begin_capture"
	EndCapture              Kind = "end_capture"
	ResetTemperatureAverage Kind = "reset_temperature_average"
	SetAveragingWindow      Kind = "set_averaging_window"
	SetCurveCoefficients    Kind = "set_curve_coefficients"
	SetDensityMode          Kind = "set_density_mode"
	SetCommsDensity         Kind = "set_comms_density"
)

var (
	ErrUnknownKind = errors.New("unknown command")
	ErrInvalid     = errors.New("invalid command")
)

// Command is one operator request. Only the fields of its Kind are used.
type Command struct {
	Kind Kind `json:"kind"`

	// end_capture: calibrate Stream against the Lab watercut.
	Lab    float64 `json:"lab,omitempty"`
	Stream int     `json:"stream,omitempty"`

	// set_averaging_window
	Window int `json:"window,omitempty"`

	// set_curve_coefficients: 0-based curve row, {c0, c1, c2, c3}
	Index        int        `json:"index,omitempty"`
	Coefficients [4]float64 `json:"coefficients"`

	// set_density_mode
	Mode string `json:"mode,omitempty"`
	Unit string `json:"unit,omitempty"`

	// set_comms_density: density in the configured unit
	Value float64 `json:"value,omitempty"`
}

// Decode parses and validates a JSON command.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("failed to parse command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Encode returns the JSON form of c.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Validate checks the fields that can be checked without the current
// configuration.
func (c Command) Validate() error {
	switch c.Kind {
	case BeginCapture, ResetTemperatureAverage:
		return nil

	case EndCapture:
		if math.IsNaN(c.Lab) || c.Lab < 0 || c.Lab > 100 {
			return fmt.Errorf("%w: lab watercut %g outside 0..100", ErrInvalid, c.Lab)
		}
		if c.Stream < 1 || c.Stream > config.StreamCount {
			return fmt.Errorf("%w: stream %d outside 1..%d", ErrInvalid, c.Stream, config.StreamCount)
		}

	case SetAveragingWindow:
		if c.Window < 1 || c.Window > config.StreamCount {
			return fmt.Errorf("%w: window %d outside 1..%d", ErrInvalid, c.Window, config.StreamCount)
		}

	case SetCurveCoefficients:
		if c.Index < 0 {
			return fmt.Errorf("%w: negative curve index", ErrInvalid)
		}
		for _, v := range c.Coefficients {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite coefficient", ErrInvalid)
			}
		}

	case SetDensityMode:
		switch c.Mode {
		case config.DensityOff, config.DensityAnalog, config.DensityComms, config.DensityManual:
		default:
			return fmt.Errorf("%w: density mode %q", ErrInvalid, c.Mode)
		}
		switch c.Unit {
		case "", config.UnitKgM3, config.UnitAPI, config.UnitSG:
		default:
			return fmt.Errorf("%w: density unit %q", ErrInvalid, c.Unit)
		}

	case SetCommsDensity:
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) || c.Value <= 0 {
			return fmt.Errorf("%w: density %g", ErrInvalid, c.Value)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}

	return nil
}
