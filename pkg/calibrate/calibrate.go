// Package calibrate recomputes the calibration bias from a lab reference
// sample.
package calibrate

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/density"
	"github.com/embeddedlinuxer/razor/pkg/phase"
)

var (
	ErrInvalidLab        = errors.New("lab watercut must be within 0..100")
	ErrInvalidStream     = errors.New("stream must be within 1..60")
	ErrNotSettled        = errors.New("measurement not settled on oil")
	ErrStreamNotCaptured = errors.New("stream has no captured data")
)

// Request is an operator calibration request.
type Request struct {
	Lab    float64 `json:"lab"`    // lab watercut, %
	Stream int     `json:"stream"` // 1-based stream slot
}

// Live is the measurement state a calibration reads. It must be taken from
// a single published cycle.
type Live struct {
	RawWatercut       float64
	DensityAdjustment float64
	Density           float64 // kg/m3, NaN when correction is off
	Phase             phase.Phase
	Rollovers         int
	Alarm             bool

	Average  float64 // windowed mean of raw watercut
	Buffered int     // raw watercut samples held by the aggregator
}

// Result reports the bias written by a calibration.
type Result struct {
	Stream   int     `json:"stream"`
	Bias     float64 `json:"bias"`
	Averaged bool    `json:"averaged"` // bias came from the windowed average
	SG       float64 `json:"sg"`
}

// Adjuster writes calibration biases back to the configuration store.
type Adjuster struct {
	store *config.Store
}

// New creates an adjuster on store.
func New(store *config.Store) *Adjuster {
	return &Adjuster{store: store}
}

// Calibrate computes the bias for req and persists it. Calibrating the
// current stream replaces the live bias; calibrating another stream only
// updates that stream's slot.
func (a *Adjuster) Calibrate(req Request, live Live) (Result, error) {
	if math.IsNaN(req.Lab) || req.Lab < 0 || req.Lab > 100 {
		return Result{}, ErrInvalidLab
	}
	if req.Stream < 1 || req.Stream > config.StreamCount {
		return Result{}, ErrInvalidStream
	}

	var res Result
	err := a.store.Update(func(cfg *config.Config) error {
		sg := specificGravity(cfg, live.Density)
		window := cfg.Averaging.Window

		average, samples := live.Average, live.Buffered
		current := req.Stream == cfg.Calibration.Stream
		if !current {
			rec := cfg.Calibration.Streams[req.Stream-1]
			if rec.Timestamp == "" {
				return fmt.Errorf("%w: stream %d", ErrStreamNotCaptured, req.Stream)
			}
			average, samples = rec.Average, rec.Samples
		}

		var bias float64
		if samples < window {
			if live.Phase != phase.Oil || live.Rollovers != 0 || live.Alarm {
				return ErrNotSettled
			}
			bias = req.Lab*sg - (live.RawWatercut + live.DensityAdjustment)
		} else {
			bias = req.Lab - (average + live.DensityAdjustment)
			res.Averaged = true
		}
		if math.IsNaN(bias) || math.IsInf(bias, 0) {
			return ErrNotSettled
		}

		if current {
			cfg.Calibration.Bias = bias
		} else {
			cfg.Calibration.Streams[req.Stream-1].Bias = bias
		}
		res.Stream = req.Stream
		res.Bias = bias
		res.SG = sg
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	a.store.Persist()
	log.Printf("calibrated stream %d: bias %.4f (lab %.2f)", res.Stream, res.Bias, req.Lab)

	return res, nil
}

// specificGravity returns the density as SG for low and mid range
// analyzers with density correction enabled, otherwise 1.
func specificGravity(cfg *config.Config, kgm3 float64) float64 {
	if cfg.Density.Mode == config.DensityOff {
		return 1
	}
	if cfg.Analyzer.Model != config.ModelLow && cfg.Analyzer.Model != config.ModelMid {
		return 1
	}

	sg, err := density.FromKgM3(config.UnitSG, kgm3)
	if err != nil || math.IsNaN(sg) || sg <= 0 {
		return 1
	}
	return sg
}
