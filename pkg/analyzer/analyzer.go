// Package analyzer wires the counter, measurement cycle, aggregation,
// calibration and outputs into one running instrument.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embeddedlinuxer/razor/pkg/calibrate"
	"github.com/embeddedlinuxer/razor/pkg/command"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/density"
	"github.com/embeddedlinuxer/razor/pkg/diag"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/output"
	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

var ErrCurveIndex = errors.New("curve index out of range")

// Reply is the outcome of an operator command.
type Reply struct {
	ID          string            `json:"id"`
	Kind        command.Kind      `json:"kind"`
	OK          bool              `json:"ok"`
	Error       string            `json:"error,omitempty"`
	Calibration *calibrate.Result `json:"calibration,omitempty"`
}

// Analyzer is the composition root. Measurement cycles, aggregation ticks,
// calibration and commands are serialized by mu.
type Analyzer struct {
	id     string
	store  *config.Store
	device counter.Device

	sampler  *counter.Sampler
	meter    *meter.Meter
	agg      *sample.Aggregator
	adjuster *calibrate.Adjuster
	relay    *output.Relay
	diag     diag.Word

	period  time.Duration
	relayOn bool
	now     func() time.Time

	mu sync.Mutex

	avgCallbacks []func(sample.Averages)
	cbMu         sync.RWMutex
}

// New creates an analyzer around store and device. A missing instance id
// is generated and persisted.
func New(store *config.Store, device counter.Device) (*Analyzer, error) {
	if err := store.Update(func(cfg *config.Config) error {
		if cfg.InstanceID == "" {
			cfg.InstanceID = uuid.NewString()
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to assign instance id: %w", err)
	}
	cfg := store.Config()

	a := &Analyzer{
		id:       cfg.InstanceID,
		store:    store,
		device:   device,
		sampler:  counter.NewSampler(device, cfg.Counter.SamplePeriod),
		adjuster: calibrate.New(store),
		relay:    output.NewRelay(cfg.Relay),
		period:   cfg.Averaging.Period,
		now:      time.Now,
	}
	if a.period <= 0 {
		a.period = time.Second
	}

	m, err := meter.New(cfg, &a.diag)
	if err != nil {
		return nil, fmt.Errorf("failed to create meter: %w", err)
	}
	a.meter = m
	a.agg = sample.NewAggregator(cfg.Averaging, cfg.Calibration.Stream, a.recordStream)

	return a, nil
}

// ID returns the instance id.
func (a *Analyzer) ID() string {
	return a.id
}

// Meter returns the measurement cycle, for registering OnUpdate callbacks.
func (a *Analyzer) Meter() *meter.Meter {
	return a.meter
}

// Store returns the configuration store.
func (a *Analyzer) Store() *config.Store {
	return a.store
}

// Averages returns the most recent aggregated averages.
func (a *Analyzer) Averages() sample.Averages {
	return a.agg.Averages()
}

// OnAverages registers a callback invoked after every aggregation tick.
func (a *Analyzer) OnAverages(callback func(sample.Averages)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.avgCallbacks = append(a.avgCallbacks, callback)
}

// Run connects the device and drives the capture, measurement and
// aggregation clocks until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) error {
	if !a.device.IsConnected() {
		if err := a.device.Connect(); err != nil {
			return fmt.Errorf("failed to connect counter: %w", err)
		}
	}
	defer func() {
		if err := a.device.Close(); err != nil {
			log.Printf("Failed to close counter: %v", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sampler.Run(ctx)
	}()
	defer wg.Wait()

	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.sampler.Ready():
			a.Cycle()
		case <-ticker.C:
			a.Tick()
			a.UpdateRelay()
		}
	}
}

// Cycle consumes the latest capture, if any, and runs a measurement cycle.
func (a *Analyzer) Cycle() (meter.Measurement, bool) {
	raw, ok := a.sampler.Take()
	if !ok {
		return meter.Measurement{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	meas := a.meter.Cycle(meter.Capture{
		Timestamp: a.now(),
		Raw:       raw,
		Inputs:    a.device.Inputs(),
	})
	return meas, true
}

// Capture triggers a counter capture outside the sampling clock.
func (a *Analyzer) Capture() {
	a.sampler.Capture()
}

// Tick pushes the latest published measurement into the aggregator.
func (a *Analyzer) Tick() sample.Averages {
	a.mu.Lock()
	meas := a.meter.Latest()
	avg := a.agg.Tick(sample.Snapshot{
		RawWatercut:    meas.RawWatercut,
		Temperature:    meas.Temperature,
		Frequency:      meas.Frequency,
		ReflectedPower: meas.ReflectedPower,
	}, a.now())
	a.mu.Unlock()

	a.cbMu.RLock()
	callbacks := make([]func(sample.Averages), len(a.avgCallbacks))
	copy(callbacks, a.avgCallbacks)
	a.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(avg)
		}
	}
	return avg
}

// UpdateRelay evaluates the relay against the latest measurement and
// drives the device when the state changes.
func (a *Analyzer) UpdateRelay() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	meas := a.meter.Latest()
	on := a.relay.Update(output.RelayInput{
		Watercut:    meas.Watercut,
		Oil:         meas.Phase == phase.Oil,
		Diagnostics: a.diag.Load(),
	})
	if on != a.relayOn {
		if err := a.device.SetRelay(on); err != nil {
			log.Printf("Failed to set relay: %v", err)
			return a.relayOn
		}
		a.relayOn = on
	}
	return on
}

// recordStream stores a stream capture, keeping the stream's bias.
func (a *Analyzer) recordStream(stream int, rec config.StreamRecord) {
	err := a.store.Update(func(cfg *config.Config) error {
		rec.Bias = cfg.Calibration.Streams[stream-1].Bias
		cfg.Calibration.Streams[stream-1] = rec
		return nil
	})
	if err != nil {
		log.Printf("Failed to record stream %d: %v", stream, err)
		return
	}
	a.store.Persist()
}

// Execute validates and runs an operator command.
func (a *Analyzer) Execute(cmd command.Command) Reply {
	reply := Reply{ID: a.id, Kind: cmd.Kind}

	if err := cmd.Validate(); err != nil {
		reply.Error = err.Error()
		return reply
	}

	a.mu.Lock()
	res, err := a.execute(cmd)
	a.mu.Unlock()

	if err != nil {
		log.Printf("Command %s failed: %v", cmd.Kind, err)
		reply.Error = err.Error()
		return reply
	}
	reply.OK = true
	reply.Calibration = res
	return reply
}

func (a *Analyzer) execute(cmd command.Command) (*calibrate.Result, error) {
	switch cmd.Kind {
	case command.BeginCapture:
		a.agg.BeginCapture()
		return nil, nil

	case command.EndCapture:
		a.agg.EndCapture()
		res, err := a.adjuster.Calibrate(calibrate.Request{Lab: cmd.Lab, Stream: cmd.Stream}, a.live())
		if err != nil {
			return nil, err
		}
		return &res, a.reconfigure()

	case command.ResetTemperatureAverage:
		a.agg.ResetTemperature()
		return nil, nil

	case command.SetCommsDensity:
		a.meter.SetCommsDensity(cmd.Value)
		return nil, nil

	case command.SetAveragingWindow:
		return nil, a.update(func(cfg *config.Config) error {
			cfg.Averaging.Window = cmd.Window
			return nil
		})

	case command.SetCurveCoefficients:
		return nil, a.update(func(cfg *config.Config) error {
			if cmd.Index >= len(cfg.Curves.Coefficients) {
				return fmt.Errorf("%w: %d of %d", ErrCurveIndex, cmd.Index, len(cfg.Curves.Coefficients))
			}
			cfg.Curves.Coefficients[cmd.Index] = cmd.Coefficients
			return nil
		})

	case command.SetDensityMode:
		return nil, a.update(DensityMode(cmd.Mode, cmd.Unit))
	}

	return nil, fmt.Errorf("%w: %q", command.ErrUnknownKind, cmd.Kind)
}

// Apply changes settings that have no command, such as output and relay
// options, then persists and applies them.
func (a *Analyzer) Apply(fn func(*config.Config) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.update(fn)
}

// DensityMode returns a configuration change selecting the density source.
// A new unit loads that unit's default coefficients; an empty or unchanged
// unit keeps the current ones.
func DensityMode(mode, unit string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		cfg.Density.Mode = mode
		if unit == "" || unit == cfg.Density.Unit {
			return nil
		}
		coeffs, err := density.DefaultsForUnit(unit)
		if err != nil {
			return err
		}
		cfg.Density.Unit = unit
		cfg.Density.D0 = coeffs.D0
		cfg.Density.D1 = coeffs.D1
		cfg.Density.D2 = coeffs.D2
		cfg.Density.D3 = coeffs.D3
		return nil
	}
}

// live gathers the calibration inputs from the last published cycle and
// aggregation tick.
func (a *Analyzer) live() calibrate.Live {
	meas := a.meter.Latest()
	avg := a.agg.Averages()
	return calibrate.Live{
		RawWatercut:       meas.RawWatercut,
		DensityAdjustment: meas.DensityAdjustment,
		Density:           meas.Density,
		Phase:             meas.Phase,
		Rollovers:         meas.PhaseState.Rollovers,
		Alarm:             meas.Alarm,
		Average:           avg.Watercut,
		Buffered:          avg.Buffered,
	}
}

// update changes and persists the configuration, then applies it.
func (a *Analyzer) update(fn func(*config.Config) error) error {
	if err := a.store.Update(fn); err != nil {
		return err
	}
	a.store.Persist()
	return a.reconfigure()
}

func (a *Analyzer) reconfigure() error {
	cfg := a.store.Config()
	if err := a.meter.Configure(cfg); err != nil {
		return err
	}
	a.agg.Configure(cfg.Averaging, cfg.Calibration.Stream)
	a.relay.Configure(cfg.Relay)
	return nil
}
