package meter

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/curve"
	"github.com/embeddedlinuxer/razor/pkg/density"
	"github.com/embeddedlinuxer/razor/pkg/diag"
	"github.com/embeddedlinuxer/razor/pkg/frequency"
	"github.com/embeddedlinuxer/razor/pkg/output"
	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

var _ WatercutMeter = (*Meter)(nil)

// User temperature range (C). Readings outside raise a diagnostic but
// do not fail the cycle.
const (
	MinTemperature = -20.0
	MaxTemperature = 120.0
)

// Capture is one counter capture together with the analog inputs read at
// the same time.
type Capture struct {
	Timestamp time.Time
	Raw       counter.RawSample
	Inputs    counter.Inputs
}

// Measurement is the published result of one measurement cycle.
type Measurement struct {
	Timestamp      time.Time
	Frequency      float64 // MHz, kept even when out of range; held when the capture is unusable
	FrequencyOK    bool
	Temperature    float64 // user temperature, C
	ReflectedPower float64
	Threshold      float64 // reflected power threshold at Frequency
	Phase          phase.Phase
	PhaseState     phase.State

	Watercut    float64 // running average, NaN after a failed cycle
	RawWatercut float64 // before bias and density, NaN after a failed cycle
	Dual        bool

	Density           float64 // kg/m3, NaN when correction is off
	DensityAdjustment float64

	AnalogOutput float64 // mA from watercut, held across failures
	AnalogDrive  float64 // mA actually driven
	Alarm        bool

	Diagnostics diag.Bits
	OK          bool
}

// WatercutMeter runs measurement cycles and publishes their results.
type WatercutMeter interface {
	ProcessSamples(input <-chan Capture)
	Cycle(c Capture) Measurement
	Latest() Measurement
	OnUpdate(func(Measurement))
}

// Meter implements WatercutMeter. One Cycle runs frequency estimation,
// phase detection, curve evaluation, density correction and output
// scaling in that order.
type Meter struct {
	diag *diag.Word

	estimator *frequency.Estimator
	detector  *phase.Detector
	engine    *curve.Engine
	corrector *density.Corrector
	analog    *output.Analog
	average   sample.RunningAverage

	temperature config.TemperatureConfig
	dens        config.DensityConfig
	window      int

	commsDensity float64
	lastRaw      float64 // last published raw watercut, gates the density adjustment
	latest       Measurement

	mu sync.RWMutex

	callbacks []func(Measurement)
	cbMu      sync.RWMutex

	shutdown bool
}

// New creates a meter from configuration. d receives the diagnostic bits;
// a nil d gives the meter its own word.
func New(cfg *config.Config, d *diag.Word) (*Meter, error) {
	if d == nil {
		d = &diag.Word{}
	}

	m := &Meter{
		diag:      d,
		detector:  phase.NewDetector(phase.Thresholds{}),
		corrector: &density.Corrector{},
		analog:    output.NewAnalog(cfg.Output),
		callbacks: make([]func(Measurement), 0),
	}
	m.latest = Measurement{
		Watercut:    math.NaN(),
		RawWatercut: math.NaN(),
		Density:     math.NaN(),
	}

	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	m.commsDensity = cfg.Density.Manual

	return m, nil
}

// Configure applies new settings. Phase and averaging state carry over.
func (m *Meter) Configure(cfg *config.Config) error {
	bank, err := curve.NewBank(cfg.Curves.Temperatures, cfg.Curves.Coefficients, cfg.Curves.DualCutoff)
	if err != nil {
		return fmt.Errorf("failed to load curves: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.estimator = frequency.New(cfg.Counter.Multiplier, cfg.Frequency.OilIndex)
	m.detector.SetThresholds(phase.Thresholds{
		FreqLow:  cfg.Phase.FreqLow,
		FreqHigh: cfg.Phase.FreqHigh,
		P0:       cfg.Phase.P0,
		P1:       cfg.Phase.P1,
		Hold:     cfg.Phase.HoldCycles,
	})
	m.engine = &curve.Engine{
		Bank:       bank,
		Bias:       cfg.Calibration.Bias,
		OilCalcMax: cfg.Curves.OilCalcMax,
	}
	m.corrector.Coefficients = density.Coefficients{
		D0: cfg.Density.D0,
		D1: cfg.Density.D1,
		D2: cfg.Density.D2,
		D3: cfg.Density.D3,
	}
	m.analog.Configure(cfg.Output)
	m.temperature = cfg.Temperature
	m.dens = cfg.Density
	m.window = cfg.Averaging.Window

	return nil
}

// SetCommsDensity records a density written by a host, in the configured
// density unit. It is used when the density mode is comms.
func (m *Meter) SetCommsDensity(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commsDensity = v
}

// Diagnostics returns the shared diagnostics word.
func (m *Meter) Diagnostics() *diag.Word {
	return m.diag
}

// ProcessSamples runs a cycle for every capture from input.
// When the input channel closes, it sets shutdown flag to prevent further callbacks.
func (m *Meter) ProcessSamples(input <-chan Capture) {
	for c := range input {
		m.Cycle(c)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// Cycle runs one measurement cycle and publishes its result.
func (m *Meter) Cycle(c Capture) Measurement {
	m.mu.Lock()
	meas := m.cycle(c)
	m.latest = meas
	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks(meas)
	}
	return meas
}

func (m *Meter) cycle(c Capture) Measurement {
	meas := Measurement{
		Timestamp:      c.Timestamp,
		ReflectedPower: c.Inputs.ReflectedPower,
		Temperature:    c.Inputs.Temperature + m.temperature.Adjust + m.temperature.FactoryAdjust,
		Density:        math.NaN(),
	}
	m.checkTemperature(meas.Temperature)

	freq, ok := m.estimator.Estimate(c.Raw, m.diag)
	if math.IsNaN(freq) {
		// Unusable capture: keep showing the last frequency.
		freq = m.latest.Frequency
	}
	meas.Frequency = freq
	meas.FrequencyOK = ok

	var wc float64
	if ok {
		meas.Threshold = m.detector.Threshold(freq)
		m.detector.Update(phase.Input{Frequency: freq, ReflectedPower: c.Inputs.ReflectedPower})
	}
	meas.PhaseState = m.detector.State()
	meas.Phase = meas.PhaseState.Reported

	if ok {
		res, err := m.engine.Compute(meas.Phase, freq, meas.Temperature)
		if err != nil {
			log.Printf("watercut calculation failed: %v", err)
			ok = false
		}
		wc = res.Watercut
		meas.RawWatercut = res.RawWatercut
		meas.Dual = res.Dual
	}

	if ok && m.dens.Mode != config.DensityOff {
		kgm3, err := m.densityKgM3(c.Inputs)
		if err != nil {
			log.Printf("density unavailable: %v", err)
			ok = false
		} else {
			res := m.corrector.Apply(kgm3, wc, m.lastRaw, m.engine.OilCalcMax, m.diag)
			meas.Density = res.KgM3
			meas.DensityAdjustment = res.Adjustment
			wc = res.Watercut
			ok = res.OK
		}
	}

	if ok {
		meas.Watercut = m.average.Update(wc, m.window)
	} else {
		meas.Watercut = math.NaN()
		meas.RawWatercut = math.NaN()
	}
	meas.OK = ok
	m.lastRaw = meas.RawWatercut

	loop := m.analog.Update(ok, meas.Watercut, m.diag)
	meas.AnalogOutput = loop.Output
	meas.AnalogDrive = loop.Drive
	meas.Alarm = loop.Alarm
	meas.Diagnostics = m.diag.Load()

	return meas
}

func (m *Meter) checkTemperature(t float64) {
	switch {
	case t < MinTemperature:
		m.diag.Clear(diag.ErrTmpHi)
		m.diag.Set(diag.ErrTmpLo)
	case t > MaxTemperature:
		m.diag.Clear(diag.ErrTmpLo)
		m.diag.Set(diag.ErrTmpHi)
	default:
		m.diag.Clear(diag.ErrTmpLo | diag.ErrTmpHi)
	}
}

// densityKgM3 selects the density source and applies the operator
// adjustment in the display unit.
func (m *Meter) densityKgM3(in counter.Inputs) (float64, error) {
	var v float64
	switch m.dens.Mode {
	case config.DensityAnalog:
		v = in.AnalogDensity
	case config.DensityComms:
		v = m.commsDensity
	case config.DensityManual:
		v = m.dens.Manual
	default:
		return 0, fmt.Errorf("unknown density mode %q", m.dens.Mode)
	}
	return density.ToKgM3(m.dens.Unit, v+m.dens.Adjust)
}

// Latest returns the most recent measurement.
func (m *Meter) Latest() Measurement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Window returns the watercut averaging window.
func (m *Meter) Window() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window
}

// OnUpdate registers a callback invoked after every cycle.
// The callback should copy data quickly and return as fast as possible.
func (m *Meter) OnUpdate(callback func(Measurement)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new measurement chain.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks invokes all registered callbacks without holding any locks.
func (m *Meter) notifyCallbacks(meas Measurement) {
	m.cbMu.RLock()
	callbacks := make([]func(Measurement), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(meas)
		}
	}
}
