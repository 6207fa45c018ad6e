package analyzer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/embeddedlinuxer/razor/pkg/command"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/embeddedlinuxer/razor/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice returns a fixed 560 MHz capture.
type fakeDevice struct {
	mu        sync.Mutex
	raw       counter.RawSample
	inputs    counter.Inputs
	connected bool
	relay     []bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		raw:    counter.RawSample{PulseLow: 7000, ElapsedMicros: 1000},
		inputs: counter.Inputs{Temperature: 45, ReflectedPower: 0.5},
	}
}

func (d *fakeDevice) Sample() counter.RawSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw
}

func (d *fakeDevice) Reset() {}

func (d *fakeDevice) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *fakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDevice) Inputs() counter.Inputs {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs
}

func (d *fakeDevice) SetRelay(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relay = append(d.relay, on)
	return nil
}

func (d *fakeDevice) setRaw(raw counter.RawSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = raw
}

func (d *fakeDevice) relayWrites() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.relay...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Phase.HoldCycles = 1
	cfg.Averaging.Window = 2
	cfg.Relay.Delay = 0
	return cfg
}

func newAnalyzer(t *testing.T, cfg *config.Config) (*Analyzer, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	a, err := New(config.NewStore(cfg, ""), dev)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC) }
	return a, dev
}

// step runs one capture, one cycle and one aggregation tick.
func step(t *testing.T, a *Analyzer) sample.Averages {
	t.Helper()
	a.Capture()
	_, ok := a.Cycle()
	require.True(t, ok)
	return a.Tick()
}

func TestNew_AssignsInstanceID(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	assert.NotEmpty(t, a.ID())
	assert.Equal(t, a.ID(), a.Store().Config().InstanceID)

	cfg := testConfig()
	cfg.InstanceID = "razor-7"
	b, _ := newAnalyzer(t, cfg)
	assert.Equal(t, "razor-7", b.ID())
}

func TestCycle_NeedsCapture(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	_, ok := a.Cycle()
	assert.False(t, ok, "no capture latched")

	a.Capture()
	meas, ok := a.Cycle()
	require.True(t, ok)
	assert.True(t, meas.OK)
	assert.Equal(t, phase.Oil, meas.Phase)

	_, ok = a.Cycle()
	assert.False(t, ok, "a capture is consumed once")
}

func TestTick_ReadsPublishedMeasurement(t *testing.T) {
	a, dev := newAnalyzer(t, testConfig())

	var got []sample.Averages
	a.OnAverages(func(avg sample.Averages) { got = append(got, avg) })

	avg := step(t, a)
	assert.InDelta(t, 26.45, avg.Watercut, 1e-9)
	assert.Equal(t, 45.0, avg.Temperature)
	assert.Equal(t, 560.0, avg.Frequency)

	dev.setRaw(counter.RawSample{PulseHigh: 1})
	avg = step(t, a)
	assert.True(t, math.IsNaN(avg.Watercut), "failed cycles reach the watercut mean")
	assert.Equal(t, 560.0, avg.Frequency, "an unusable capture keeps the last frequency")
	assert.Len(t, got, 2)
	assertSameAverages(t, avg, a.Averages())
	assertSameAverages(t, avg, got[1])
}

// assertSameAverages compares averages field by field. A NaN mean matches
// only another NaN.
func assertSameAverages(t *testing.T, want, got sample.Averages) {
	t.Helper()

	fields := []struct {
		name string
		w, g *float64
	}{
		{"Watercut", &want.Watercut, &got.Watercut},
		{"Temperature", &want.Temperature, &got.Temperature},
		{"Frequency", &want.Frequency, &got.Frequency},
		{"ReflectedPower", &want.ReflectedPower, &got.ReflectedPower},
	}
	for _, f := range fields {
		wNaN, gNaN := math.IsNaN(*f.w), math.IsNaN(*f.g)
		assert.Equal(t, wNaN, gNaN, "%s NaN mismatch", f.name)
		if wNaN && gNaN {
			*f.w, *f.g = 0, 0
		}
	}
	assert.Equal(t, want, got)
}

func TestExecute_CaptureAndCalibrate(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	reply := a.Execute(command.Command{Kind: command.BeginCapture})
	require.True(t, reply.OK, reply.Error)

	step(t, a)
	step(t, a)

	rec := a.Store().Config().Calibration.Streams[0]
	assert.InDelta(t, 26.45, rec.Average, 1e-9)
	assert.Equal(t, 2, rec.Samples)
	assert.Equal(t, "09:05 03/04/2026", rec.Timestamp)

	reply = a.Execute(command.Command{Kind: command.EndCapture, Lab: 30, Stream: 1})
	require.True(t, reply.OK, reply.Error)
	require.NotNil(t, reply.Calibration)
	assert.True(t, reply.Calibration.Averaged)
	assert.InDelta(t, 30-26.45, reply.Calibration.Bias, 1e-9)
	assert.InDelta(t, 30-26.45, a.Store().Config().Calibration.Bias, 1e-9)

	// The next cycle reads the new bias.
	a.Capture()
	meas, _ := a.Cycle()
	assert.InDelta(t, 30.0, meas.Watercut, 1e-9)
	assert.InDelta(t, 26.45, meas.RawWatercut, 1e-9)

	// Capture stopped, the stream keeps its record.
	a.Tick()
	assert.Equal(t, 2, a.Store().Config().Calibration.Streams[0].Samples)
}

func TestExecute_CalibrateNotSettled(t *testing.T) {
	cfg := testConfig()
	cfg.Averaging.Window = 10
	a, dev := newAnalyzer(t, cfg)

	step(t, a)
	dev.setRaw(counter.RawSample{})
	step(t, a)

	reply := a.Execute(command.Command{Kind: command.EndCapture, Lab: 30, Stream: 1})
	assert.False(t, reply.OK)
	assert.NotEmpty(t, reply.Error)
	assert.Equal(t, 0.0, a.Store().Config().Calibration.Bias)
}

func TestExecute_InvalidCommand(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	reply := a.Execute(command.Command{Kind: "launch"})
	assert.False(t, reply.OK)
	assert.Equal(t, a.ID(), reply.ID)

	reply = a.Execute(command.Command{Kind: command.SetCurveCoefficients, Index: 6})
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, ErrCurveIndex.Error())
}

func TestExecute_SetAveragingWindow(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	reply := a.Execute(command.Command{Kind: command.SetAveragingWindow, Window: 30})
	require.True(t, reply.OK, reply.Error)

	assert.Equal(t, 30, a.Store().Config().Averaging.Window)
	assert.Equal(t, 30, a.Meter().Window())
}

func TestExecute_SetCurveCoefficients(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	reply := a.Execute(command.Command{
		Kind:         command.SetCurveCoefficients,
		Index:        2,
		Coefficients: [4]float64{306, -0.48, 0, 0},
	})
	require.True(t, reply.OK, reply.Error)

	a.Capture()
	meas, _ := a.Cycle()
	// Row 2 now gives 37.2 at 560 MHz.
	assert.InDelta(t, 24.2+0.75*(37.2-24.2), meas.RawWatercut, 1e-9)
}

func TestExecute_SetDensityMode(t *testing.T) {
	a, _ := newAnalyzer(t, testConfig())

	reply := a.Execute(command.Command{Kind: command.SetDensityMode, Mode: config.DensityComms, Unit: config.UnitAPI})
	require.True(t, reply.OK, reply.Error)

	cfg := a.Store().Config()
	assert.Equal(t, config.DensityComms, cfg.Density.Mode)
	assert.Equal(t, config.UnitAPI, cfg.Density.Unit)
	assert.Equal(t, 0.16, cfg.Density.D1)
	assert.Equal(t, 0.0, cfg.Density.D0)

	reply = a.Execute(command.Command{Kind: command.SetDensityMode, Mode: config.DensityManual, Unit: config.UnitSG})
	assert.False(t, reply.OK, "sg is not a calibration unit")
	assert.Equal(t, config.DensityComms, a.Store().Config().Density.Mode)
}

func TestExecute_CommsDensity(t *testing.T) {
	cfg := testConfig()
	cfg.Density.Mode = config.DensityComms
	a, _ := newAnalyzer(t, cfg)

	reply := a.Execute(command.Command{Kind: command.SetCommsDensity, Value: 820})
	require.True(t, reply.OK, reply.Error)

	a.Capture()
	meas, _ := a.Cycle()
	assert.Equal(t, 820.0, meas.Density)
}

func TestExecute_ResetTemperature(t *testing.T) {
	a, dev := newAnalyzer(t, testConfig())
	step(t, a)

	dev.mu.Lock()
	dev.inputs.Temperature = 55
	dev.mu.Unlock()

	a.Execute(command.Command{Kind: command.ResetTemperatureAverage})
	avg := step(t, a)
	assert.Equal(t, 55.0, avg.Temperature)
}

func TestUpdateRelay(t *testing.T) {
	cfg := testConfig()
	cfg.Relay.Setpoint = 20
	a, dev := newAnalyzer(t, cfg)

	assert.False(t, a.UpdateRelay(), "no measurement yet")
	assert.Empty(t, dev.relayWrites())

	step(t, a)
	assert.True(t, a.UpdateRelay())
	assert.True(t, a.UpdateRelay())
	assert.Equal(t, []bool{true}, dev.relayWrites(), "writes only on change")

	dev.setRaw(counter.RawSample{})
	step(t, a)
	assert.False(t, a.UpdateRelay())
	assert.Equal(t, []bool{true, false}, dev.relayWrites())
}

func TestApply(t *testing.T) {
	cfg := testConfig()
	cfg.Relay.Setpoint = 20
	a, dev := newAnalyzer(t, cfg)

	require.NoError(t, a.Apply(func(cfg *config.Config) error {
		cfg.Relay.Setpoint = 50
		return nil
	}))
	assert.Equal(t, 50.0, a.Store().Config().Relay.Setpoint)

	step(t, a)
	assert.False(t, a.UpdateRelay(), "26.45 is below the new setpoint")
	assert.Empty(t, dev.relayWrites())
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Counter.SamplePeriod = 5 * time.Millisecond
	cfg.Averaging.Period = 5 * time.Millisecond
	a, dev := newAnalyzer(t, cfg)

	updates := make(chan struct{}, 100)
	a.Meter().OnUpdate(func(meter.Measurement) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no measurement cycle ran")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, dev.IsConnected())
}
