package sample

import (
	"sync"
	"time"

	"github.com/embeddedlinuxer/razor/pkg/config"
)

// BufferSize is the capacity of each aggregation ring.
const BufferSize = 256

// TimestampLayout formats stream capture times as HH:MM MM/DD/YYYY.
const TimestampLayout = "15:04 01/02/2006"

// Snapshot is the published measurement the aggregator samples.
type Snapshot struct {
	RawWatercut    float64
	Temperature    float64
	Frequency      float64
	ReflectedPower float64
}

// Averages are the windowed means after a tick.
type Averages struct {
	Watercut       float64
	Temperature    float64
	Frequency      float64
	ReflectedPower float64
	Samples        int // values in the watercut mean
	Buffered       int // values held in the watercut ring
	Capturing      bool
	At             time.Time
}

// StreamRecorder stores a stream capture for a 1-based stream index.
type StreamRecorder func(stream int, rec config.StreamRecord)

// Aggregator keeps rolling buffers of the published measurement and their
// windowed means, and records stream captures while capture is active.
type Aggregator struct {
	mu sync.Mutex

	wc   *Ring[float64]
	temp *Ring[float64]
	freq *Ring[float64]
	rp   *Ring[float64]

	window         int
	stream         int
	tempReset      config.TemperatureAverageConfig
	resetRequested bool
	capturing      bool
	record         StreamRecorder

	latest Averages
}

// NewAggregator creates an aggregator. record may be nil.
func NewAggregator(cfg config.AveragingConfig, stream int, record StreamRecorder) *Aggregator {
	a := &Aggregator{
		wc:     NewRing[float64](BufferSize),
		temp:   NewRing[float64](BufferSize),
		freq:   NewRing[float64](BufferSize),
		rp:     NewRing[float64](BufferSize),
		record: record,
	}
	a.Configure(cfg, stream)
	return a
}

// Configure updates the window, the temperature reset schedule and the
// current stream.
func (a *Aggregator) Configure(cfg config.AveragingConfig, stream int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = cfg.Window
	if a.window < 1 {
		a.window = 1
	}
	a.tempReset = cfg.Temperature
	a.stream = stream
}

// Tick pushes one snapshot and recomputes the means.
func (a *Aggregator) Tick(s Snapshot, now time.Time) Averages {
	a.mu.Lock()

	a.wc.Push(s.RawWatercut)
	a.temp.Push(s.Temperature)
	a.freq.Push(s.Frequency)
	a.rp.Push(s.ReflectedPower)

	if a.resetRequested || a.scheduledReset(now) {
		a.temp.Clear()
		a.temp.Push(s.Temperature)
		a.resetRequested = false
	}

	var avg Averages
	avg.Watercut, avg.Samples = a.wc.WindowedMean(a.window)
	avg.Temperature, _ = a.temp.WindowedMean(a.window)
	avg.Frequency, _ = a.freq.WindowedMean(a.window)
	avg.ReflectedPower, _ = a.rp.WindowedMean(a.window)
	avg.Buffered = a.wc.Len()
	avg.Capturing = a.capturing
	avg.At = now
	a.latest = avg

	stream := a.stream
	record := a.record
	capturing := a.capturing

	a.mu.Unlock()

	if capturing && record != nil && stream >= 1 && stream <= config.StreamCount {
		record(stream, config.StreamRecord{
			Average:   avg.Watercut,
			Samples:   avg.Samples,
			Timestamp: now.Format(TimestampLayout),
		})
	}

	return avg
}

func (a *Aggregator) scheduledReset(now time.Time) bool {
	if a.tempReset.Mode != config.ResetDaily {
		return false
	}
	return now.Hour() == a.tempReset.Hour &&
		now.Minute() == a.tempReset.Minute &&
		now.Second() > a.tempReset.AfterSecond
}

// ResetTemperature restarts the temperature average on the next tick.
func (a *Aggregator) ResetTemperature() {
	a.mu.Lock()
	a.resetRequested = true
	a.mu.Unlock()
}

// BeginCapture starts recording the current stream on every tick.
func (a *Aggregator) BeginCapture() {
	a.mu.Lock()
	a.capturing = true
	a.mu.Unlock()
}

// EndCapture stops recording.
func (a *Aggregator) EndCapture() {
	a.mu.Lock()
	a.capturing = false
	a.mu.Unlock()
}

// Capturing reports whether a capture is active.
func (a *Aggregator) Capturing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capturing
}

// Averages returns the result of the latest tick.
func (a *Aggregator) Averages() Averages {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Window returns the configured averaging window.
func (a *Aggregator) Window() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window
}
