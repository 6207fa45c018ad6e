package counter

// RawSample is one capture of the hardware pulse counter.
type RawSample struct {
	PulseLow      uint32
	PulseHigh     uint32 // overflow word, non-zero means the low word wrapped
	ElapsedMicros uint32
}

// Inputs are the process values reported alongside the counter.
type Inputs struct {
	Temperature    float64 // C
	ReflectedPower float64
	AnalogDensity  float64 // in the configured density unit
}

// Port is the hardware counter as seen by the sampler.
type Port interface {
	Sample() RawSample
	Reset()
}

// Device defines the interface for counter devices (real or mocked).
type Device interface {
	Port
	Connect() error
	Close() error
	IsConnected() bool
	Inputs() Inputs
	SetRelay(on bool) error
}

// capturer is implemented by ports that can read and reset atomically.
type capturer interface {
	Capture() RawSample
}

var _ Device = (*Serial)(nil)

var _ Device = (*Mock)(nil)
