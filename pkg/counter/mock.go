package counter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/embeddedlinuxer/razor/pkg/config"
)

// Mock fault modes.
const (
	FaultNone     = "none"
	FaultOverflow = "overflow"
	FaultStall    = "stall"
)

// Mock simulates the counter firmware for testing and development. Counts
// are derived from the wall time since the last reset and a slowly rippling
// oscillator frequency.
type Mock struct {
	cfg        config.MockConfig
	multiplier float64
	now        func() time.Time

	mu        sync.RWMutex
	connected bool
	relay     bool
	start     time.Time
	lastReset time.Time
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.MockConfig, multiplier float64) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if multiplier == 0 {
		multiplier = 80
	}

	return &Mock{
		cfg:        *cfg,
		multiplier: multiplier,
		now:        time.Now,
	}
}

// Connect starts the simulation clock.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.start = m.now()
	m.lastReset = m.start
	m.connected = true

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the mock is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Frequency returns the simulated oscillator frequency in MHz at t.
func (m *Mock) Frequency(t time.Time) float64 {
	f := m.cfg.FrequencyMHz
	if m.cfg.RippleMHz != 0 && m.cfg.Period > 0 {
		phase := 2 * math.Pi * t.Sub(m.start).Seconds() / m.cfg.Period.Seconds()
		f += m.cfg.RippleMHz * math.Sin(phase)
	}
	return f
}

// Sample returns the simulated counts since the last reset.
func (m *Mock) Sample() RawSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return RawSample{}
	}

	now := m.now()
	elapsed := now.Sub(m.lastReset).Microseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	s := RawSample{
		ElapsedMicros: uint32(elapsed),
		PulseLow:      uint32(float64(elapsed) * m.Frequency(now) / m.multiplier),
	}

	switch m.cfg.Fault {
	case FaultOverflow:
		s.PulseHigh = 1
	case FaultStall:
		s.ElapsedMicros = 0
	}

	return s
}

// Reset restarts the count window.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.lastReset = m.now()
	m.mu.Unlock()
}

// Inputs returns the configured process inputs.
func (m *Mock) Inputs() Inputs {
	return Inputs{
		Temperature:    m.cfg.Temperature,
		ReflectedPower: m.cfg.Reflected,
		AnalogDensity:  m.cfg.Density,
	}
}

// SetRelay records the relay state.
func (m *Mock) SetRelay(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	m.relay = on
	return nil
}

// Relay returns the last relay state set.
func (m *Mock) Relay() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relay
}

// SetFault changes the injected fault mode.
func (m *Mock) SetFault(fault string) {
	m.mu.Lock()
	m.cfg.Fault = fault
	m.mu.Unlock()
}
