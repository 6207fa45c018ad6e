package counter

import (
	"context"
	"sync"
	"time"
)

// DefaultPeriod is the nominal capture interval.
const DefaultPeriod = 500 * time.Millisecond

// Latch holds the most recent capture. Each capture is handed out once.
type Latch struct {
	mu     sync.Mutex
	sample RawSample
	fresh  bool
}

// Store replaces the latched capture.
func (l *Latch) Store(s RawSample) {
	l.mu.Lock()
	l.sample = s
	l.fresh = true
	l.mu.Unlock()
}

// Take returns the latched capture if it has not been taken yet.
func (l *Latch) Take() (RawSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return RawSample{}, false
	}
	l.fresh = false
	return l.sample, true
}

// Sampler periodically captures and resets the counter.
type Sampler struct {
	port   Port
	period time.Duration
	latch  Latch
	ready  chan struct{}
}

// NewSampler creates a sampler for port.
func NewSampler(port Port, period time.Duration) *Sampler {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Sampler{
		port:   port,
		period: period,
		ready:  make(chan struct{}, 1),
	}
}

// Capture snapshots the counter, resets it and signals the consumer.
func (s *Sampler) Capture() {
	var snap RawSample
	if c, ok := s.port.(capturer); ok {
		snap = c.Capture()
	} else {
		snap = s.port.Sample()
		s.port.Reset()
	}

	s.latch.Store(snap)

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after each capture. Signals coalesce.
func (s *Sampler) Ready() <-chan struct{} {
	return s.ready
}

// Take consumes the latest capture.
func (s *Sampler) Take() (RawSample, bool) {
	return s.latch.Take()
}

// Run captures every period until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	s.port.Reset()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Capture()
		}
	}
}
