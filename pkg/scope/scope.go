// Package scope draws a strip chart of published watercut with markers
// for failed cycles and phase changes.
package scope

import (
	"image/color"
	"math"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

// EventKind marks something worth a vertical line on the chart.
type EventKind int

const (
	EventFailure EventKind = iota
	EventPhase
)

// Event is a marker at a point in time.
type Event struct {
	At    time.Time
	Kind  EventKind
	Label string
}

// Status is the header line of the chart.
type Status struct {
	Watercut float64
	Phase    phase.Phase
	Drive    float64
	Alarm    bool
	Errors   string
}

// TrendWidget is a Fyne widget plotting watercut over a sliding window.
type TrendWidget struct {
	widget.BaseWidget

	window time.Duration

	mu        sync.RWMutex
	history   *sample.History
	events    []Event
	status    Status
	lastPhase phase.Phase
	seen      bool

	display []sample.Point

	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a trend covering window, keeping at most capacity points.
func New(window time.Duration, capacity int) *TrendWidget {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 3000
	}
	s := &TrendWidget{
		window:           window,
		history:          sample.NewHistory(capacity),
		display:          make([]sample.Point, 0, 1000),
		status:           Status{Watercut: math.NaN()},
		maxDisplayPoints: 1000,
	}
	s.ExtendBaseWidget(s)
	return s
}

// Update adds a measurement and redraws. Call it on the Fyne thread.
func (s *TrendWidget) Update(m meter.Measurement) {
	s.record(m)
	s.Refresh()
}

func (s *TrendWidget) record(m meter.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Add(sample.Point{Timestamp: m.Timestamp, Value: m.Watercut})

	if !m.OK {
		s.events = append(s.events, Event{At: m.Timestamp, Kind: EventFailure, Label: m.Diagnostics.String()})
	}
	if s.seen && m.Phase != s.lastPhase {
		s.events = append(s.events, Event{At: m.Timestamp, Kind: EventPhase, Label: m.Phase.String()})
	}
	s.lastPhase = m.Phase
	s.seen = true

	s.status = Status{
		Watercut: m.Watercut,
		Phase:    m.Phase,
		Drive:    m.AnalogDrive,
		Alarm:    m.Alarm,
		Errors:   m.Diagnostics.String(),
	}

	from := m.Timestamp.Add(-s.window)
	s.display = sample.Downsample(s.display, s.history.Since(from), s.maxDisplayPoints)
	s.pruneEvents(from)
	s.updateAutoScale(from, m.Timestamp)
}

func (s *TrendWidget) pruneEvents(from time.Time) {
	i := 0
	for i < len(s.events) && s.events[i].At.Before(from) {
		i++
	}
	s.events = s.events[i:]
}

// updateAutoScale fits the Y axis to the visible points, ignoring failed
// cycles, and keeps it within 0-100 %.
func (s *TrendWidget) updateAutoScale(from, to time.Time) {
	s.xMin, s.xMax = from, to

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range s.display {
		if math.IsNaN(p.Value) {
			continue
		}
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	if math.IsInf(lo, 1) {
		s.yMin, s.yMax = 0, 100
		return
	}

	span := hi - lo
	if span < 1 {
		span = 1
	}
	s.yMin = math.Max(0, lo-span*0.1)
	s.yMax = math.Min(100, hi+span*0.1)
	if s.yMax <= s.yMin {
		s.yMin, s.yMax = math.Max(0, s.yMax-1), math.Min(100, s.yMin+1)
	}
}

// Events returns the markers inside the window.
func (s *TrendWidget) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// Status returns the header values of the last measurement.
func (s *TrendWidget) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Range returns the current axis ranges.
func (s *TrendWidget) Range() (yMin, yMax float64, xMin, xMax time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yMin, s.yMax, s.xMin, s.xMax
}

// CreateRenderer creates the widget renderer.
func (s *TrendWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &trendRenderer{
		trend:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
