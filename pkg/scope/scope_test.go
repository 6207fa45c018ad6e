package scope

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedlinuxer/razor/pkg/diag"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/phase"
)

var start = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func oil(at time.Duration, wc float64) meter.Measurement {
	return meter.Measurement{Timestamp: start.Add(at), Phase: phase.Oil, Watercut: wc, AnalogDrive: 8, OK: true}
}

func TestRecord_Events(t *testing.T) {
	s := New(time.Minute, 100)

	s.record(oil(0, 20))
	s.record(meter.Measurement{
		Timestamp:   start.Add(time.Second),
		Phase:       phase.Oil,
		Watercut:    math.NaN(),
		Alarm:       true,
		Diagnostics: diag.ErrFrqHi,
	})
	s.record(meter.Measurement{Timestamp: start.Add(2 * time.Second), Phase: phase.Water, Watercut: 100, OK: true})

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventFailure, events[0].Kind)
	assert.Equal(t, "ERR_FRQ_HI", events[0].Label)
	assert.Equal(t, EventPhase, events[1].Kind)
	assert.Equal(t, "water", events[1].Label)

	st := s.Status()
	assert.Equal(t, 100.0, st.Watercut)
	assert.Equal(t, phase.Water, st.Phase)
}

func TestRecord_FirstMeasurementIsNotAPhaseChange(t *testing.T) {
	s := New(time.Minute, 100)
	s.record(meter.Measurement{Timestamp: start, Phase: phase.Water, Watercut: 100, OK: true})
	assert.Empty(t, s.Events())
}

func TestRecord_WindowPrunesEvents(t *testing.T) {
	s := New(10*time.Second, 100)

	s.record(meter.Measurement{Timestamp: start, Phase: phase.Oil, Watercut: math.NaN()})
	require.Len(t, s.Events(), 1)

	s.record(oil(30*time.Second, 20))
	assert.Empty(t, s.Events())
}

func TestAutoScale(t *testing.T) {
	s := New(time.Minute, 100)

	s.record(oil(0, 20))
	s.record(oil(time.Second, 30))
	s.record(meter.Measurement{Timestamp: start.Add(2 * time.Second), Watercut: math.NaN()})

	yMin, yMax, xMin, xMax := s.Range()
	assert.InDelta(t, 19, yMin, 1e-9)
	assert.InDelta(t, 31, yMax, 1e-9)
	assert.Equal(t, start.Add(2*time.Second), xMax)
	assert.Equal(t, xMax.Add(-time.Minute), xMin)
}

func TestAutoScale_Limits(t *testing.T) {
	s := New(time.Minute, 100)

	s.record(oil(0, 100))
	_, yMax, _, _ := s.Range()
	assert.Equal(t, 100.0, yMax)

	s = New(time.Minute, 100)
	s.record(meter.Measurement{Timestamp: start, Watercut: math.NaN()})
	yMin, yMax, _, _ := s.Range()
	assert.Equal(t, 0.0, yMin)
	assert.Equal(t, 100.0, yMax)
}

func TestFormatAgo(t *testing.T) {
	assert.Equal(t, "now", formatAgo(0))
	assert.Equal(t, "-2m30s", formatAgo(150*time.Second))
}
