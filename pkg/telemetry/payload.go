// Package telemetry publishes measurements over MQTT, Prometheus and a
// WebSocket stream.
package telemetry

import (
	"math"

	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

// Payload is the JSON form of a measurement. Invalid values are null.
type Payload struct {
	ID                string   `json:"id"`
	Timestamp         int64    `json:"timestamp"` // unix ms
	Watercut          *float64 `json:"watercut"`
	RawWatercut       *float64 `json:"raw_watercut"`
	Frequency         *float64 `json:"frequency_mhz"`
	Temperature       *float64 `json:"temperature_c"`
	ReflectedPower    *float64 `json:"reflected_power"`
	Density           *float64 `json:"density_kg_m3,omitempty"`
	DensityAdjustment float64  `json:"density_adjustment"`
	AnalogOutput      float64  `json:"analog_ma"`
	Phase             string   `json:"phase"`
	Alarm             bool     `json:"alarm"`
	Diagnostics       uint32   `json:"diagnostics"`
	Errors            []string `json:"errors,omitempty"`
	OK                bool     `json:"ok"`
}

// NewPayload converts a measurement.
func NewPayload(id string, m meter.Measurement) Payload {
	return Payload{
		ID:                id,
		Timestamp:         m.Timestamp.UnixMilli(),
		Watercut:          finite(m.Watercut),
		RawWatercut:       finite(m.RawWatercut),
		Frequency:         finite(m.Frequency),
		Temperature:       finite(m.Temperature),
		ReflectedPower:    finite(m.ReflectedPower),
		Density:           finite(m.Density),
		DensityAdjustment: m.DensityAdjustment,
		AnalogOutput:      m.AnalogDrive,
		Phase:             m.Phase.String(),
		Alarm:             m.Alarm,
		Diagnostics:       uint32(m.Diagnostics),
		Errors:            m.Diagnostics.Names(),
		OK:                m.OK,
	}
}

// AveragesPayload is the JSON form of the aggregated averages.
type AveragesPayload struct {
	ID             string   `json:"id"`
	Timestamp      int64    `json:"timestamp"`
	Watercut       *float64 `json:"watercut"`
	Temperature    *float64 `json:"temperature_c"`
	Frequency      *float64 `json:"frequency_mhz"`
	ReflectedPower *float64 `json:"reflected_power"`
	Samples        int      `json:"samples"`
	Capturing      bool     `json:"capturing"`
}

// NewAveragesPayload converts aggregated averages.
func NewAveragesPayload(id string, avg sample.Averages) AveragesPayload {
	return AveragesPayload{
		ID:             id,
		Timestamp:      avg.At.UnixMilli(),
		Watercut:       finite(avg.Watercut),
		Temperature:    finite(avg.Temperature),
		Frequency:      finite(avg.Frequency),
		ReflectedPower: finite(avg.ReflectedPower),
		Samples:        avg.Samples,
		Capturing:      avg.Capturing,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
