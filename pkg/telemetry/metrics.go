package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/phase"
	"github.com/embeddedlinuxer/razor/pkg/sample"
)

const namespace = "razor"

// Metrics holds the Prometheus collectors for one analyzer.
type Metrics struct {
	registry *prometheus.Registry

	watercut          prometheus.Gauge
	rawWatercut       prometheus.Gauge
	frequency         prometheus.Gauge
	temperature       prometheus.Gauge
	reflectedPower    prometheus.Gauge
	density           prometheus.Gauge
	densityAdjustment prometheus.Gauge
	analogOutput      prometheus.Gauge
	oil               prometheus.Gauge
	alarm             prometheus.Gauge
	diagnostics       *prometheus.GaugeVec // label: bit
	cycles            *prometheus.CounterVec

	avgWatercut    prometheus.Gauge
	avgTemperature prometheus.Gauge
	avgFrequency   prometheus.Gauge
	avgSamples     prometheus.Gauge
}

// NewMetrics registers the collectors on a private registry labelled with
// the instance id.
func NewMetrics(id string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"instance": id}

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	return &Metrics{
		registry:          reg,
		watercut:          gauge("watercut_percent", "Averaged watercut, NaN after a failed cycle"),
		rawWatercut:       gauge("raw_watercut_percent", "Watercut before bias and density correction"),
		frequency:         gauge("frequency_mhz", "Oscillator frequency"),
		temperature:       gauge("temperature_celsius", "User temperature"),
		reflectedPower:    gauge("reflected_power", "Oscillator reflected power"),
		density:           gauge("density_kg_m3", "Oil density used for correction"),
		densityAdjustment: gauge("density_adjustment_percent", "Watercut adjustment from density correction"),
		analogOutput:      gauge("analog_output_ma", "Driven loop current"),
		oil:               gauge("oil_phase", "1 when the reported phase is oil"),
		alarm:             gauge("alarm", "1 while the analog output alarm is raised"),
		diagnostics: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "diagnostic",
			Help:        "Diagnostic bits, 1 when set",
			ConstLabels: labels,
		}, []string{"bit"}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cycles_total",
			Help:        "Measurement cycles by outcome",
			ConstLabels: labels,
		}, []string{"result"}),
		avgWatercut:    gauge("average_watercut_percent", "Windowed mean of raw watercut"),
		avgTemperature: gauge("average_temperature_celsius", "Windowed mean of temperature"),
		avgFrequency:   gauge("average_frequency_mhz", "Windowed mean of frequency"),
		avgSamples:     gauge("average_samples", "Samples in the watercut mean"),
	}
}

// Observe records a measurement.
func (m *Metrics) Observe(meas meter.Measurement) {
	m.watercut.Set(meas.Watercut)
	m.rawWatercut.Set(meas.RawWatercut)
	m.frequency.Set(meas.Frequency)
	m.temperature.Set(meas.Temperature)
	m.reflectedPower.Set(meas.ReflectedPower)
	m.density.Set(meas.Density)
	m.densityAdjustment.Set(meas.DensityAdjustment)
	m.analogOutput.Set(meas.AnalogDrive)
	m.oil.Set(boolValue(meas.Phase == phase.Oil))
	m.alarm.Set(boolValue(meas.Alarm))

	meas.Diagnostics.Each(func(name string, set bool) {
		m.diagnostics.WithLabelValues(name).Set(boolValue(set))
	})

	if meas.OK {
		m.cycles.WithLabelValues("ok").Inc()
	} else {
		m.cycles.WithLabelValues("failed").Inc()
	}
}

// ObserveAverages records aggregated averages.
func (m *Metrics) ObserveAverages(avg sample.Averages) {
	m.avgWatercut.Set(avg.Watercut)
	m.avgTemperature.Set(avg.Temperature)
	m.avgFrequency.Set(avg.Frequency)
	m.avgSamples.Set(float64(avg.Samples))
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
