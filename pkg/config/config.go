package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StreamCount is the number of calibration stream slots kept per instrument.
const StreamCount = 60

// Density correction source modes.
const (
	DensityOff    = "off"
	DensityAnalog = "analog"
	DensityComms  = "comms"
	DensityManual = "manual"
)

// Density units.
const (
	UnitKgM3 = "kg_m3" // kg/m3 @ 15C
	UnitAPI  = "api"   // API gravity @ 60F
	UnitSG   = "sg"    // specific gravity @ 15C
)

// Analog output alarm modes.
const (
	AlarmHold = "hold"
	AlarmHigh = "high"
	AlarmLow  = "low"
)

// Relay modes.
const (
	RelayWatercut = "watercut"
	RelayPhase    = "phase"
	RelayError    = "error"
	RelayManual   = "manual"
)

// Temperature average reset modes.
const (
	ResetDaily    = "daily"
	ResetOnDemand = "on_demand"
)

// Analyzer models. Low and mid range instruments apply specific gravity to
// lab samples during calibration.
const (
	ModelLow  = "low"
	ModelMid  = "mid"
	ModelHigh = "high"
	ModelFull = "full"
)

var (
	ErrInvalidWindow   = errors.New("averaging window must be within 1..60")
	ErrInvalidCurves   = errors.New("invalid curve bank")
	ErrInvalidDensity  = errors.New("invalid density configuration")
	ErrInvalidStream   = errors.New("stream index must be within 1..60")
	ErrInvalidPhase    = errors.New("invalid phase configuration")
	ErrInvalidOutput   = errors.New("invalid output configuration")
	ErrInvalidRelay    = errors.New("invalid relay configuration")
	ErrInvalidAnalyzer = errors.New("invalid analyzer model")
)

// Config represents the analyzer configuration.
type Config struct {
	InstanceID  string            `yaml:"instance_id"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Serial      SerialConfig      `yaml:"serial"`
	Counter     CounterConfig     `yaml:"counter"`
	Frequency   FrequencyConfig   `yaml:"frequency"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Phase       PhaseConfig       `yaml:"phase"`
	Curves      CurveConfig       `yaml:"curves"`
	Density     DensityConfig     `yaml:"density"`
	Averaging   AveragingConfig   `yaml:"averaging"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Output      OutputConfig      `yaml:"output"`
	Relay       RelayConfig       `yaml:"relay"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Display     DisplayConfig     `yaml:"display"`
	Mock        MockConfig        `yaml:"mock"`
}

// AnalyzerConfig describes the instrument.
type AnalyzerConfig struct {
	Model string `yaml:"model"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// CounterConfig contains pulse counter capture parameters.
type CounterConfig struct {
	SamplePeriod time.Duration `yaml:"sample_period"`
	Multiplier   float64       `yaml:"multiplier"` // prescaler between oscillator and counter
}

// FrequencyConfig contains frequency estimation parameters.
type FrequencyConfig struct {
	OilIndex float64 `yaml:"oil_index"` // MHz offset added to every reading
}

// TemperatureConfig holds the operator and factory temperature offsets (C).
type TemperatureConfig struct {
	Adjust        float64 `yaml:"adjust"`
	FactoryAdjust float64 `yaml:"factory_adjust"`
}

// PhaseConfig contains oil/water phase detection thresholds.
type PhaseConfig struct {
	FreqLow    float64 `yaml:"freq_low"`
	FreqHigh   float64 `yaml:"freq_high"`
	P0         float64 `yaml:"p0"`
	P1         float64 `yaml:"p1"`
	HoldCycles int     `yaml:"hold_cycles"`
}

// CurveConfig contains the calibration curve bank. Coefficients are stored
// as {c0, c1, c2, c3}.
type CurveConfig struct {
	Temperatures []float64    `yaml:"temperatures"`
	Coefficients [][4]float64 `yaml:"coefficients"`
	DualCutoff   float64      `yaml:"dual_cutoff"`
	OilCalcMax   float64      `yaml:"oil_calc_max"`
}

// DensityConfig contains density correction parameters.
type DensityConfig struct {
	Mode   string  `yaml:"mode"`
	Unit   string  `yaml:"unit"`
	D0     float64 `yaml:"d0"`
	D1     float64 `yaml:"d1"`
	D2     float64 `yaml:"d2"`
	D3     float64 `yaml:"d3"` // kept for compatibility, never applied
	Manual float64 `yaml:"manual"`
	Adjust float64 `yaml:"adjust"` // operator offset in Unit
}

// AveragingConfig contains sample aggregation parameters.
type AveragingConfig struct {
	Window      int                      `yaml:"window"`
	Period      time.Duration            `yaml:"period"`
	Temperature TemperatureAverageConfig `yaml:"temperature"`
}

// TemperatureAverageConfig controls when the temperature average restarts.
// In daily mode the reset fires while the clock reads Hour:Minute with
// seconds greater than AfterSecond.
type TemperatureAverageConfig struct {
	Mode        string `yaml:"mode"`
	Hour        int    `yaml:"hour"`
	Minute      int    `yaml:"minute"`
	AfterSecond int    `yaml:"after_second"`
}

// CalibrationConfig holds the bias and the per-stream capture table.
type CalibrationConfig struct {
	Bias    float64        `yaml:"bias"`
	Stream  int            `yaml:"stream"`
	Streams []StreamRecord `yaml:"streams"`
}

// StreamRecord is one slot of the stream capture table.
type StreamRecord struct {
	Average   float64 `yaml:"average"`
	Samples   int     `yaml:"samples"`
	Timestamp string  `yaml:"timestamp"`
	Bias      float64 `yaml:"bias"`
}

// OutputConfig contains analog output parameters.
type OutputConfig struct {
	AlarmMode   string  `yaml:"alarm_mode"`
	Manual      bool    `yaml:"manual"`
	ManualValue float64 `yaml:"manual_value"` // mA
}

// RelayConfig contains relay parameters.
type RelayConfig struct {
	Mode     string  `yaml:"mode"`
	Setpoint float64 `yaml:"setpoint"`
	Delay    int     `yaml:"delay"` // ticks the condition must hold before energizing
	ActOnOil bool    `yaml:"act_on_oil"`
	Manual   bool    `yaml:"manual"`
}

// MQTTConfig contains telemetry broker configuration. Empty Broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
}

// MetricsConfig contains the HTTP listener for metrics and the live stream.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DisplayConfig contains desktop monitor settings.
type DisplayConfig struct {
	Window time.Duration `yaml:"window"` // trend span
}

// MockConfig contains simulated counter configuration.
type MockConfig struct {
	FrequencyMHz float64       `yaml:"frequency_mhz"`
	RippleMHz    float64       `yaml:"ripple_mhz"`
	Period       time.Duration `yaml:"period"` // ripple period
	Temperature  float64       `yaml:"temperature"`
	Reflected    float64       `yaml:"reflected"`
	Density      float64       `yaml:"density"` // analog density input, in density.unit
	Fault        string        `yaml:"fault"`   // none, overflow, stall
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{Model: ModelLow},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Counter: CounterConfig{
			SamplePeriod: 500 * time.Millisecond,
			Multiplier:   80,
		},
		Phase: PhaseConfig{
			FreqLow:    400,
			FreqHigh:   800,
			P0:         0.2,
			P1:         0,
			HoldCycles: 5,
		},
		Curves: CurveConfig{
			Temperatures: []float64{10, 30, 50, 70, 90, 110},
			Coefficients: [][4]float64{
				{290, -0.48, 0, 0},
				{293, -0.48, 0, 0},
				{296, -0.48, 0, 0},
				{299, -0.48, 0, 0},
				{302, -0.48, 0, 0},
				{305, -0.48, 0, 0},
			},
			DualCutoff: 0,
			OilCalcMax: 85,
		},
		Density: DensityConfig{
			Mode:   DensityOff,
			Unit:   UnitKgM3,
			D1:     -0.0286,
			D0:     24.6,
			Manual: 860,
		},
		Averaging: AveragingConfig{
			Window: 10,
			Period: time.Second,
			Temperature: TemperatureAverageConfig{
				Mode:        ResetDaily,
				Hour:        23,
				Minute:      59,
				AfterSecond: 57,
			},
		},
		Calibration: CalibrationConfig{
			Stream:  1,
			Streams: make([]StreamRecord, StreamCount),
		},
		Output: OutputConfig{
			AlarmMode:   AlarmHigh,
			ManualValue: 4,
		},
		Relay: RelayConfig{
			Mode:     RelayWatercut,
			Setpoint: 50,
			Delay:    3,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "razor",
			QoS:         1,
		},
		Metrics: MetricsConfig{
			Listen: ":9108",
		},
		Display: DisplayConfig{
			Window: 5 * time.Minute,
		},
		Mock: MockConfig{
			FrequencyMHz: 560,
			RippleMHz:    0.5,
			Period:       60 * time.Second,
			Temperature:  45,
			Reflected:    0.5,
			Density:      860,
			Fault:        "none",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Curves.Temperatures = append([]float64(nil), c.Curves.Temperatures...)
	out.Curves.Coefficients = append([][4]float64(nil), c.Curves.Coefficients...)
	out.Calibration.Streams = append([]StreamRecord(nil), c.Calibration.Streams...)
	return &out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Averaging.Window < 1 || c.Averaging.Window > StreamCount {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, c.Averaging.Window)
	}
	if c.Calibration.Stream < 1 || c.Calibration.Stream > StreamCount {
		return fmt.Errorf("%w: got %d", ErrInvalidStream, c.Calibration.Stream)
	}
	if c.Phase.HoldCycles < 1 || c.Phase.FreqLow > c.Phase.FreqHigh {
		return ErrInvalidPhase
	}

	n := len(c.Curves.Temperatures)
	if n < 4 || len(c.Curves.Coefficients) != n {
		return fmt.Errorf("%w: %d temperatures, %d coefficient rows", ErrInvalidCurves, n, len(c.Curves.Coefficients))
	}
	if c.Curves.DualCutoff > 0 && n < 5 {
		return fmt.Errorf("%w: dual curve needs at least 5 curves", ErrInvalidCurves)
	}
	for _, t := range c.Curves.Temperatures {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: non-finite temperature", ErrInvalidCurves)
		}
	}

	switch c.Density.Mode {
	case DensityOff, DensityAnalog, DensityComms, DensityManual:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidDensity, c.Density.Mode)
	}
	switch c.Density.Unit {
	case UnitKgM3, UnitAPI, UnitSG:
	default:
		return fmt.Errorf("%w: unit %q", ErrInvalidDensity, c.Density.Unit)
	}

	switch c.Output.AlarmMode {
	case AlarmHold, AlarmHigh, AlarmLow:
	default:
		return fmt.Errorf("%w: alarm mode %q", ErrInvalidOutput, c.Output.AlarmMode)
	}

	switch c.Relay.Mode {
	case RelayWatercut, RelayPhase, RelayError, RelayManual:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidRelay, c.Relay.Mode)
	}
	if c.Relay.Delay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidRelay)
	}

	switch c.Analyzer.Model {
	case ModelLow, ModelMid, ModelHigh, ModelFull:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAnalyzer, c.Analyzer.Model)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Analyzer.Model == "" {
		c.Analyzer.Model = def.Analyzer.Model
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Counter.SamplePeriod == 0 {
		c.Counter.SamplePeriod = def.Counter.SamplePeriod
	}
	if c.Counter.Multiplier == 0 {
		c.Counter.Multiplier = def.Counter.Multiplier
	}

	if c.Phase.HoldCycles == 0 {
		c.Phase.HoldCycles = def.Phase.HoldCycles
	}

	if len(c.Curves.Temperatures) == 0 {
		c.Curves.Temperatures = def.Curves.Temperatures
	}
	if len(c.Curves.Coefficients) == 0 {
		c.Curves.Coefficients = def.Curves.Coefficients
	}
	if c.Curves.OilCalcMax == 0 {
		c.Curves.OilCalcMax = def.Curves.OilCalcMax
	}

	if c.Density.Mode == "" {
		c.Density.Mode = def.Density.Mode
	}
	if c.Density.Unit == "" {
		c.Density.Unit = def.Density.Unit
	}

	if c.Averaging.Window == 0 {
		c.Averaging.Window = def.Averaging.Window
	}
	if c.Averaging.Period == 0 {
		c.Averaging.Period = def.Averaging.Period
	}
	if c.Averaging.Temperature.Mode == "" {
		c.Averaging.Temperature = def.Averaging.Temperature
	}

	if c.Display.Window == 0 {
		c.Display.Window = def.Display.Window
	}

	if c.Calibration.Stream == 0 {
		c.Calibration.Stream = def.Calibration.Stream
	}
	for len(c.Calibration.Streams) < StreamCount {
		c.Calibration.Streams = append(c.Calibration.Streams, StreamRecord{})
	}
	c.Calibration.Streams = c.Calibration.Streams[:StreamCount]

	if c.Output.AlarmMode == "" {
		c.Output.AlarmMode = def.Output.AlarmMode
	}
	if c.Relay.Mode == "" {
		c.Relay.Mode = def.Relay.Mode
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = def.Metrics.Listen
	}

	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
	if c.Mock.Fault == "" {
		c.Mock.Fault = def.Mock.Fault
	}
}
