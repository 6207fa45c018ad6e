package counter

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    line
		wantErr bool
	}{
		{
			name: "valid line",
			line: "100000,700000,0,45250,500,860000",
			want: line{
				elapsed: 100000,
				low:     700000,
				inputs:  Inputs{Temperature: 45.25, ReflectedPower: 0.5, AnalogDensity: 860},
			},
		},
		{
			name: "negative temperature",
			line: "100000,1,2,-5000,0,0",
			want: line{
				elapsed: 100000,
				low:     1,
				high:    2,
				inputs:  Inputs{Temperature: -5},
			},
		},
		{
			name: "max counts",
			line: "4294967295,4294967295,4294967295,0,0,0",
			want: line{
				elapsed: math.MaxUint32,
				low:     math.MaxUint32,
				high:    math.MaxUint32,
			},
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "100000,700000,0",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "100000,700000,0,1,2,3,extra",
			wantErr: true,
		},
		{
			name:    "invalid - negative count",
			line:    "100000,-1,0,0,0,0",
			wantErr: true,
		},
		{
			name:    "invalid - count overflows uint32",
			line:    "4294967296,0,0,0,0,0",
			wantErr: true,
		},
		{
			name:    "invalid - non numeric input",
			line:    "100000,1,0,hot,0,0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerial_Accumulate(t *testing.T) {
	d := New("/dev/null", 0)

	d.accumulate(line{elapsed: 100000, low: 1000, inputs: Inputs{Temperature: 40}})
	d.accumulate(line{elapsed: 100000, low: 2000, inputs: Inputs{Temperature: 41}})

	s := d.Sample()
	assert.Equal(t, uint32(200000), s.ElapsedMicros)
	assert.Equal(t, uint32(3000), s.PulseLow)
	assert.Equal(t, uint32(0), s.PulseHigh)
	assert.Equal(t, float64(41), d.Inputs().Temperature, "inputs track the latest line")
}

func TestSerial_AccumulateCarriesOverflow(t *testing.T) {
	d := New("/dev/null", 0)

	d.accumulate(line{elapsed: 10, low: math.MaxUint32 - 5})
	d.accumulate(line{elapsed: 10, low: 10})

	s := d.Sample()
	assert.Equal(t, uint32(4), s.PulseLow)
	assert.Equal(t, uint32(1), s.PulseHigh)
}

func TestSerial_CaptureResets(t *testing.T) {
	d := New("/dev/null", 0)
	d.accumulate(line{elapsed: 500000, low: 3500000})

	s := d.Capture()
	assert.Equal(t, uint32(3500000), s.PulseLow)
	assert.Equal(t, RawSample{}, d.Sample())
}

func TestSerial_ReadLines(t *testing.T) {
	d := New("/dev/null", 0)

	input := strings.Join([]string{
		"100000,700000,0,45000,500,860000",
		"garbage",
		"",
		"100000,700000,0,46000,500,860000",
	}, "\n")

	d.readLines(strings.NewReader(input))

	s := d.Sample()
	assert.Equal(t, uint32(200000), s.ElapsedMicros)
	assert.Equal(t, uint32(1400000), s.PulseLow)
	assert.Equal(t, float64(46), d.Inputs().Temperature)
}

func TestSerial_NotConnected(t *testing.T) {
	d := New("/dev/null", 0)
	assert.False(t, d.IsConnected())
	assert.Error(t, d.SetRelay(true))
	assert.NoError(t, d.Close())
}
