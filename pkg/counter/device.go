package counter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the firmware UART rate.
	DefaultBaudRate = 115200
)

// SerialPort describes an available serial port.
type SerialPort struct {
	Name        string
	Description string
}

// Serial is a counter connected to the capture firmware over a serial link.
// The firmware streams short capture windows which are accumulated here
// until the sampler resets the counter.
type Serial struct {
	port     string
	baudRate int

	conn      serial.Port
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	acc    RawSample
	inputs Inputs
}

// line is one parsed firmware record.
type line struct {
	elapsed uint32
	low     uint32
	high    uint32
	inputs  Inputs
}

// New creates a new Serial instance with the specified port and baud rate.
func New(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]SerialPort, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]SerialPort, 0, len(ports))
	for _, name := range ports {
		result = append(result, SerialPort{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading capture windows.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readLines(port)

	return nil
}

// Close closes the connection and stops reading.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Sample returns the counts accumulated since the last reset.
func (d *Serial) Sample() RawSample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.acc
}

// Reset zeroes the accumulated counts.
func (d *Serial) Reset() {
	d.mu.Lock()
	d.acc = RawSample{}
	d.mu.Unlock()
}

// Capture reads and resets the counter under one lock so no window is lost
// between the two.
func (d *Serial) Capture() RawSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.acc
	d.acc = RawSample{}
	return s
}

// Inputs returns the most recent process inputs.
func (d *Serial) Inputs() Inputs {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inputs
}

// SetRelay drives the relay output on the firmware.
func (d *Serial) SetRelay(on bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	cmd := "R0\n"
	if on {
		cmd = "R1\n"
	}

	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send relay command: %w", err)
	}

	return nil
}

func (d *Serial) readLines(r io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readLines: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}

			l, err := parseLine(text)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", text, err)
				continue
			}

			d.accumulate(l)
		}
	}
}

// accumulate adds a capture window to the running counter, carrying low
// word overflow into the high word.
func (d *Serial) accumulate(l line) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sum := d.acc.PulseLow + l.low
	if sum < d.acc.PulseLow {
		d.acc.PulseHigh++
	}
	d.acc.PulseLow = sum
	d.acc.PulseHigh += l.high

	if d.acc.ElapsedMicros > math.MaxUint32-l.elapsed {
		d.acc.ElapsedMicros = math.MaxUint32
	} else {
		d.acc.ElapsedMicros += l.elapsed
	}

	d.inputs = l.inputs
}

// parseLine parses one firmware record.
// Format: elapsed_us,pulse_lo,pulse_hi,temp_milli_c,rp_milli,density_milli
// Example: 100000,70000,0,45250,500,860000
func parseLine(text string) (line, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 6 {
		return line{}, fmt.Errorf("invalid line format: expected 6 comma-separated values, got %d", len(parts))
	}

	var counts [3]uint32
	for i, name := range []string{"elapsed", "pulse low", "pulse high"} {
		v, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return line{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		counts[i] = uint32(v)
	}

	var milli [3]float64
	for i, name := range []string{"temperature", "reflected power", "density"} {
		v, err := strconv.ParseInt(parts[3+i], 10, 64)
		if err != nil {
			return line{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		milli[i] = float64(v) / 1000
	}

	return line{
		elapsed: counts[0],
		low:     counts[1],
		high:    counts[2],
		inputs: Inputs{
			Temperature:    milli[0],
			ReflectedPower: milli[1],
			AnalogDensity:  milli[2],
		},
	}, nil
}
