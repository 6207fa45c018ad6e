//go:build tinygo

package main

import "machine"

const (
	// Capture configuration
	WINDOW_MS          = 100 // capture window reported per line
	SAMPLE_INTERVAL_MS = 5   // analog input read interval
	NUM_SAMPLES        = 20  // analog samples averaged per line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	ADC_FULL_SCALE   = 4095

	// Analog input scaling, milli units at 0 and full scale.
	// Temperature transmitter: 0-3.3 V maps -50..150 C.
	TEMP_MILLI_LO = -50000
	TEMP_MILLI_HI = 150000
	// Reflected power detector: 0-3.3 V maps 0..1.
	RP_MILLI_LO = 0
	RP_MILLI_HI = 1000
	// Density loop through a 165 ohm shunt: 4-20 mA maps 0..1000 in the density unit.
	// 4 mA reads 0.66 V, 20 mA reads 3.3 V.
	DENS_MV_LO    = 660
	DENS_MV_HI    = 3300
	DENS_MILLI_LO = 0
	DENS_MILLI_HI = 1000000

	// Counter input, fed by the oscillator through the external prescaler
	PIN_COUNTER = machine.D2

	// Relay output
	PIN_RELAY = machine.D7

	// ADC pins
	PIN_TEMP_ADC    = machine.A0
	PIN_RP_ADC      = machine.A1
	PIN_DENSITY_ADC = machine.A3

	// Serial configuration
	// Line format: "elapsed_us,pulse_lo,pulse_hi,temp_milli_c,rp_milli,density_milli\n"
	// Example: "100000,70000,0,45250,500,860000\n" = ~40 bytes max per line
	// 10 lines/sec * 40 bytes = 400 bytes/sec, 4,000 baud minimum at 8N1.
	UART_BAUD_RATE = 115200
)
