//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"runtime/interrupt"
	"time"
)

var (
	adcTemp    machine.ADC
	adcRP      machine.ADC
	adcDensity machine.ADC
	uart       = machine.UART0

	// Pulse counter, written by the pin interrupt
	pulseLow  uint32
	pulseHigh uint32

	// Analog averaging - running sums and counts
	tempSum    uint32
	rpSum      uint32
	densitySum uint32
	adcCount   uint32

	// Timing
	windowStart time.Time
	lastADCRead time.Time

	// Serial buffer for relay commands
	serialBuffer [4]byte
	serialPos    int
)

func main() {
	PIN_RELAY.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_RELAY.Low()

	PIN_COUNTER.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	PIN_COUNTER.SetInterrupt(machine.PinRising, func(machine.Pin) {
		pulseLow++
		if pulseLow == 0 {
			pulseHigh++
		}
	})

	PIN_TEMP_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_RP_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_DENSITY_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcTemp = machine.ADC{Pin: PIN_TEMP_ADC}
	adcRP = machine.ADC{Pin: PIN_RP_ADC}
	adcDensity = machine.ADC{Pin: PIN_DENSITY_ADC}

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	adcTemp.Configure(adcConfig)
	adcRP.Configure(adcConfig)
	adcDensity.Configure(adcConfig)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	windowStart = time.Now()
	lastADCRead = windowStart

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastADCRead) >= SAMPLE_INTERVAL_MS*time.Millisecond && adcCount < NUM_SAMPLES {
			readInputs()
			lastADCRead = now
		}

		if elapsed := now.Sub(windowStart); elapsed >= WINDOW_MS*time.Millisecond {
			outputWindow(elapsed)
			windowStart = now
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// readInputs samples the analog inputs. machine.ADC.Get returns a 16-bit
// value regardless of resolution.
func readInputs() {
	tempSum += uint32(adcTemp.Get() >> 4)
	rpSum += uint32(adcRP.Get() >> 4)
	densitySum += uint32(adcDensity.Get() >> 4)
	adcCount++
}

// takeCounts reads and clears the pulse counter with the interrupt masked.
func takeCounts() (low, high uint32) {
	state := interrupt.Disable()
	low, high = pulseLow, pulseHigh
	pulseLow, pulseHigh = 0, 0
	interrupt.Restore(state)
	return low, high
}

func outputWindow(elapsed time.Duration) {
	low, high := takeCounts()

	n := adcCount
	if n == 0 {
		n = 1
	}
	tempRaw := int32(tempSum / n)
	rpRaw := int32(rpSum / n)
	densityMV := int32(densitySum/n) * ADC_REFERENCE_MV / ADC_FULL_SCALE

	tempSum, rpSum, densitySum, adcCount = 0, 0, 0, 0

	print(uint32(elapsed.Microseconds()))
	print(",")
	print(low)
	print(",")
	print(high)
	print(",")
	print(scale(tempRaw, 0, ADC_FULL_SCALE, TEMP_MILLI_LO, TEMP_MILLI_HI))
	print(",")
	print(scale(rpRaw, 0, ADC_FULL_SCALE, RP_MILLI_LO, RP_MILLI_HI))
	print(",")
	print(scale(densityMV, DENS_MV_LO, DENS_MV_HI, DENS_MILLI_LO, DENS_MILLI_HI))
	print("\n")
}

// scale maps v from [inLo, inHi] onto [outLo, outHi] without clamping.
func scale(v, inLo, inHi, outLo, outHi int32) int32 {
	return outLo + int32(int64(v-inLo)*int64(outHi-outLo)/int64(inHi-inLo))
}

// processSerial handles relay commands "R1" and "R0".
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 2 && serialBuffer[0] == 'R' {
				setRelay(serialBuffer[1])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func setRelay(state byte) {
	switch state {
	case '1':
		PIN_RELAY.High()
	case '0':
		PIN_RELAY.Low()
	}
}
