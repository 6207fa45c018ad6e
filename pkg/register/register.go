// Package register renders a measurement as a block of 16-bit holding
// registers holding IEEE-754 float32 values, high word first, the way
// process analyzers expose data to comms bridges.
package register

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/phase"
)

// Word offsets of each float32 value.
const (
	Watercut = iota * 2
	RawWatercut
	Frequency
	Temperature
	ReflectedPower
	Density
	DensityAdjustment
	AnalogOutput
	Diagnostics // bitmask, stored as an integer pair rather than a float
	Flags       // bit 0 oil phase, bit 1 alarm, bit 2 dual curve

	Size
)

const (
	FlagOil = 1 << iota
	FlagAlarm
	FlagDual
)

var ErrShortImage = errors.New("register image too short")

// Image is a register view of a measurement.
type Image []uint16

// Encode renders m into a new image. Failed values are encoded as NaN.
func Encode(m meter.Measurement) Image {
	img := make(Image, Size)
	img.putFloat(Watercut, float32(m.Watercut))
	img.putFloat(RawWatercut, float32(m.RawWatercut))
	img.putFloat(Frequency, float32(m.Frequency))
	img.putFloat(Temperature, float32(m.Temperature))
	img.putFloat(ReflectedPower, float32(m.ReflectedPower))
	img.putFloat(Density, float32(m.Density))
	img.putFloat(DensityAdjustment, float32(m.DensityAdjustment))
	img.putFloat(AnalogOutput, float32(m.AnalogDrive))
	img.putUint(Diagnostics, uint32(m.Diagnostics))

	var flags uint32
	if m.Phase == phase.Oil {
		flags |= FlagOil
	}
	if m.Alarm {
		flags |= FlagAlarm
	}
	if m.Dual {
		flags |= FlagDual
	}
	img.putUint(Flags, flags)

	return img
}

// Float returns the float32 at offset.
func (img Image) Float(offset int) (float32, error) {
	v, err := img.Uint(offset)
	if err != nil {
		return math32.NaN(), err
	}
	return math32.Float32frombits(v), nil
}

// Uint returns the 32-bit integer at offset.
func (img Image) Uint(offset int) (uint32, error) {
	if offset < 0 || offset+1 >= len(img) {
		return 0, fmt.Errorf("%w: offset %d, %d words", ErrShortImage, offset, len(img))
	}
	return uint32(img[offset])<<16 | uint32(img[offset+1]), nil
}

// Bytes returns the image as big-endian bytes.
func (img Image) Bytes() []byte {
	b := make([]byte, 2*len(img))
	for i, w := range img {
		b[2*i] = byte(w >> 8)
		b[2*i+1] = byte(w)
	}
	return b
}

// FromBytes parses big-endian bytes into an image.
func FromBytes(b []byte) (Image, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd register payload length %d", len(b))
	}
	img := make(Image, len(b)/2)
	for i := range img {
		img[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return img, nil
}

func (img Image) putFloat(offset int, v float32) {
	if math32.IsNaN(v) {
		v = math32.NaN()
	}
	img.putUint(offset, math32.Float32bits(v))
}

func (img Image) putUint(offset int, v uint32) {
	img[offset] = uint16(v >> 16)
	img[offset+1] = uint16(v)
}
