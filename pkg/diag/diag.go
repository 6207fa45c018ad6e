// Package diag holds the analyzer diagnostics bitmask. Bits are sticky:
// a bit stays set until the check that raised it passes again.
package diag

import (
	"strings"
	"sync/atomic"
)

// Bits is a set of diagnostic flags.
type Bits uint32

const (
	ErrFrqLo Bits = 1 << iota
	ErrFrqHi
	ErrTmpLo
	ErrTmpHi
	ErrDnsLo
	ErrDnsHi
	ErrAoSat
)

var names = []struct {
	bit  Bits
	name string
}{
	{ErrFrqLo, "ERR_FRQ_LO"},
	{ErrFrqHi, "ERR_FRQ_HI"},
	{ErrTmpLo, "ERR_TMP_LO"},
	{ErrTmpHi, "ERR_TMP_HI"},
	{ErrDnsLo, "ERR_DNS_LO"},
	{ErrDnsHi, "ERR_DNS_HI"},
	{ErrAoSat, "ERR_AO_SAT"},
}

// Has reports whether all bits in mask are set.
func (b Bits) Has(mask Bits) bool {
	return b&mask == mask
}

// Names returns the names of the set bits in ascending bit order.
func (b Bits) Names() []string {
	var out []string
	for _, n := range names {
		if b&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// Each calls fn for every defined bit in ascending order.
func (b Bits) Each(fn func(name string, set bool)) {
	for _, n := range names {
		fn(n.name, b&n.bit != 0)
	}
}

func (b Bits) String() string {
	if b == 0 {
		return "OK"
	}
	return strings.Join(b.Names(), "|")
}

// Word is a concurrency safe diagnostics register.
type Word struct {
	v atomic.Uint32
}

// Set raises the bits in mask.
func (w *Word) Set(mask Bits) {
	w.v.Or(uint32(mask))
}

// Clear lowers the bits in mask.
func (w *Word) Clear(mask Bits) {
	w.v.And(^uint32(mask))
}

// Load returns the current bits.
func (w *Word) Load() Bits {
	return Bits(w.v.Load())
}

// Reset clears every bit.
func (w *Word) Reset() {
	w.v.Store(0)
}
