// Package seqnum implements the wrapping 32-bit sequence number space used
// by TCP, and the arithmetic needed to recover an unambiguous 64-bit
// absolute index from a 32-bit wire value and a nearby checkpoint.
package seqnum

import "fmt"

// Wrap32 is a point in TCP's modular 32-bit sequence space, anchored to a
// per-connection zero point (the ISN).
type Wrap32 struct {
	raw uint32
}

// Wrap32FromRaw constructs a Wrap32 directly from its wire-level 32-bit
// value, with no reference to any zero point. Used when decoding a segment
// header off the wire.
func Wrap32FromRaw(raw uint32) Wrap32 {
	return Wrap32{raw: raw}
}

// Raw returns the wire-level 32-bit value.
func (w Wrap32) Raw() uint32 {
	return w.raw
}

// Wrap maps an absolute 64-bit index n to its wire representation relative
// to zeroPoint, wrapping modulo 2^32.
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return Wrap32{raw: zeroPoint.raw + uint32(n)}
}

// Unwrap returns the unique absolute 64-bit index v such that
// Wrap(v, zeroPoint) == w and |v - checkpoint| is minimized. Ties (the two
// candidates are exactly 2^31 apart) resolve to the smaller v. The result
// never underflows below zero: if the nearest candidate would be negative,
// the next-higher representative is returned instead.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	const wrapSize uint64 = 1 << 32

	offset := uint64(w.raw - zeroPoint.raw)

	// Candidate in the same 2^32 "epoch" as checkpoint's high bits, plus offset.
	candidate := (checkpoint &^ (wrapSize - 1)) | offset

	if candidate < checkpoint && checkpoint-candidate > wrapSize/2 {
		candidate += wrapSize
	} else if candidate > checkpoint && candidate-checkpoint >= wrapSize/2 {
		if candidate >= wrapSize {
			candidate -= wrapSize
		}
	}
	return candidate
}

func (w Wrap32) String() string {
	return fmt.Sprintf("%08x", w.raw)
}

// Equal reports whether two Wrap32 values carry the same wire value.
func (w Wrap32) Equal(o Wrap32) bool {
	return w.raw == o.raw
}

// Add returns a Wrap32 offset by delta (wrapping), useful for advancing a
// seqno by a segment's sequence_length without round-tripping through
// absolute indices.
func (w Wrap32) Add(delta uint32) Wrap32 {
	return Wrap32{raw: w.raw + delta}
}
