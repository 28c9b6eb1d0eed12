// Package polyval implements the POLYVAL universal hash function over
// GF(2^128), defined by the irreducible polynomial
//
//	x^128 + x^127 + x^126 + x^121 + 1
//
// with field elements interpreted as little-endian 128-bit values.
//
// POLYVAL is not a general purpose streaming hash: the accumulator is keyed
// per block, so callers must feed whole logical fields, zero-padded to the
// 16 byte block size, exactly once each.
package polyval

import (
	"encoding/binary"
)

// BlockSize is the POLYVAL block size in bytes.
const BlockSize = 16

// polyMask is the low half of the reduction polynomial, used to fold the
// 256-bit product back into the field.
const polyMask = 0xc200000000000000

// fieldElement is a 128-bit field element as two little-endian 64-bit
// halves.
type fieldElement struct {
	lo, hi uint64
}

// Polyval is a POLYVAL accumulator.  The key is fixed at construction, the
// accumulator is reset between messages.
type Polyval struct {
	// Non-comparable, to prevent accidental variable time comparisons.
	_ [0]func()

	key fieldElement
	acc fieldElement
}

// New constructs a Polyval with the given key, which must be BlockSize
// bytes long.
func New(key []byte) *Polyval {
	return &Polyval{
		key: fieldElement{
			lo: binary.LittleEndian.Uint64(key[0:8]),
			hi: binary.LittleEndian.Uint64(key[8:16]),
		},
	}
}

// Reset zeroes the accumulator.  The key is untouched.
func (p *Polyval) Reset() {
	p.acc = fieldElement{}
}

// Update absorbs data into the accumulator in BlockSize chunks.  A final
// partial chunk is XORed into the leading accumulator bytes, which is
// equivalent to zero-padding it to a full block.
func (p *Polyval) Update(data []byte) {
	for len(data) >= BlockSize {
		p.acc.lo ^= binary.LittleEndian.Uint64(data[0:8])
		p.acc.hi ^= binary.LittleEndian.Uint64(data[8:16])
		p.mul()

		data = data[BlockSize:]
	}

	if len(data) > 0 {
		var block [BlockSize]byte
		copy(block[:], data)

		p.acc.lo ^= binary.LittleEndian.Uint64(block[0:8])
		p.acc.hi ^= binary.LittleEndian.Uint64(block[8:16])
		p.mul()
	}
}

// Sum writes the current accumulator value to dst, little-endian.  It does
// not alter the state, so the caller may keep absorbing afterwards.
func (p *Polyval) Sum(dst *[BlockSize]byte) {
	binary.LittleEndian.PutUint64(dst[0:8], p.acc.lo)
	binary.LittleEndian.PutUint64(dst[8:16], p.acc.hi)
}

// mul sets acc = acc * key, reduced modulo the field polynomial.
func (p *Polyval) mul() {
	// Schoolbook multiply: four 64x64 carry-less products combined into
	// a 256-bit intermediate held as two 128-bit halves.
	t0lo, t0hi := clmul(p.acc.lo, p.key.lo)
	m0lo, m0hi := clmul(p.acc.hi, p.key.lo)
	m1lo, m1hi := clmul(p.acc.lo, p.key.hi)
	t1lo, t1hi := clmul(p.acc.hi, p.key.hi)

	midLo := m0lo ^ m1lo
	midHi := m0hi ^ m1hi

	lo := fieldElement{lo: t0lo, hi: t0hi ^ midLo}
	hi := fieldElement{lo: t1lo ^ midHi, hi: t1hi}

	// Two folding rounds, each multiplying the low word by the reduction
	// constant and rotating the 32-bit lanes [a,b,c,d] -> [c,d,a,b].
	for i := 0; i < 2; i++ {
		flo, fhi := clmul(polyMask, lo.lo)
		rot := rotLanes(lo)

		lo = fieldElement{lo: flo ^ rot.lo, hi: fhi ^ rot.hi}
	}

	p.acc = fieldElement{lo: hi.lo ^ lo.lo, hi: hi.hi ^ lo.hi}
}

// rotLanes permutes the four 32-bit lanes of x: [a,b,c,d] -> [c,d,a,b].
// The lanes are extracted and reassembled explicitly rather than through a
// reinterpreting view of the element.
func rotLanes(x fieldElement) fieldElement {
	a := uint32(x.lo)
	b := uint32(x.lo >> 32)
	c := uint32(x.hi)
	d := uint32(x.hi >> 32)

	return fieldElement{
		lo: uint64(c) | uint64(d)<<32,
		hi: uint64(a) | uint64(b)<<32,
	}
}
