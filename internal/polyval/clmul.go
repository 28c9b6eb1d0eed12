package polyval

// clmul returns the carry-less product of a and b as a 128-bit value
// split into 64-bit halves.
//
// The loop is branch-free: each candidate addend is selected with an
// arithmetic mask derived from the corresponding bit of b, so the
// execution trace is independent of either operand.
func clmul(a, b uint64) (lo, hi uint64) {
	for i := 0; i < 64; i++ {
		mask := -((b >> uint(i)) & 1)
		hi ^= a & mask

		// Shift the 128-bit accumulator right by one, lo acting as
		// the low half of the shift register.
		lo = lo>>1 | hi<<63
		hi >>= 1
	}

	return
}
