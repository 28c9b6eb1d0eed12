package polyval

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustDecodeHexString(s string) []byte {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestClMul(t *testing.T) {
	require := require.New(t)

	// Multiplication by the identity polynomial.
	lo, hi := clmul(0xdeadbeefcafebabe, 1)
	require.Equal(uint64(0xdeadbeefcafebabe), lo, "clmul(a, 1) lo")
	require.Equal(uint64(0), hi, "clmul(a, 1) hi")

	// Squaring in characteristic 2 spreads the bits:
	// (x^7 + ... + 1)^2 = x^14 + x^12 + ... + 1.
	lo, hi = clmul(0xff, 0xff)
	require.Equal(uint64(0x5555), lo, "clmul(0xff, 0xff) lo")
	require.Equal(uint64(0), hi, "clmul(0xff, 0xff) hi")

	// x^63 * x = x^64 lands in the high half.
	lo, hi = clmul(1<<63, 2)
	require.Equal(uint64(0), lo, "clmul(x^63, x) lo")
	require.Equal(uint64(1), hi, "clmul(x^63, x) hi")

	// Commutativity.
	alo, ahi := clmul(0x0123456789abcdef, 0xfedcba9876543210)
	blo, bhi := clmul(0xfedcba9876543210, 0x0123456789abcdef)
	require.Equal(alo, blo, "clmul commutes (lo)")
	require.Equal(ahi, bhi, "clmul commutes (hi)")
}

func TestPolyvalVector(t *testing.T) {
	// Worked POLYVAL example from RFC 8452, Appendix A.
	require := require.New(t)

	h := mustDecodeHexString("25629347589242761d31f826ba4b757b")
	x1 := mustDecodeHexString("4f4f95668c83dfb6401762bb2d01a262")
	x2 := mustDecodeHexString("d1a24ddd2721d006bbe45f20d3c9f362")
	expected := mustDecodeHexString("f7a3b47b846119fae5b7866cf5e5b77e")

	p := New(h)
	p.Update(x1)
	p.Update(x2)

	var sum [BlockSize]byte
	p.Sum(&sum)
	require.Equal(expected, sum[:], "POLYVAL(H, X_1, X_2)")

	// Absorbing both blocks in one call must not change the result.
	p.Reset()
	p.Update(append(append([]byte{}, x1...), x2...))
	p.Sum(&sum)
	require.Equal(expected, sum[:], "POLYVAL(H, X_1 || X_2)")
}

func TestPolyvalPartialBlock(t *testing.T) {
	require := require.New(t)

	key := mustDecodeHexString("d9b360279694941ac5dbc4987576abdf")
	msg := mustDecodeHexString("0102030405060708090a0b0c0d0e0f101112131415")

	// A short trailing chunk is implicitly zero-padded to a full block.
	p := New(key)
	p.Update(msg)
	var partial [BlockSize]byte
	p.Sum(&partial)

	padded := make([]byte, 2*BlockSize)
	copy(padded, msg)
	p.Reset()
	p.Update(padded)
	var full [BlockSize]byte
	p.Sum(&full)

	require.Equal(full, partial, "partial chunk equals zero-padded block")
}

func TestPolyvalReset(t *testing.T) {
	require := require.New(t)

	key := mustDecodeHexString("25629347589242761d31f826ba4b757b")
	msg := mustDecodeHexString("4f4f95668c83dfb6401762bb2d01a262")

	p := New(key)
	p.Update(msg)
	var first [BlockSize]byte
	p.Sum(&first)

	p.Update(msg)
	p.Reset()
	p.Update(msg)
	var second [BlockSize]byte
	p.Sum(&second)

	require.Equal(first, second, "Reset() restarts the accumulator")
}

func BenchmarkPolyval(b *testing.B) {
	key := mustDecodeHexString("25629347589242761d31f826ba4b757b")
	msg := make([]byte, 4096)
	for i := range msg {
		msg[i] = byte(255 & (i*197 + 123))
	}

	p := New(key)
	var sum [BlockSize]byte

	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Reset()
		p.Update(msg)
		p.Sum(&sum)
	}
}
