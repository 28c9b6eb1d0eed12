// Package chacha20poly1305 implements the ChaCha20-Poly1305 AEAD
// construction from RFC 8439, operating in place over a caller-owned buffer
// laid out as message || tag.
//
// An AEAD instance binds one (key, nonce) pair.  The one-time Poly1305 key
// is derived once from the counter-0 keystream block and held as a template;
// every Encrypt and Decrypt call constructs a fresh accumulator from it, so
// calls are deterministic and the one-time key is never shared between two
// running computations.  An instance must not be used from multiple
// goroutines without external synchronization; independent instances may
// run in parallel.
package chacha20poly1305

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

const (
	// KeySize is the key size in bytes.
	KeySize = chacha20.KeySize

	// BlockSize is the stream cipher block size in bytes.
	BlockSize = 64

	// NonceSize is the nonce size in bytes.
	NonceSize = chacha20.NonceSize

	// TagSize is the authentication tag size in bytes.
	TagSize = poly1305.TagSize

	// MaxPlaintextSize is the maximum plaintext length in bytes: the
	// keystream spans at most 2^32 - 1 blocks.
	MaxPlaintextSize = (1<<32 - 1) * BlockSize

	// MaxCiphertextSize is the maximum length in bytes of a buffer
	// holding ciphertext || tag.  Associated data is bounded only by the
	// platform's slice length ceiling.
	MaxCiphertextSize = MaxPlaintextSize + TagSize
)

var (
	// ErrInvalidKeySize is the error returned when the key is not
	// KeySize bytes long.
	ErrInvalidKeySize = errors.New("chacha20poly1305: invalid key size")

	// ErrInvalidNonceSize is the error returned when the nonce is not
	// NonceSize bytes long.
	ErrInvalidNonceSize = errors.New("chacha20poly1305: invalid nonce size")

	// ErrBufferTooSmall is the error returned when the buffer cannot
	// hold the authentication tag.
	ErrBufferTooSmall = errors.New("chacha20poly1305: buffer smaller than tag")

	// ErrMessageTooLarge is the error returned when the buffer exceeds
	// MaxCiphertextSize.
	ErrMessageTooLarge = errors.New("chacha20poly1305: message too large")
)

// Shared zero-filled padding source.  Poly1305 input is padded with up to
// 15 zero bytes after the associated data and again after the ciphertext.
var padding [16]byte

// AEAD is a ChaCha20-Poly1305 instance bound to one (key, nonce) pair.
type AEAD struct {
	key    [KeySize]byte
	nonce  [NonceSize]byte
	macKey [32]byte
}

// New returns an AEAD bound to the given key and nonce.  The key must be
// KeySize bytes long, the nonce NonceSize bytes.
func New(key, nonce []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}

	a := &AEAD{}
	copy(a.key[:], key)
	copy(a.nonce[:], nonce)

	// The one-time Poly1305 key is the first half of the counter-0
	// keystream block; the second half is discarded.
	s, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	var block [BlockSize]byte
	s.XORKeyStream(block[:], block[:])
	copy(a.macKey[:], block[:32])

	return a, nil
}

// Encrypt encrypts and authenticates buf = plaintext || tag-space in place,
// writing ciphertext over the plaintext and the tag over the trailing
// TagSize bytes.  aad is authenticated but not encrypted.
func (a *AEAD) Encrypt(aad, buf []byte) error {
	if len(buf) < TagSize {
		return ErrBufferTooSmall
	}
	if uint64(len(buf)) > MaxCiphertextSize {
		return ErrMessageTooLarge
	}

	plaintext := buf[:len(buf)-TagSize]

	s, err := a.newStream()
	if err != nil {
		return err
	}
	s.XORKeyStream(plaintext, plaintext)

	tag := a.computeTag(aad, plaintext)
	copy(buf[len(buf)-TagSize:], tag)

	return nil
}

// Decrypt authenticates and decrypts buf = ciphertext || tag in place and
// returns whether the tag matched.  The tag is always computed over the
// ciphertext; the buffer is decrypted, and therefore modified, only after
// the tag verifies.  On a mismatch buf is left untouched.
func (a *AEAD) Decrypt(aad, buf []byte) (bool, error) {
	if len(buf) < TagSize {
		return false, ErrBufferTooSmall
	}
	if uint64(len(buf)) > MaxCiphertextSize {
		return false, ErrMessageTooLarge
	}

	ciphertext := buf[:len(buf)-TagSize]

	tag := a.computeTag(aad, ciphertext)
	if subtle.ConstantTimeCompare(tag, buf[len(buf)-TagSize:]) != 1 {
		return false, nil
	}

	s, err := a.newStream()
	if err != nil {
		return false, err
	}
	s.XORKeyStream(ciphertext, ciphertext)

	return true, nil
}

// EncryptNoAAD is Encrypt with no associated data.
func (a *AEAD) EncryptNoAAD(buf []byte) error {
	return a.Encrypt(nil, buf)
}

// DecryptNoAAD is Decrypt with no associated data.
func (a *AEAD) DecryptNoAAD(buf []byte) (bool, error) {
	return a.Decrypt(nil, buf)
}

// newStream returns a cipher positioned at counter 1, where the message
// keystream starts.  Counter 0 produced the one-time MAC key.
func (a *AEAD) newStream() (*chacha20.Cipher, error) {
	s, err := chacha20.NewUnauthenticatedCipher(a.key[:], a.nonce[:])
	if err != nil {
		return nil, err
	}
	s.SetCounter(1)
	return s, nil
}

// computeTag MACs aad || pad || ciphertext || pad || le64(len(aad)) ||
// le64(len(ciphertext)) under a fresh one-time accumulator built from the
// key template.
func (a *AEAD) computeTag(aad, ciphertext []byte) []byte {
	mac := poly1305.New(&a.macKey)

	mac.Write(aad)
	writePadding(mac, len(aad))

	mac.Write(ciphertext)
	writePadding(mac, len(ciphertext))

	var lengths [16]byte
	binary.LittleEndian.PutUint64(lengths[0:8], uint64(len(aad)))
	binary.LittleEndian.PutUint64(lengths[8:16], uint64(len(ciphertext)))
	mac.Write(lengths[:])

	return mac.Sum(nil)
}

// writePadding pads a field of n bytes to the next 16 byte boundary.
// Aligned fields get no padding.
func writePadding(mac *poly1305.MAC, n int) {
	if rem := n % 16; rem != 0 {
		mac.Write(padding[:16-rem])
	}
}
