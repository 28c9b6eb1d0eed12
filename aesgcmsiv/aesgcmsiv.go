// Package aesgcmsiv implements the AES-GCM-SIV nonce misuse-resistant AEAD
// construction from RFC 8452, operating in place over a caller-owned buffer
// laid out as message || tag.
//
// An AEAD instance binds one (key, nonce) pair and mutates internal hash
// state during Encrypt and Decrypt, so it must not be used from multiple
// goroutines without external synchronization.  Independent instances share
// no state and may run in parallel.
package aesgcmsiv

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"

	aes "gitlab.com/yawning/bsaes.git"

	"github.com/sunziping2016/crypto/internal/polyval"
)

const (
	// KeySize128 is the key size in bytes when AES-128 is the underlying
	// block cipher.
	KeySize128 = 16

	// KeySize256 is the key size in bytes when AES-256 is the underlying
	// block cipher.
	KeySize256 = 32

	// BlockSize is the block size of the underlying block cipher in
	// bytes.
	BlockSize = 16

	// NonceSize is the nonce size in bytes.
	NonceSize = 12

	// TagSize is the authentication tag size in bytes.
	TagSize = 16

	// MaxPlaintextSize is the maximum plaintext length in bytes.
	MaxPlaintextSize = 1 << 36

	// MaxAADSize is the maximum associated data length in bytes.
	MaxAADSize = 1 << 36

	// MaxCiphertextSize is the maximum length in bytes of a buffer
	// holding ciphertext || tag.
	MaxCiphertextSize = MaxPlaintextSize + TagSize
)

var (
	// ErrInvalidKeySize is the error returned when the key is not
	// KeySize128 or KeySize256 bytes long.  The construction is defined
	// only for 128 and 256 bit keys; AES-192 keys are rejected.
	ErrInvalidKeySize = errors.New("aesgcmsiv: invalid key size")

	// ErrInvalidNonceSize is the error returned when the nonce is not
	// NonceSize bytes long.
	ErrInvalidNonceSize = errors.New("aesgcmsiv: invalid nonce size")

	// ErrBufferTooSmall is the error returned when the buffer cannot
	// hold the authentication tag.
	ErrBufferTooSmall = errors.New("aesgcmsiv: buffer smaller than tag")

	// ErrMessageTooLarge is the error returned when the buffer exceeds
	// MaxCiphertextSize.
	ErrMessageTooLarge = errors.New("aesgcmsiv: message too large")

	// ErrAADTooLarge is the error returned when the associated data
	// exceeds MaxAADSize.
	ErrAADTooLarge = errors.New("aesgcmsiv: associated data too large")
)

// AEAD is an AES-GCM-SIV instance bound to one (key, nonce) pair.  The
// message-authentication and message-encryption keys are derived once at
// construction.
type AEAD struct {
	block cipher.Block
	pv    *polyval.Polyval
	nonce [NonceSize]byte
}

// New derives the per-(key, nonce) message-authentication and
// message-encryption keys and returns an AEAD bound to them.  The key must
// be KeySize128 or KeySize256 bytes long, the nonce NonceSize bytes.
func New(key, nonce []byte) (*AEAD, error) {
	switch len(key) {
	case KeySize128, KeySize256:
	default:
		return nil, ErrInvalidKeySize
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}

	kdf, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	var counter, out [BlockSize]byte
	copy(counter[4:], nonce)

	// Each derivation block contributes its first 8 bytes: two chunks of
	// message-authentication key, then the message-encryption key.
	derived := make([]byte, TagSize+len(key))
	for i := 0; i < len(derived)/8; i++ {
		binary.LittleEndian.PutUint32(counter[:4], uint32(i))
		kdf.Encrypt(out[:], counter[:])
		copy(derived[i*8:], out[:8])
	}

	block, err := aes.NewCipher(derived[TagSize:])
	if err != nil {
		return nil, err
	}

	a := &AEAD{
		block: block,
		pv:    polyval.New(derived[:TagSize]),
	}
	copy(a.nonce[:], nonce)

	return a, nil
}

// Encrypt encrypts and authenticates buf = plaintext || tag-space in place,
// writing ciphertext over the plaintext and the tag over the trailing
// TagSize bytes.  aad is authenticated but not encrypted.
func (a *AEAD) Encrypt(aad, buf []byte) error {
	if err := checkSizes(aad, buf); err != nil {
		return err
	}

	plaintext := buf[:len(buf)-TagSize]
	tag := a.deriveTag(aad, plaintext)

	a.ctrXOR(&tag, plaintext)
	copy(buf[len(buf)-TagSize:], tag[:])

	return nil
}

// Decrypt decrypts and authenticates buf = ciphertext || tag in place and
// returns whether the tag matched.
//
// The counter-mode keystream is keyed by the claimed tag itself, so the
// ciphertext is necessarily decrypted before the tag can be verified.  On
// a tag mismatch the plaintext region of buf is zeroed rather than left
// holding unauthenticated bytes; use DecryptChecked to keep the ciphertext
// intact on failure.
func (a *AEAD) Decrypt(aad, buf []byte) (bool, error) {
	if err := checkSizes(aad, buf); err != nil {
		return false, err
	}

	ciphertext := buf[:len(buf)-TagSize]
	var claimed [TagSize]byte
	copy(claimed[:], buf[len(buf)-TagSize:])

	a.ctrXOR(&claimed, ciphertext)

	expected := a.deriveTag(aad, ciphertext)
	if subtle.ConstantTimeCompare(claimed[:], expected[:]) != 1 {
		// Do not release unauthenticated plaintext.
		for i := range ciphertext {
			ciphertext[i] = 0
		}
		return false, nil
	}

	return true, nil
}

// DecryptChecked is like Decrypt, but decrypts into a scratch buffer and
// copies the plaintext into buf only when the tag verifies.  On failure buf
// still holds the original ciphertext || tag.
func (a *AEAD) DecryptChecked(aad, buf []byte) (bool, error) {
	if err := checkSizes(aad, buf); err != nil {
		return false, err
	}

	ciphertext := buf[:len(buf)-TagSize]
	var claimed [TagSize]byte
	copy(claimed[:], buf[len(buf)-TagSize:])

	scratch := make([]byte, len(ciphertext))
	copy(scratch, ciphertext)
	a.ctrXOR(&claimed, scratch)

	expected := a.deriveTag(aad, scratch)
	if subtle.ConstantTimeCompare(claimed[:], expected[:]) != 1 {
		return false, nil
	}

	copy(ciphertext, scratch)

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

// deriveTag computes the synthetic per-message tag over aad, the plaintext
// and the bit-length trailer, masked with the nonce and encrypted under the
// message-encryption key.
func (a *AEAD) deriveTag(aad, plaintext []byte) [TagSize]byte {
	a.pv.Reset()
	a.pv.Update(aad)
	a.pv.Update(plaintext)

	var lengths [BlockSize]byte
	binary.LittleEndian.PutUint64(lengths[0:8], uint64(len(aad))*8)
	binary.LittleEndian.PutUint64(lengths[8:16], uint64(len(plaintext))*8)
	a.pv.Update(lengths[:])

	var tag [TagSize]byte
	a.pv.Sum(&tag)
	for i := 0; i < NonceSize; i++ {
		tag[i] ^= a.nonce[i]
	}
	tag[TagSize-1] &= 0x7f

	a.block.Encrypt(tag[:], tag[:])

	return tag
}

// ctrXOR XORs the counter-mode keystream into data in place.  The initial
// counter block is the tag with its top bit forced to 1; the low 32 bits
// increment little-endian, wrapping, once per block.
func (a *AEAD) ctrXOR(tag *[TagSize]byte, data []byte) {
	var counter, keystream [BlockSize]byte
	copy(counter[:], tag[:])
	counter[BlockSize-1] |= 0x80

	for len(data) > 0 {
		a.block.Encrypt(keystream[:], counter[:])
		binary.LittleEndian.PutUint32(counter[:4], binary.LittleEndian.Uint32(counter[:4])+1)

		n := subtle.XORBytes(data, data, keystream[:])
		data = data[n:]
	}
}

func checkSizes(aad, buf []byte) error {
	if len(buf) < TagSize {
		return ErrBufferTooSmall
	}
	if uint64(len(buf)) > MaxCiphertextSize {
		return ErrMessageTooLarge
	}
	if uint64(len(aad)) > MaxAADSize {
		return ErrAADTooLarge
	}
	return nil
}
