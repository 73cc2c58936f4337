// Package cipher envelope-encrypts embedding vectors. Each blob carries its
// own wrapped data key so decryption only needs the external keyring.
package cipher

import (
	"context"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	dErrors "facegate/pkg/domain-errors"
)

const (
	nonceSize = 12 // 96-bit GCM nonce
	tagSize   = 16
)

// Cipher envelope-encrypts fixed-length float32 vectors.
//
// Wire format, length-prefixed concatenation:
//
//	[u32 wrappedKeyLen][wrappedKey][12-byte nonce][16-byte tag][ciphertext]
//
// Vector components are serialized little-endian. Plaintext vectors and key
// material are never logged.
type Cipher struct {
	keyring Keyring
}

// New constructs a Cipher over the given keyring.
func New(keyring Keyring) (*Cipher, error) {
	if keyring == nil {
		return nil, errors.New("keyring is required")
	}
	return &Cipher{keyring: keyring}, nil
}

// KeyID reports the wrapping key protecting blobs produced by this cipher.
func (c *Cipher) KeyID() string { return c.keyring.KeyID() }

// Encrypt requests a fresh data key, GCM-encrypts the vector bytes and
// serializes the envelope. The plaintext data key is zeroed before return.
func (c *Cipher) Encrypt(ctx context.Context, vec []float32) ([]byte, error) {
	dk, err := c.keyring.GenerateDataKey(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "generate data key")
	}
	defer zero(dk.Plain)

	aead, err := newAEAD(dk.Plain)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "init cipher")
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}

	sealed := aead.Seal(nil, nonce, vectorBytes(vec), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, 4+len(dk.Wrapped)+nonceSize+tagSize+len(ct))
	blob = binary.BigEndian.AppendUint32(blob, uint32(len(dk.Wrapped)))
	blob = append(blob, dk.Wrapped...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return blob, nil
}

// Decrypt reverses Encrypt. A malformed blob or authentication failure yields
// an integrity error; partially decrypted data is never returned.
func (c *Cipher) Decrypt(ctx context.Context, blob []byte) ([]float32, error) {
	wrapped, nonce, tag, ct, err := splitBlob(blob)
	if err != nil {
		return nil, err
	}

	plain, err := c.keyring.Unwrap(ctx, wrapped)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "unwrap data key")
	}
	defer zero(plain)

	aead, err := newAEAD(plain)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "init cipher")
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	raw, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "authentication failed")
	}
	if len(raw)%4 != 0 {
		return nil, dErrors.New(dErrors.CodeIntegrity, "decrypted payload is not a float32 vector")
	}

	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

func splitBlob(blob []byte) (wrapped, nonce, tag, ct []byte, err error) {
	if len(blob) < 4 {
		return nil, nil, nil, nil, dErrors.New(dErrors.CodeIntegrity, "blob too short")
	}
	wl := int(binary.BigEndian.Uint32(blob))
	rest := blob[4:]
	if wl <= 0 || len(rest) < wl+nonceSize+tagSize {
		return nil, nil, nil, nil, dErrors.New(dErrors.CodeIntegrity, "malformed blob")
	}
	wrapped = rest[:wl]
	nonce = rest[wl : wl+nonceSize]
	tag = rest[wl+nonceSize : wl+nonceSize+tagSize]
	ct = rest[wl+nonceSize+tagSize:]
	return wrapped, nonce, tag, ct, nil
}

func newAEAD(key []byte) (gocipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return gocipher.NewGCM(block)
}

func vectorBytes(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
