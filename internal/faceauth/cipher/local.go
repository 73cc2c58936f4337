package cipher

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"facegate/pkg/platform/sentinel"
)

// LocalKeyring wraps data keys with a locally held AES-256 master key. It is
// a stand-in for a managed KMS in development and tests; the envelope format
// it produces is the same either way.
type LocalKeyring struct {
	masterKey []byte
	keyID     string
}

// NewLocalKeyring builds a keyring from a 32-byte master key.
func NewLocalKeyring(masterKey []byte) (*LocalKeyring, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	sum := sha256.Sum256(masterKey)
	return &LocalKeyring{
		masterKey: append([]byte(nil), masterKey...),
		keyID:     "local/" + hex.EncodeToString(sum[:8]),
	}, nil
}

// GenerateDataKey mints a fresh 32-byte data key and returns it alongside
// its wrapped form.
func (k *LocalKeyring) GenerateDataKey(ctx context.Context) (DataKey, error) {
	plain := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, plain); err != nil {
		return DataKey{}, fmt.Errorf("generate data key: %w", err)
	}
	wrapped, err := k.seal(plain)
	if err != nil {
		return DataKey{}, err
	}
	return DataKey{Plain: plain, Wrapped: wrapped}, nil
}

// Unwrap recovers the plaintext data key from its wrapped form.
func (k *LocalKeyring) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.masterKey)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	if len(wrapped) < aead.NonceSize() {
		return nil, fmt.Errorf("wrapped key too short: %w", sentinel.ErrInvalidState)
	}
	nonce, ct := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	return plain, nil
}

// KeyID identifies the local wrapping key.
func (k *LocalKeyring) KeyID() string { return k.keyID }

func (k *LocalKeyring) seal(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.masterKey)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce random: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plain, nil)...), nil
}
