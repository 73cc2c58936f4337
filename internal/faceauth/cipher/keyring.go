package cipher

import "context"

//go:generate mockgen -source=keyring.go -destination=mocks/keyring.go -package=mocks

// DataKey is an ephemeral envelope key pair: the plaintext key encrypts one
// embedding and is discarded immediately; the wrapped form travels with the
// ciphertext.
type DataKey struct {
	Plain   []byte
	Wrapped []byte
}

// Keyring is the external key-management boundary. The core owns no key
// material at rest; it only requests data keys and unwrapping.
type Keyring interface {
	GenerateDataKey(ctx context.Context) (DataKey, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
	// KeyID identifies the wrapping key so stored blobs can be traced to the
	// key that protects them.
	KeyID() string
}
