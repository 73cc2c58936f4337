package cipher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"facegate/internal/faceauth/cipher"
	"facegate/internal/faceauth/cipher/mocks"
	dErrors "facegate/pkg/domain-errors"
)

func TestEncryptKeyringFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	keyring := mocks.NewMockKeyring(ctrl)
	keyring.EXPECT().GenerateDataKey(gomock.Any()).Return(cipher.DataKey{}, errors.New("kms down"))

	c, err := cipher.New(keyring)
	require.NoError(t, err)

	_, err = c.Encrypt(context.Background(), []float32{1, 2, 3})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}

func TestEncryptZeroesPlainKey(t *testing.T) {
	ctrl := gomock.NewController(t)

	// Hand the cipher a data key we keep a reference to; after Encrypt the
	// plaintext half must be wiped.
	plain := make([]byte, 32)
	for i := range plain {
		plain[i] = byte(i + 1)
	}
	wrapped := []byte("wrapped-key-material")

	keyring := mocks.NewMockKeyring(ctrl)
	keyring.EXPECT().GenerateDataKey(gomock.Any()).Return(cipher.DataKey{Plain: plain, Wrapped: wrapped}, nil)

	c, err := cipher.New(keyring)
	require.NoError(t, err)

	_, err = c.Encrypt(context.Background(), []float32{0.25, -0.5})
	require.NoError(t, err)

	for i, b := range plain {
		assert.Zerof(t, b, "plain key byte %d not zeroed", i)
	}
}

func TestDecryptUnwrapFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	plain := make([]byte, 32)
	keyring := mocks.NewMockKeyring(ctrl)
	keyring.EXPECT().GenerateDataKey(gomock.Any()).Return(cipher.DataKey{
		Plain:   append([]byte(nil), plain...),
		Wrapped: []byte("wrapped"),
	}, nil)
	keyring.EXPECT().Unwrap(gomock.Any(), gomock.Any()).Return(nil, errors.New("denied"))

	c, err := cipher.New(keyring)
	require.NoError(t, err)

	blob, err := c.Encrypt(context.Background(), []float32{1})
	require.NoError(t, err)

	_, err = c.Decrypt(context.Background(), blob)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeIntegrity))
}
