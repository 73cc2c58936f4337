package cipher

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "facegate/pkg/domain-errors"
)

type CipherSuite struct {
	suite.Suite
	keyring *LocalKeyring
	cipher  *Cipher
	ctx     context.Context
}

func TestCipherSuite(t *testing.T) {
	suite.Run(t, new(CipherSuite))
}

func (s *CipherSuite) SetupTest() {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	s.Require().NoError(err)

	s.keyring, err = NewLocalKeyring(master)
	s.Require().NoError(err)

	s.cipher, err = New(s.keyring)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *CipherSuite) TestNew() {
	s.Run("nil keyring returns error", func() {
		_, err := New(nil)
		s.Error(err)
	})
}

func (s *CipherSuite) TestRoundTrip() {
	s.Run("512-dim vector survives encrypt/decrypt", func() {
		vec := testVector(512)
		blob, err := s.cipher.Encrypt(s.ctx, vec)
		s.Require().NoError(err)

		got, err := s.cipher.Decrypt(s.ctx, blob)
		s.Require().NoError(err)
		s.Require().Len(got, len(vec))
		for i := range vec {
			s.InDelta(vec[i], got[i], 1e-6)
		}
	})

	s.Run("128-dim vector survives encrypt/decrypt", func() {
		vec := testVector(128)
		blob, err := s.cipher.Encrypt(s.ctx, vec)
		s.Require().NoError(err)

		got, err := s.cipher.Decrypt(s.ctx, blob)
		s.Require().NoError(err)
		s.Equal(vec, got)
	})

	s.Run("each encryption uses a fresh envelope", func() {
		vec := testVector(128)
		a, err := s.cipher.Encrypt(s.ctx, vec)
		s.Require().NoError(err)
		b, err := s.cipher.Encrypt(s.ctx, vec)
		s.Require().NoError(err)
		s.False(bytes.Equal(a, b))
	})
}

func (s *CipherSuite) TestTamperEvidence() {
	vec := testVector(512)
	blob, err := s.cipher.Encrypt(s.ctx, vec)
	s.Require().NoError(err)

	// Flip one bit at positions spread across the envelope: length prefix,
	// wrapped key, nonce, tag and ciphertext must all be covered.
	positions := []int{0, 3, 4, 10, len(blob) / 2, len(blob) - 1}
	for _, pos := range positions {
		tampered := append([]byte(nil), blob...)
		tampered[pos] ^= 0x01

		got, err := s.cipher.Decrypt(s.ctx, tampered)
		s.Require().Errorf(err, "bit flip at %d must not decrypt", pos)
		s.True(dErrors.Is(err, dErrors.CodeIntegrity), "bit flip at %d: got %v", pos, err)
		s.Nil(got)
	}
}

func (s *CipherSuite) TestMalformedBlobs() {
	for _, blob := range [][]byte{nil, {}, {0x01}, {0, 0, 0, 200, 1, 2, 3}} {
		_, err := s.cipher.Decrypt(s.ctx, blob)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeIntegrity))
	}
}

func (s *CipherSuite) TestDecryptWithWrongKeyring() {
	vec := testVector(128)
	blob, err := s.cipher.Encrypt(s.ctx, vec)
	s.Require().NoError(err)

	other := make([]byte, 32)
	_, err = rand.Read(other)
	s.Require().NoError(err)
	otherKeyring, err := NewLocalKeyring(other)
	s.Require().NoError(err)
	otherCipher, err := New(otherKeyring)
	s.Require().NoError(err)

	_, err = otherCipher.Decrypt(s.ctx, blob)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeIntegrity))
}

func testVector(n int) []float32 {
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = float32(i%7) - 3.5
	}
	return vec
}
