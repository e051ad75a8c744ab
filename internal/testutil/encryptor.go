package testutil

import (
	"twcc/internal/encryption"
	"twcc/internal/twcc"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() twcc.Encryptor {
	return encryption.NewTestEncryptor()
}

// NewTestCipher returns an unlocked cipher backed by the test encryptor.
func NewTestCipher() twcc.Cipher {
	enc := encryption.NewTestEncryptor()
	return &twcc.AgeCipher{Encryptor: enc, Context: &encryption.TestDecryptionContext{}}
}
