package twcc

import (
	"fmt"
	"io"
)

// Encryptor handles the age key pair used to encrypt snapshots at rest.
// Encryption uses the public key only; decryption requires unlocking the
// private key with a passphrase.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext, and
	// encrypts the private key with the passphrase. Called by `twcc keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext for
	// the rest of the run.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one run.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Cipher seals and opens snapshot bytes. The snapshot store uses it
// without knowing whether encryption is enabled.
type Cipher interface {
	Seal(r io.Reader, w io.Writer) error
	Open(r io.Reader, w io.Writer) error
	// Suffix is appended to snapshot keys written through this cipher.
	Suffix() string
}

// PlainCipher stores snapshots unencrypted.
type PlainCipher struct{}

func (PlainCipher) Seal(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (PlainCipher) Open(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (PlainCipher) Suffix() string { return "" }

// AgeCipher seals with an Encryptor and opens with an unlocked
// DecryptionContext. Open fails when no private key was unlocked.
type AgeCipher struct {
	Encryptor Encryptor
	Context   DecryptionContext
}

func (c *AgeCipher) Seal(r io.Reader, w io.Writer) error { return c.Encryptor.Encrypt(r, w) }

func (c *AgeCipher) Open(r io.Reader, w io.Writer) error {
	if c.Context == nil {
		return fmt.Errorf("%w: no private key was provided", ErrKeyUnlock)
	}
	return c.Context.Decrypt(r, w)
}

func (c *AgeCipher) Suffix() string { return ".age" }
