package encryption

import (
	"fmt"
	"io"
	"sync"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (twcc.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// NewSnapshotCipher returns the cipher snapshots are written with. When
// encryption is disabled this is twcc.PlainCipher. Otherwise the private key
// is unlocked on first decrypt, so passphrase is only consulted when an
// encrypted snapshot is actually read.
func NewSnapshotCipher(encrypt bool, enc twcc.Encryptor, passphrase func() (string, error)) (twcc.Cipher, error) {
	if !encrypt {
		return twcc.PlainCipher{}, nil
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("%w: snapshot encryption is enabled but no keys exist (run `twcc keys init`)", twcc.ErrConfig)
	}
	return &twcc.AgeCipher{
		Encryptor: enc,
		Context:   &lazyContext{enc: enc, passphrase: passphrase},
	}, nil
}

// lazyContext defers Unlock until the first Decrypt.
type lazyContext struct {
	enc        twcc.Encryptor
	passphrase func() (string, error)

	once sync.Once
	ctx  twcc.DecryptionContext
	err  error
}

func (l *lazyContext) unlock() {
	pass, err := l.passphrase()
	if err != nil {
		l.err = fmt.Errorf("reading passphrase: %w", err)
		return
	}
	l.ctx, l.err = l.enc.Unlock(pass)
}

func (l *lazyContext) Decrypt(r io.Reader, w io.Writer) error {
	l.once.Do(l.unlock)
	if l.err != nil {
		return fmt.Errorf("%w: %w", twcc.ErrKeyUnlock, l.err)
	}
	return l.ctx.Decrypt(r, w)
}
