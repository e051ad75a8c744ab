package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// LoadCredential reads the platform token. The environment variable wins
// over token_path. A missing token is a configuration error.
func LoadCredential(cfg config.CredentialConfig) (twcc.Credential, error) {
	if cfg.TokenEnv != "" {
		if tok := strings.TrimSpace(os.Getenv(cfg.TokenEnv)); tok != "" {
			return twcc.Credential{Token: tok}, nil
		}
	}
	if cfg.TokenPath != "" {
		data, err := os.ReadFile(cfg.TokenPath)
		if err != nil {
			return twcc.Credential{}, fmt.Errorf("%w: reading token file: %v", twcc.ErrConfig, err)
		}
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return twcc.Credential{Token: tok}, nil
		}
		return twcc.Credential{}, fmt.Errorf("%w: token file %s is empty", twcc.ErrConfig, cfg.TokenPath)
	}
	return twcc.Credential{}, fmt.Errorf("%w: no platform token (set %s or credential.token_path)", twcc.ErrConfig, cfg.TokenEnv)
}

// errNoTerminal is returned when a passphrase is needed but stdin is not a
// terminal and the environment variable is unset.
var errNoTerminal = errors.New("no passphrase: stdin is not a terminal")

// PassphrasePrompt reads passphrases from envVar or, failing that, from the
// terminal without echo.
type PassphrasePrompt struct {
	EnvVar string
	In     *os.File
	Out    io.Writer
}

// NewPassphrasePrompt prompts on stdin and stderr.
func NewPassphrasePrompt(envVar string) *PassphrasePrompt {
	return &PassphrasePrompt{EnvVar: envVar, In: os.Stdin, Out: os.Stderr}
}

func (p *PassphrasePrompt) read(prompt string) (string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(p.Out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// Passphrase returns the passphrase that unlocks the private key.
func (p *PassphrasePrompt) Passphrase() (string, error) {
	if p.EnvVar != "" {
		if v := os.Getenv(p.EnvVar); v != "" {
			return v, nil
		}
	}
	return p.read("Passphrase: ")
}

// NewPassphrase asks for a new passphrase twice and checks they match.
func (p *PassphrasePrompt) NewPassphrase() (string, error) {
	if p.EnvVar != "" {
		if v := os.Getenv(p.EnvVar); v != "" {
			return v, nil
		}
	}
	first, err := p.read("New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := p.read("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}
