package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

func TestLoadCredential(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, nil, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		env     string
		path    string
		want    string
		wantErr bool
	}{
		{name: "env wins", env: "from-env", path: tokenFile, want: "from-env"},
		{name: "file fallback", path: tokenFile, want: "from-file"},
		{name: "empty file", path: emptyFile, wantErr: true},
		{name: "missing file", path: filepath.Join(dir, "nope"), wantErr: true},
		{name: "nothing configured", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TWCC_TEST_TOKEN", tt.env)
			cred, err := LoadCredential(config.CredentialConfig{TokenEnv: "TWCC_TEST_TOKEN", TokenPath: tt.path})
			if tt.wantErr {
				if !errors.Is(err, twcc.ErrConfig) {
					t.Fatalf("LoadCredential() error = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCredential() error = %v", err)
			}
			if cred.Token != tt.want {
				t.Errorf("Token = %q, want %q", cred.Token, tt.want)
			}
		})
	}
}

func TestPassphrasePrompt_Env(t *testing.T) {
	t.Setenv("TWCC_TEST_PASS", "hunter2")
	p := NewPassphrasePrompt("TWCC_TEST_PASS")

	got, err := p.Passphrase()
	if err != nil || got != "hunter2" {
		t.Errorf("Passphrase() = %q, %v", got, err)
	}
	got, err = p.NewPassphrase()
	if err != nil || got != "hunter2" {
		t.Errorf("NewPassphrase() = %q, %v", got, err)
	}
}

func TestPassphrasePrompt_NoTerminal(t *testing.T) {
	t.Setenv("TWCC_TEST_PASS", "")
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p := &PassphrasePrompt{EnvVar: "TWCC_TEST_PASS", In: f, Out: os.Stderr}
	if _, err := p.Passphrase(); !errors.Is(err, errNoTerminal) {
		t.Errorf("Passphrase() error = %v, want errNoTerminal", err)
	}
}
