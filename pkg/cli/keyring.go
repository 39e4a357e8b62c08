package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName     = "com.uvolabs.owner-command"
	keyringPasswordService = "accountPassword"
	keyringDirectory       = "~/.uvo_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

// getKeyringPassword unlocks file-backed keyrings. It prefers the
// UVO_KEYRING_PASSWORD environment variable and falls back to an interactive
// prompt.
func (c *Config) getKeyringPassword(prompt string) (string, error) {
	if password := os.Getenv(EnvKeyringPass); password != "" {
		return password, nil
	}
	return promptForPassword(prompt)
}

func promptForPassword(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Backend)
}

func (c *Config) fullPasswordName() string {
	return keyringPasswordService + "." + c.AccountName
}

// LoadPasswordFromKeyring loads the account password from the system keyring.
//
// The account name must match the value provided to SavePasswordToKeyring.
func (c *Config) LoadPasswordFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}

	item, err := kr.Get(c.fullPasswordName())
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// SavePasswordToKeyring writes the account password to the system keyring.
//
// The account name identifies the password for future use with
// LoadPasswordFromKeyring and does not necessarily need to match the account
// email address.
func (c *Config) SavePasswordToKeyring(password string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}

	if err := kr.Set(keyring.Item{
		Key:  c.fullPasswordName(),
		Data: []byte(password),
	}); err != nil {
		return fmt.Errorf("failed to enroll password in keyring: %s", err)
	}
	return nil
}

// DeletePassword removes the account password from the system keyring.
func (c *Config) DeletePassword() error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(c.fullPasswordName())
}
