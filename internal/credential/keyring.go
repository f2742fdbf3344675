// Package credential keeps mailbox passwords in the operating system
// keyring so they do not have to live in the config file.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	serviceName = "linkfeed"

	// BackendEnv forces a single keyring backend, e.g. "file" on headless
	// hosts without a secret service.
	BackendEnv = "LINKFEED_KEYRING_BACKEND"

	// FilePasswordEnv supplies the passphrase for the file backend.
	FilePasswordEnv = "LINKFEED_KEYRING_PASSWORD"
)

// ErrNotFound is returned when no password is stored for a mailbox.
var ErrNotFound = errors.New("credential not found")

var defaultBackends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.SecretServiceBackend,
	keyring.WinCredBackend,
	keyring.PassBackend,
	keyring.FileBackend,
}

// Vault stores mailbox passwords keyed by username.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Open opens the system keyring, honouring BackendEnv.
func Open() (*Vault, error) {
	backends := defaultBackends
	if name := os.Getenv(BackendEnv); name != "" {
		backends = []keyring.BackendType{keyring.BackendType(name)}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  "~/.config/linkfeed/credentials",
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewVault(ring), nil
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(FilePasswordEnv); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// MailboxKey returns the keyring key for a mailbox username.
func MailboxKey(username string) string {
	return "mailbox:" + username
}

// MailboxPassword returns the stored password for username.
func (v *Vault) MailboxPassword(username string) (string, error) {
	item, err := v.ring.Get(MailboxKey(username))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("mailbox %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading mailbox %q password: %w", username, err)
	}
	return string(item.Data), nil
}

// SetMailboxPassword stores or replaces the password for username.
func (v *Vault) SetMailboxPassword(username, password string) error {
	if username == "" {
		return errors.New("mailbox username is empty")
	}
	err := v.ring.Set(keyring.Item{
		Key:   MailboxKey(username),
		Data:  []byte(password),
		Label: "linkfeed mailbox " + username,
	})
	if err != nil {
		return fmt.Errorf("storing mailbox %q password: %w", username, err)
	}
	return nil
}

// DeleteMailboxPassword removes the password for username. Removing a
// password that was never stored is not an error.
func (v *Vault) DeleteMailboxPassword(username string) error {
	err := v.ring.Remove(MailboxKey(username))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing mailbox %q password: %w", username, err)
	}
	return nil
}
