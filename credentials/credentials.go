// Package credentials stores the secrets fathom-etl needs to reach its
// backends: database passwords and the webhook signing secret.
//
// Secrets live in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI and containers, each secret can be supplied through an environment
// variable instead, which takes precedence over the keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used in the system keyring.
const KeyringService = "fathom-etl"

// Secret names a stored secret.
type Secret string

// Known secrets.
const (
	PostgresPassword Secret = "postgres-password"
	RedisPassword    Secret = "redis-password"
	WebhookSecret    Secret = "webhook-secret"
)

// envOverrides maps each secret to the variable that overrides the keyring.
var envOverrides = map[Secret]string{
	PostgresPassword: "FATHOM_POSTGRES_PASSWORD",
	RedisPassword:    "FATHOM_REDIS_PASSWORD",
	WebhookSecret:    "FATHOM_WEBHOOK_SECRET",
}

var (
	// ErrNoSecret is returned when a secret is neither in the environment nor
	// in the keyring.
	ErrNoSecret = errors.New("secret not stored")

	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")

	// ErrUnknownSecret is returned for names outside the known set.
	ErrUnknownSecret = errors.New("unknown secret")
)

// ParseSecret validates a secret name from the command line.
func ParseSecret(name string) (Secret, error) {
	s := Secret(name)
	if _, ok := envOverrides[s]; !ok {
		return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownSecret, name, Names())
	}
	return s, nil
}

// Names lists the known secret names.
func Names() []string {
	names := make([]string, 0, len(envOverrides))
	for s := range envOverrides {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return names
}

// EnvVar returns the environment variable that overrides s.
func (s Secret) EnvVar() string {
	return envOverrides[s]
}

// Store reads and writes secrets.
type Store struct {
	service string
	getenv  func(string) string
}

// NewStore returns a Store backed by the system keyring.
func NewStore() *Store {
	return &Store{service: KeyringService, getenv: os.Getenv}
}

// Get returns the secret from its environment variable or the keyring.
func (s *Store) Get(name Secret) (string, error) {
	if v := s.getenv(name.EnvVar()); v != "" {
		return v, nil
	}
	v, err := keyring.Get(s.service, string(name))
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w: %s (set %s or run: fathom-etl secrets set %s)", ErrNoSecret, name, name.EnvVar(), name)
	default:
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
}

// Lookup is Get with a missing secret reported as "".
func (s *Store) Lookup(name Secret) (string, error) {
	v, err := s.Get(name)
	if errors.Is(err, ErrNoSecret) {
		return "", nil
	}
	return v, err
}

// Set stores the secret in the keyring.
func (s *Store) Set(name Secret, value string) error {
	if value == "" {
		return fmt.Errorf("secret %s must not be empty", name)
	}
	if err := keyring.Set(s.service, string(name), value); err != nil {
		return fmt.Errorf("%w: storing %s: %v", ErrKeyringUnavailable, name, err)
	}
	return nil
}

// Delete removes the secret from the keyring. Deleting a missing secret is
// not an error.
func (s *Store) Delete(name Secret) error {
	err := keyring.Delete(s.service, string(name))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting %s: %v", ErrKeyringUnavailable, name, err)
	}
	return nil
}

// Description names the keyring backend for the current platform.
func Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}
