package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/99designs/keyring"
)

// DefaultKeyringService is the service name entries are filed under.
const DefaultKeyringService = "deschool"

// KeyringStore keeps entries in the platform keyring, so session tokens
// never touch disk in clear text.
type KeyringStore struct {
	ring keyring.Keyring
}

// KeyringOptions selects the keyring backend.
type KeyringOptions struct {
	ServiceName string
	// FileDir enables the encrypted-file backend as a fallback for hosts
	// without a desktop keyring. FilePassword unlocks it.
	FileDir      string
	FilePassword string
	// Backends overrides the platform backend list.
	Backends []keyring.BackendType
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// OpenKeyringStore opens the platform-native keyring.
func OpenKeyringStore(opts KeyringOptions) (*KeyringStore, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultKeyringService
	}

	backends := opts.Backends
	if len(backends) == 0 {
		backends = PlatformKeyringBackends()
	}
	if opts.FileDir != "" && !hasBackend(backends, keyring.FileBackend) {
		backends = append(backends, keyring.FileBackend)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    opts.ServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
		KeychainSynchronizable:         false,
		FileDir:                        opts.FileDir,
		FilePasswordFunc:               keyring.FixedStringPrompt(opts.FilePassword),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

func (k *KeyringStore) Get(key string) (string, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return string(item.Data), true, nil
}

func (k *KeyringStore) Set(key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       "deschool " + key,
		Description: "deschool identity session entry",
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Remove(key string) error {
	err := k.ring.Remove(key)
	// The file backend reports a missing entry as a missing file.
	if err == nil || errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to remove %s from keyring: %w", key, err)
}

func hasBackend(backends []keyring.BackendType, b keyring.BackendType) bool {
	for _, have := range backends {
		if have == b {
			return true
		}
	}
	return false
}

// PlatformKeyringBackends returns the desktop keyring backends for the
// current platform.
func PlatformKeyringBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend}
	case "linux":
		return []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
		}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	default:
		return nil
	}
}
