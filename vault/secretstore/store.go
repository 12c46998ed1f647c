// Package secretstore provides durable storage for small secret values such
// as the vault's symmetric key and the enrolled passphrase verifier.
package secretstore

import (
	"os"
	"sync"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
)

// DefaultServiceName is the fixed service identifier under which all vault
// secrets are stored.
const DefaultServiceName = "idvault"

// ErrNotFound is returned by Get when no item exists for the key.
var ErrNotFound = errors.New("secretstore: item not found")

// Store is a durable holder of secret values addressed by key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(key string, value []byte) error

	// Remove deletes the value stored under key. Removing a missing key is
	// not an error.
	Remove(key string) error
}

// Config contains settings for opening an OS-backed store.
type Config struct {
	ServiceName string
	// Backends restricts the keyring backends considered, in order. Empty
	// means every backend available on this platform.
	Backends []string
	// FileDir is the directory used by the encrypted file backend.
	FileDir string
	// FilePassword unlocks the encrypted file backend.
	FilePassword string
}

// KeyringStore is a Store backed by the platform credential store.
type KeyringStore struct {
	mu      sync.Mutex
	ring    keyring.Keyring
	service string
}

// Open opens the first usable keyring backend permitted by config. Keychain
// items are accessible only while the device is unlocked and are never
// synchronized off the device.
func Open(config Config) (*KeyringStore, error) {
	service := config.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	krConfig := keyring.Config{
		ServiceName:                    service,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		FileDir:                        config.FileDir,
		FilePasswordFunc:               keyring.FixedStringPrompt(config.FilePassword),
	}
	for _, b := range config.Backends {
		krConfig.AllowedBackends = append(krConfig.AllowedBackends, keyring.BackendType(b))
	}
	ring, err := keyring.Open(krConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open keyring")
	}
	return NewKeyringStore(ring, service), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring, service string) *KeyringStore {
	return &KeyringStore{ring: ring, service: service}
}

// NewMemoryStore returns a non-persistent Store for tests and dry runs.
func NewMemoryStore() *KeyringStore {
	return NewKeyringStore(keyring.NewArrayKeyring(nil), DefaultServiceName)
}

// Get returns the value stored under key.
func (s *KeyringStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.ring.Get(key)
	if err == keyring.ErrKeyNotFound || os.IsNotExist(errors.Cause(err)) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s item", s.service)
	}
	// Callers may wipe the returned slice.
	return append([]byte(nil), item.Data...), nil
}

// Set stores value under key.
func (s *KeyringStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ring.Set(keyring.Item{
		Key:                       key,
		Data:                      append([]byte(nil), value...),
		Label:                     s.service + ": " + key,
		KeychainNotSynchronizable: true,
	})
	return errors.Wrapf(err, "failed to write %s item", s.service)
}

// Remove deletes the value stored under key.
func (s *KeyringStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ring.Remove(key)
	if err == nil || err == keyring.ErrKeyNotFound || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "failed to remove %s item", s.service)
}

var _ Store = (*KeyringStore)(nil)
