package secretstore

import (
	"os"

	"github.com/google/tink/go/kwp/subtle"
	"github.com/pkg/errors"
)

// MasterKeyVarName is the environment variable holding the master key used
// by WrappingStore.
const MasterKeyVarName = "IDVAULT_MASTER_KEY"

// FilePasswordVarName is the environment variable holding the password of
// the encrypted file keyring.
const FilePasswordVarName = "IDVAULT_KEYRING_PASSWORD"

// WrappingStore wraps every value with a master key (AES key wrap with
// padding) before handing it to the inner Store. It lets the encrypted file
// backend be used on hosts without a platform credential store while keeping
// the raw key out of the backend.
type WrappingStore struct {
	inner   Store
	wrapper *subtle.KWP
}

// NewWrappingStore creates a WrappingStore. The master key must be 16 or 32
// bytes.
func NewWrappingStore(inner Store, masterKey []byte) (*WrappingStore, error) {
	kwp, err := subtle.NewKWP(masterKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid master key")
	}
	return &WrappingStore{inner: inner, wrapper: kwp}, nil
}

// MasterKeyFromEnv reads the master key from the environment.
func MasterKeyFromEnv() ([]byte, error) {
	key := os.Getenv(MasterKeyVarName)
	if key == "" {
		return nil, errors.Errorf("%s is not set", MasterKeyVarName)
	}
	return []byte(key), nil
}

// Get unwraps the value stored under key.
func (w *WrappingStore) Get(key string) ([]byte, error) {
	wrapped, err := w.inner.Get(key)
	if err != nil {
		return nil, err
	}
	value, err := w.wrapper.Unwrap(wrapped)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unwrap item")
	}
	return value, nil
}

// Set wraps value and stores it under key. Values shorter than 16 bytes
// cannot be wrapped.
func (w *WrappingStore) Set(key string, value []byte) error {
	wrapped, err := w.wrapper.Wrap(value)
	if err != nil {
		return errors.Wrap(err, "failed to wrap item")
	}
	return w.inner.Set(key, wrapped)
}

// Remove deletes the value stored under key.
func (w *WrappingStore) Remove(key string) error {
	return w.inner.Remove(key)
}

var _ Store = (*WrappingStore)(nil)
