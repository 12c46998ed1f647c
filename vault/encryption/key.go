// Package encryption owns the vault's symmetric key and the container codec
// used to seal captured images at rest.
package encryption

import (
	"github.com/awnumar/memguard"
	"github.com/pkg/errors"
)

// KeySize is the length in bytes of the symmetric key.
const KeySize = 32

// Key is the vault's symmetric key. The raw bytes live in an encrypted
// memguard enclave and are only exposed to the codec for the duration of a
// single operation. Keys are obtained from KeyProvider; there is no exported
// constructor.
type Key struct {
	enclave *memguard.Enclave
}

func newKey(enclave *memguard.Enclave) *Key {
	return &Key{enclave: enclave}
}

// Size returns the key length in bytes.
func (k *Key) Size() int {
	return k.enclave.Size()
}

// String never reveals key material.
func (k *Key) String() string {
	return "encryption.Key(redacted)"
}

// GoString never reveals key material.
func (k *Key) GoString() string {
	return k.String()
}

func (k *Key) use(fn func(raw []byte) error) error {
	if k == nil || k.enclave == nil {
		return errors.New("no key")
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open key enclave")
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
