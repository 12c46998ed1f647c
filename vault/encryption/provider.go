package encryption

import (
	"sync"

	"github.com/awnumar/memguard"
	"github.com/pkg/errors"

	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/logger"
	"github.com/idvault-io/idvault/vault/secretstore"
)

// KeyName is the fixed identifier of the symmetric key in the secret store.
const KeyName = "idvault.symmetrickey"

// KeyProvider is the single accessor for the symmetric key. The first call to
// RetrieveOrCreateKey loads or generates the key; later calls return the same
// Key until Forget is called.
type KeyProvider struct {
	mu     sync.Mutex
	store  secretstore.Store
	logger logger.Logger
	key    *Key
}

// NewKeyProvider creates a KeyProvider backed by store.
func NewKeyProvider(store secretstore.Store, log logger.Logger) *KeyProvider {
	return &KeyProvider{store: store, logger: log}
}

// RetrieveOrCreateKey returns the current key, generating and persisting a
// new one if the secret store holds none. Concurrent first callers converge
// on a single key.
func (p *KeyProvider) RetrieveOrCreateKey() (*Key, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key != nil {
		return p.key, nil
	}

	data, err := p.store.Get(KeyName)
	switch err {
	case nil:
		if len(data) != KeySize {
			memguard.WipeBytes(data)
			return nil, fault.Wrap(fault.ErrKeyUnavailable,
				errors.Errorf("stored key has length %d", len(data)))
		}
		p.key = newKey(memguard.NewEnclave(data))
		p.logger.Debugf("Loaded symmetric key from secret store")
		return p.key, nil
	case secretstore.ErrNotFound:
	default:
		return nil, fault.Wrap(fault.ErrKeyUnavailable, err)
	}

	buf := memguard.NewBufferRandom(KeySize)
	// Clear any stale entry before writing the fresh key.
	if err := p.store.Remove(KeyName); err != nil {
		buf.Destroy()
		return nil, fault.Wrap(fault.ErrKeyUnavailable, err)
	}
	if err := p.store.Set(KeyName, buf.Bytes()); err != nil {
		buf.Destroy()
		return nil, fault.Wrap(fault.ErrKeyUnavailable, err)
	}
	p.key = newKey(buf.Seal())
	p.logger.Infof("Generated new symmetric key")
	return p.key, nil
}

// Forget drops the memoized key so the next RetrieveOrCreateKey re-reads the
// secret store.
func (p *KeyProvider) Forget() {
	p.mu.Lock()
	p.key = nil
	p.mu.Unlock()
}
