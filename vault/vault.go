// Package vault ties together the key provider, codec, storage, authorization
// gate and decode pipeline behind the three entry points used by a
// presentation layer: Capture, Authenticate and LoadAll.
package vault

import (
	"context"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/idvault-io/idvault/vault/authz"
	"github.com/idvault-io/idvault/vault/encryption"
	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/logger"
	"github.com/idvault-io/idvault/vault/pipeline"
	"github.com/idvault-io/idvault/vault/secretstore"
	"github.com/idvault-io/idvault/vault/storage"
)

const maxNameAttempts = 1000

// Enroller is implemented by authenticators that accept a new credential.
type Enroller interface {
	Enrolled() (bool, error)
	Enroll(passphrase string) error
}

// Status summarizes the vault contents and the authorization state.
type Status struct {
	Records int
	Bytes   int64
	Grant   authz.Grant
	TTL     time.Duration
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger   logger.Logger
	store    secretstore.Store
	auth     authz.Authenticator
	capturer Capturer
	clock    clock.Clock
}

// WithLogger sets the logger. By default one is created from the config.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSecretStore sets the secret store. By default the platform keyring is
// opened as configured.
func WithSecretStore(s secretstore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithAuthenticator sets the challenge used by the authorization gate. By
// default a terminal passphrase prompt is used.
func WithAuthenticator(a authz.Authenticator) Option {
	return func(o *options) {
		o.auth = a
	}
}

// WithCapturer sets the default capture source used by Capture.
func WithCapturer(c Capturer) Option {
	return func(o *options) {
		o.capturer = c
	}
}

// WithClock sets the clock used for record names and grant expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Service is the vault facade. It is safe for concurrent use.
type Service struct {
	config   *Config
	logger   logger.Logger
	clock    clock.Clock
	keys     *encryption.KeyProvider
	codec    *encryption.Codec
	vault    *storage.Vault
	gate     *authz.Gate
	pipeline *pipeline.Pipeline
	auth     authz.Authenticator
	capturer Capturer
}

// New creates a Service from config. Collaborators not supplied as options
// are built from the config.
func New(config *Config, opts ...Option) (*Service, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewLogger(config.LogLevel)
		o.logger.Silent(config.LogSilent)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.store == nil {
		store, err := openSecretStore(config)
		if err != nil {
			return nil, fault.Wrap(fault.ErrKeyUnavailable, err)
		}
		o.store = store
	}
	if o.auth == nil {
		o.auth = authz.NewPassphraseAuthenticator(o.store)
	}

	codec, err := encryption.NewCodec(
		encryption.WithFormat(config.Encryption.Format),
		encryption.WithUntaggedFallback(config.Encryption.UntaggedFallback),
	)
	if err != nil {
		return nil, err
	}
	storageConfig := config.Storage
	storageConfig.Dir = config.VaultDir()
	v, err := storage.NewVault(storageConfig, o.logger)
	if err != nil {
		return nil, fault.Wrap(fault.ErrStorageWriteFailed, err)
	}

	s := &Service{
		config:   config,
		logger:   o.logger,
		clock:    o.clock,
		keys:     encryption.NewKeyProvider(o.store, o.logger),
		codec:    codec,
		vault:    v,
		gate:     authz.NewGate(o.auth, o.logger, authz.WithClock(o.clock), authz.WithTTL(config.GrantTTL)),
		pipeline: pipeline.New(codec, o.logger),
		auth:     o.auth,
		capturer: o.capturer,
	}
	if codec.Format() == encryption.FormatLegacy {
		s.logger.Warnf("Writing legacy containers: captures are not integrity protected")
	}
	s.logger.Debugf("idvault %s: %s", Version, config)
	return s, nil
}

func openSecretStore(config *Config) (secretstore.Store, error) {
	store, err := secretstore.Open(secretstore.Config{
		ServiceName:  config.Secret.Service,
		Backends:     config.Secret.Backends,
		FileDir:      config.SecretDir(),
		FilePassword: os.Getenv(secretstore.FilePasswordVarName),
	})
	if err != nil {
		return nil, err
	}
	if !config.Secret.Wrap {
		return store, nil
	}
	masterKey, err := secretstore.MasterKeyFromEnv()
	if err != nil {
		return nil, err
	}
	return secretstore.NewWrappingStore(store, masterKey)
}

// Capture captures an image from the configured capture source, encrypts it
// and stores it. It returns the record name.
func (s *Service) Capture(ctx context.Context) (string, error) {
	if s.capturer == nil {
		return "", fault.Wrap(fault.ErrCaptureFailed, errors.New("no capture source configured"))
	}
	return s.CaptureFrom(ctx, s.capturer)
}

// CaptureFrom captures an image from c, encrypts it and stores it. It
// returns the record name.
func (s *Service) CaptureFrom(ctx context.Context, c Capturer) (string, error) {
	plaintext, err := c.Capture(ctx)
	if err != nil {
		return "", fault.Normalize(err, fault.ErrCaptureFailed)
	}
	defer memguard.WipeBytes(plaintext)
	if len(plaintext) == 0 {
		return "", fault.Wrap(fault.ErrCaptureFailed, errors.New("empty capture"))
	}

	key, err := s.keys.RetrieveOrCreateKey()
	if err != nil {
		return "", err
	}
	container, err := s.codec.Encrypt(plaintext, key)
	if err != nil {
		return "", fault.Normalize(err, fault.ErrEncryptionFailed)
	}

	name, err := s.store(container)
	if err != nil {
		return "", fault.Normalize(err, fault.ErrStorageWriteFailed)
	}
	s.logger.Infof("Captured %s (%s)", name, humanize.Bytes(uint64(len(container))))
	return name, nil
}

// store writes container under the record name for the current time,
// moving forward a millisecond at a time while names are taken.
func (s *Service) store(container []byte) (string, error) {
	t := s.clock.Now()
	for i := 0; i < maxNameAttempts; i++ {
		name := s.vault.NewRecordName(t)
		err := s.vault.Store(name, container)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, storage.ErrRecordExists) {
			return "", err
		}
		t = t.Add(time.Millisecond)
	}
	return "", fault.Wrap(fault.ErrStorageWriteFailed, errors.New("no free record name"))
}

// Authenticate presents the challenge and opens the authorization window.
func (s *Service) Authenticate(ctx context.Context) error {
	return s.gate.Authenticate(ctx)
}

// LoadAll authenticates if needed, then decrypts and decodes every stored
// record. An empty vault fails with fault.ErrNoStoredData. Records that fail
// to decrypt or decode are counted in Result.Skipped.
func (s *Service) LoadAll(ctx context.Context) (pipeline.Result, error) {
	if err := s.gate.EnsureGranted(ctx); err != nil {
		return pipeline.Result{}, err
	}
	records, err := s.vault.LoadAll()
	if err != nil {
		return pipeline.Result{}, fault.Normalize(err, fault.ErrStorageReadFailed)
	}
	if len(records) == 0 {
		return pipeline.Result{}, fault.ErrNoStoredData
	}
	key, err := s.keys.RetrieveOrCreateKey()
	if err != nil {
		return pipeline.Result{}, err
	}
	result := s.pipeline.DecodeAll(records, key)
	if result.Skipped > 0 {
		s.logger.Warnf("Skipped %s of %s records",
			humanize.Comma(int64(result.Skipped)), humanize.Comma(int64(len(records))))
	}
	return result, nil
}

// Enrolled reports whether a credential has been enrolled.
func (s *Service) Enrolled() (bool, error) {
	e, ok := s.auth.(Enroller)
	if !ok {
		return false, errors.New("authenticator does not support enrollment")
	}
	return e.Enrolled()
}

// Enroll sets the credential checked by the authorization gate. Replacing an
// enrolled credential requires a live grant, prompting for the current
// credential if needed.
func (s *Service) Enroll(ctx context.Context, passphrase string) error {
	e, ok := s.auth.(Enroller)
	if !ok {
		return errors.New("authenticator does not support enrollment")
	}
	enrolled, err := e.Enrolled()
	if err != nil {
		return fault.Wrap(fault.ErrNotAuthorized, err)
	}
	if enrolled {
		if err := s.gate.EnsureGranted(ctx); err != nil {
			return err
		}
	}
	if err := e.Enroll(passphrase); err != nil {
		return err
	}
	s.logger.Infof("Enrolled new passphrase")
	return nil
}

// Status returns the number and total size of stored records and the
// current grant.
func (s *Service) Status() (Status, error) {
	n, size, err := s.vault.Count()
	if err != nil {
		return Status{}, err
	}
	return Status{Records: n, Bytes: size, Grant: s.gate.Grant(), TTL: s.gate.TTL()}, nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Close revokes any grant and drops the in-memory key.
func (s *Service) Close() {
	s.gate.Revoke()
	s.keys.Forget()
	s.logger.Debugf("Closed vault")
}
