package authz

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/term"

	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/secretstore"
)

// VerifierName is the secret store key holding the enrolled passphrase
// verifier.
const VerifierName = "idvault.passphrase"

const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	saltLen      = 16
)

// PassphraseAuthenticator challenges the user for a passphrase and checks it
// against an argon2id verifier kept in the secret store.
type PassphraseAuthenticator struct {
	store       secretstore.Store
	prompt      keyring.PromptFunc
	interactive func() bool
}

// NewPassphraseAuthenticator creates an authenticator that prompts on the
// terminal.
func NewPassphraseAuthenticator(store secretstore.Store) *PassphraseAuthenticator {
	return &PassphraseAuthenticator{
		store:       store,
		prompt:      keyring.TerminalPrompt,
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// WithPrompt replaces the terminal prompt. The prompt is treated as always
// interactive.
func (a *PassphraseAuthenticator) WithPrompt(prompt keyring.PromptFunc) *PassphraseAuthenticator {
	a.prompt = prompt
	a.interactive = func() bool { return true }
	return a
}

// Enrolled reports whether a passphrase has been enrolled.
func (a *PassphraseAuthenticator) Enrolled() (bool, error) {
	_, err := a.store.Get(VerifierName)
	if err == secretstore.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Enroll stores a verifier for passphrase, replacing any previous one.
func (a *PassphraseAuthenticator) Enroll(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "failed to generate salt")
	}
	hash := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return errors.Wrap(a.store.Set(VerifierName, []byte(encodeVerifier(salt, hash))),
		"failed to store passphrase verifier")
}

// Authenticate prompts for the passphrase and verifies it. Cancelling ctx
// abandons the prompt and fails with fault.ErrNotAuthorized.
func (a *PassphraseAuthenticator) Authenticate(ctx context.Context, reason string) error {
	stored, err := a.store.Get(VerifierName)
	if err == secretstore.ErrNotFound {
		return fault.ErrNoEnrolledCredential
	}
	if err != nil {
		return fault.Wrap(fault.ErrNotAuthorized, err)
	}
	salt, want, err := decodeVerifier(string(stored))
	if err != nil {
		return fault.Wrap(fault.ErrNotAuthorized, err)
	}
	if !a.interactive() {
		return fault.Wrap(fault.ErrBiometryPermissionDenied, errors.New("no terminal to prompt on"))
	}

	type answer struct {
		passphrase string
		err        error
	}
	answers := make(chan answer, 1)
	go func() {
		p, err := a.prompt(reason)
		answers <- answer{p, err}
	}()

	select {
	case <-ctx.Done():
		return fault.Wrap(fault.ErrNotAuthorized, ctx.Err())
	case ans := <-answers:
		if ans.err != nil {
			return fault.Wrap(fault.ErrNotAuthorized, ans.err)
		}
		got := argon2.IDKey([]byte(ans.passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return fault.Wrap(fault.ErrNotAuthorized, errors.New("passphrase mismatch"))
		}
		return nil
	}
}

func encodeVerifier(salt, hash []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func decodeVerifier(s string) (salt, hash []byte, err error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, errors.New("malformed passphrase verifier")
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, nil, errors.Wrap(err, "malformed passphrase verifier")
	}
	if m != argonMemory || t != argonTime || p != argonThreads {
		return nil, nil, errors.New("unsupported passphrase verifier parameters")
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, errors.Wrap(err, "malformed passphrase verifier")
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, errors.Wrap(err, "malformed passphrase verifier")
	}
	return salt, hash, nil
}

var _ Authenticator = (*PassphraseAuthenticator)(nil)
