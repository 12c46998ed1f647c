package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/google/tink/go/aead/subtle"
	"github.com/pkg/errors"

	"github.com/idvault-io/idvault/vault/fault"
)

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithFormat sets the encoding used by Encrypt. Only FormatAuthenticated and
// FormatLegacy are valid.
func WithFormat(f Format) CodecOption {
	return func(c *Codec) {
		c.format = f
	}
}

// WithUntaggedFallback lets Decrypt read containers that carry no format
// byte, as written by older builds, by decoding them with f once tagged
// decoding has failed. FormatNone disables the fallback. A legacy fallback
// is never tried on input that starts with the authenticated format byte.
func WithUntaggedFallback(f Format) CodecOption {
	return func(c *Codec) {
		c.fallback = f
	}
}

// Codec seals plaintext into self-describing containers and opens them
// again. The first byte of a container names its encoding and Decrypt
// dispatches on it alone. A Codec is safe for concurrent use.
type Codec struct {
	format   Format
	fallback Format
}

// NewCodec creates a Codec that writes authenticated containers unless
// configured otherwise.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	c := &Codec{format: FormatAuthenticated}
	for _, opt := range opts {
		opt(c)
	}
	if !c.format.known() {
		return nil, errors.Errorf("invalid write format %s", c.format)
	}
	if c.fallback != FormatNone && !c.fallback.known() {
		return nil, errors.Errorf("invalid untagged fallback %s", c.fallback)
	}
	return c, nil
}

// Format returns the encoding used by Encrypt.
func (c *Codec) Format() Format {
	return c.format
}

// Encrypt seals plaintext with key. Every call draws a fresh nonce or IV.
func (c *Codec) Encrypt(plaintext []byte, key *Key) ([]byte, error) {
	var body []byte
	err := key.use(func(raw []byte) error {
		var err error
		switch c.format {
		case FormatAuthenticated:
			body, err = sealGCM(raw, plaintext, []byte{byte(FormatAuthenticated)})
		case FormatLegacy:
			body, err = sealCBC(raw, plaintext)
		default:
			err = errors.Errorf("invalid write format %s", c.format)
		}
		return err
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrEncryptionFailed, err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(c.format))
	return append(out, body...), nil
}

// Decrypt opens container with key. A truncated container or an unknown
// format byte fails with fault.ErrInvalidFormat; a container that does not
// authenticate or decrypt fails with fault.ErrDecryptionFailed and yields no
// plaintext.
func (c *Codec) Decrypt(container []byte, key *Key) ([]byte, error) {
	plaintext, err := c.decryptTagged(container, key)
	if err == nil || c.fallback == FormatNone {
		return plaintext, err
	}
	// An authenticated container that fails must not be reinterpreted
	// through an unauthenticated encoding.
	if Format(container[0]) == FormatAuthenticated && c.fallback != FormatAuthenticated {
		return nil, err
	}
	if untagged, uerr := decrypt(c.fallback, container, nil, key); uerr == nil {
		return untagged, nil
	}
	return nil, err
}

func (c *Codec) decryptTagged(container []byte, key *Key) ([]byte, error) {
	if len(container) == 0 {
		return nil, fault.Wrap(fault.ErrInvalidFormat, errors.New("empty container"))
	}
	f := Format(container[0])
	if !f.known() {
		return nil, fault.Wrap(fault.ErrInvalidFormat,
			errors.Errorf("unknown format byte 0x%02x", container[0]))
	}
	return decrypt(f, container[1:], []byte{container[0]}, key)
}

func decrypt(f Format, body, ad []byte, key *Key) ([]byte, error) {
	if len(body) < f.minBodySize() {
		return nil, fault.Wrap(fault.ErrInvalidFormat,
			errors.Errorf("%s container too short: %d bytes", f, len(body)))
	}
	var plaintext []byte
	err := key.use(func(raw []byte) error {
		var err error
		switch f {
		case FormatAuthenticated:
			plaintext, err = openGCM(raw, body, ad)
		case FormatLegacy:
			plaintext, err = openCBC(raw, body)
		}
		return err
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func sealGCM(key, plaintext, ad []byte) ([]byte, error) {
	gcm, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Encrypt(plaintext, ad)
}

func openGCM(key, body, ad []byte) ([]byte, error) {
	gcm, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Decrypt(body, ad)
}

func sealCBC(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate iv")
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)
	return out, nil
}

func openCBC(key, body []byte) ([]byte, error) {
	ct := body[ivSize:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, errors.Errorf("ciphertext is not a whole number of blocks")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, body[:ivSize]).CryptBlocks(out, ct)
	return unpad(out, aes.BlockSize)
}

// pad applies PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
