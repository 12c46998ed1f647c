package encryption

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Format identifies a container encoding. Its value is the leading byte of
// every tagged container.
type Format byte

const (
	// FormatNone means no format; used to disable the untagged fallback.
	FormatNone Format = 0x00

	// FormatAuthenticated is AES-256-GCM:
	// nonce(12) || ciphertext || tag(16).
	FormatAuthenticated Format = 0x01

	// FormatLegacy is AES-256-CBC with PKCS#7 padding: iv(16) || ciphertext.
	// It provides confidentiality only, with no integrity check, and exists
	// to read containers written before authenticated support.
	FormatLegacy Format = 0x02
)

const (
	nonceSize = 12
	tagSize   = 16
	ivSize    = 16
)

// minBodySize returns the minimum length of a container body, excluding the
// format byte.
func (f Format) minBodySize() int {
	switch f {
	case FormatAuthenticated:
		return nonceSize + tagSize
	case FormatLegacy:
		return ivSize
	}
	return 0
}

func (f Format) known() bool {
	return f == FormatAuthenticated || f == FormatLegacy
}

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatAuthenticated:
		return "authenticated"
	case FormatLegacy:
		return "legacy"
	}
	return fmt.Sprintf("Format(0x%02x)", byte(f))
}

// ParseFormat parses a format name as used in configuration.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FormatNone, nil
	case "authenticated", "gcm":
		return FormatAuthenticated, nil
	case "legacy", "cbc":
		return FormatLegacy, nil
	}
	return FormatNone, errors.Errorf("unknown encryption format %q", s)
}
