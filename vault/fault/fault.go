package fault

import "errors"

// Capture errors are reported by the capture collaborator.
var (
	// ErrCaptureFailed indicates the capture source produced no usable image.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrCaptureCancelled indicates the user abandoned the capture.
	ErrCaptureCancelled = errors.New("capture cancelled")
)

// Cryptographic errors.
var (
	// ErrEncryptionFailed indicates a plaintext could not be sealed.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates a container did not authenticate or
	// decrypt under the current key.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidFormat indicates a container is truncated or carries an
	// unknown format tag.
	ErrInvalidFormat = errors.New("invalid container format")

	// ErrKeyUnavailable indicates the symmetric key could not be read from
	// or written to the secret store.
	ErrKeyUnavailable = errors.New("key unavailable")
)

// Storage errors.
var (
	// ErrStorageWriteFailed indicates a container could not be persisted.
	ErrStorageWriteFailed = errors.New("storage write failed")

	// ErrStorageReadFailed indicates the vault directory could not be
	// enumerated.
	ErrStorageReadFailed = errors.New("storage read failed")

	// ErrNoStoredData indicates the vault holds no records.
	ErrNoStoredData = errors.New("no stored data")
)

// Authorization errors.
var (
	// ErrNotAuthorized indicates the interactive challenge failed, was
	// cancelled, or failed for an unrecognized reason.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrBiometryPermissionDenied indicates the process is not permitted to
	// present the interactive challenge.
	ErrBiometryPermissionDenied = errors.New("authentication permission denied")

	// ErrNoEnrolledCredential indicates no credential has been enrolled for
	// the challenge.
	ErrNoEnrolledCredential = errors.New("no enrolled credential")
)

var kinds = []error{
	ErrCaptureFailed,
	ErrCaptureCancelled,
	ErrEncryptionFailed,
	ErrDecryptionFailed,
	ErrInvalidFormat,
	ErrKeyUnavailable,
	ErrStorageWriteFailed,
	ErrStorageReadFailed,
	ErrNoStoredData,
	ErrNotAuthorized,
	ErrBiometryPermissionDenied,
	ErrNoEnrolledCredential,
}

var descriptions = map[error]string{
	ErrCaptureFailed:            "Failed in capturing image",
	ErrCaptureCancelled:         "Capture cancelled by user",
	ErrEncryptionFailed:         "Failed in encryption",
	ErrDecryptionFailed:         "Failed in decryption",
	ErrInvalidFormat:            "Invalid data",
	ErrKeyUnavailable:           "Crypto operation error",
	ErrStorageWriteFailed:       "Failed in storing photos",
	ErrStorageReadFailed:        "Failed in retrieving photos",
	ErrNoStoredData:             "No photo has been taken yet",
	ErrNotAuthorized:            "You are not authorized to see the photos",
	ErrBiometryPermissionDenied: "Authentication permission was denied. Please grant it in the settings.",
	ErrNoEnrolledCredential:     "You need to enroll a credential before using the vault.",
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// Wrap returns an error of the given kind carrying cause. A nil cause yields
// the kind itself.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &kindError{kind: kind, cause: cause}
}

// KindOf returns the taxonomy kind of err, or nil if err carries none. The
// outermost kind in the chain wins.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Normalize returns err unchanged if it already carries a taxonomy kind and
// wraps it in fallback otherwise.
func Normalize(err, fallback error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return Wrap(fallback, err)
}

// NormalizeAuth normalizes an authentication challenge error. Only the
// authorization kinds are passed through; anything else becomes
// ErrNotAuthorized.
func NormalizeAuth(err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case ErrNotAuthorized, ErrBiometryPermissionDenied, ErrNoEnrolledCredential:
		return err
	}
	return Wrap(ErrNotAuthorized, err)
}

// Describe returns the fixed human-readable description for the kind of err.
// Errors without a kind get a generic message.
func Describe(err error) string {
	if d, ok := descriptions[KindOf(err)]; ok {
		return d
	}
	return "An unexpected error occurred"
}
