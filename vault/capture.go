package vault

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"

	// Registered image decoders.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"

	"github.com/idvault-io/idvault/vault/fault"
)

// Capturer produces the plaintext bytes of one captured image. Failures
// should be fault.ErrCaptureFailed or fault.ErrCaptureCancelled.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) ([]byte, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// FileCapturer captures an image from a file. The file must decode as an
// image and is re-encoded as JPEG.
type FileCapturer struct {
	path    string
	quality int
}

// NewFileCapturer creates a FileCapturer for path encoding at the given JPEG
// quality.
func NewFileCapturer(path string, quality int) *FileCapturer {
	if quality < 1 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return &FileCapturer{path: path, quality: quality}
}

// Capture reads, validates and re-encodes the image.
func (c *FileCapturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.ErrCaptureCancelled, err)
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrCaptureFailed, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fault.Wrap(fault.ErrCaptureFailed, errors.Wrapf(err, "%s is not an image", c.path))
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.ErrCaptureCancelled, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fault.Wrap(fault.ErrCaptureFailed, err)
	}
	return buf.Bytes(), nil
}
