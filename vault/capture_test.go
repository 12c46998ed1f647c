package vault

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/idvault-io/idvault/vault/fault"
)

// Ensure image files are re-encoded as JPEG.
func TestFileCapturer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.png")
	require.NoError(t, ioutil.WriteFile(path, testPNG(t), 0600))

	data, err := NewFileCapturer(path, 0).Capture(context.Background())
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 6, img.Bounds().Dy())
}

// Ensure missing and non-image files fail the capture.
func TestFileCapturerFailures(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileCapturer(filepath.Join(dir, "missing.png"), 80).Capture(context.Background())
	require.True(t, errors.Is(err, fault.ErrCaptureFailed))

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte("not an image"), 0600))
	_, err = NewFileCapturer(path, 80).Capture(context.Background())
	require.True(t, errors.Is(err, fault.ErrCaptureFailed))
}

// Ensure a cancelled context cancels the capture.
func TestFileCapturerCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.png")
	require.NoError(t, ioutil.WriteFile(path, testPNG(t), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileCapturer(path, 80).Capture(ctx)
	require.True(t, errors.Is(err, fault.ErrCaptureCancelled))
}

// Ensure a file capture flows through the service.
func TestCaptureFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.png")
	require.NoError(t, ioutil.WriteFile(path, testPNG(t), 0600))

	s := runTestService(t, getTestConfig(t))
	_, err := s.CaptureFrom(context.Background(), NewFileCapturer(path, 80))
	require.NoError(t, err)

	result, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	require.Equal(t, "jpeg", result.Images[0].Format)
}
