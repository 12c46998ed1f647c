package vault

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/idvault-io/idvault/vault/logger"
	"github.com/idvault-io/idvault/vault/secretstore"
)

type countingAuthenticator struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (a *countingAuthenticator) Authenticate(ctx context.Context, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

func (a *countingAuthenticator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type testService struct {
	*Service
	auth  *countingAuthenticator
	clock *clock.Mock
	store secretstore.Store
}

func getTestConfig(t *testing.T) *Config {
	config := NewDefaultConfig()
	config.DataDir = t.TempDir()
	config.LogSilent = true
	return config
}

func runTestService(t *testing.T, config *Config, opts ...Option) *testService {
	ts := &testService{
		auth:  &countingAuthenticator{},
		clock: clock.NewMock(),
		store: secretstore.NewMemoryStore(),
	}
	opts = append([]Option{
		WithLogger(logger.NewSilentLogger()),
		WithSecretStore(ts.store),
		WithAuthenticator(ts.auth),
		WithClock(ts.clock),
	}, opts...)
	s, err := New(config, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ts.Service = s
	return ts
}

func testPNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 30), uint8(y * 40), 0x40, 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngCapturer returns a fresh copy on every call since captured buffers are
// wiped after encryption.
func pngCapturer(t *testing.T) Capturer {
	data := testPNG(t)
	return CapturerFunc(func(ctx context.Context) ([]byte, error) {
		return append([]byte(nil), data...), nil
	})
}
