package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/idvault-io/idvault/vault/encryption"
	"github.com/idvault-io/idvault/vault/logger"
	"github.com/idvault-io/idvault/vault/secretstore"
	"github.com/idvault-io/idvault/vault/storage"
)

func newTestKey(t *testing.T) *encryption.Key {
	p := encryption.NewKeyProvider(secretstore.NewMemoryStore(), logger.NewSilentLogger())
	key, err := p.RetrieveOrCreateKey()
	require.NoError(t, err)
	return key
}

func newTestCodec(t *testing.T) *encryption.Codec {
	codec, err := encryption.NewCodec()
	require.NoError(t, err)
	return codec
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 80), 0x80, 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func sealRecord(t *testing.T, codec *encryption.Codec, key *encryption.Key, name string, plaintext []byte) storage.Record {
	container, err := codec.Encrypt(plaintext, key)
	require.NoError(t, err)
	return storage.Record{Name: name, Data: container}
}

// Ensure records in every registered format decode and carry their names.
func TestDecodeAllFormats(t *testing.T) {
	key := newTestKey(t)
	codec := newTestCodec(t)

	var jpg, gf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(), &jpeg.Options{Quality: 80}))
	require.NoError(t, gif.Encode(&gf, testImage(), nil))

	records := []storage.Record{
		sealRecord(t, codec, key, "c.sealed", gf.Bytes()),
		sealRecord(t, codec, key, "a.sealed", encodePNG(t)),
		sealRecord(t, codec, key, "b.sealed", jpg.Bytes()),
	}

	result := New(codec, logger.NewSilentLogger()).DecodeAll(records, key)
	require.Zero(t, result.Skipped)
	require.Len(t, result.Images, 3)
	require.Equal(t, "a.sealed", result.Images[0].Name)
	require.Equal(t, "png", result.Images[0].Format)
	require.Equal(t, "jpeg", result.Images[1].Format)
	require.Equal(t, "gif", result.Images[2].Format)
	require.Equal(t, image.Rect(0, 0, 4, 3), result.Images[0].Image.Bounds())
}

// Ensure an empty input yields an empty result.
func TestDecodeAllEmpty(t *testing.T) {
	key := newTestKey(t)
	codec := newTestCodec(t)
	p := New(codec, logger.NewSilentLogger())

	result := p.DecodeAll(nil, key)
	require.Empty(t, result.Images)
	require.Zero(t, result.Skipped)

	result = <-p.DecodeAllAsync([]storage.Record{}, key)
	require.Empty(t, result.Images)
	require.Zero(t, result.Skipped)
}

// Ensure that with N records of which M are valid, exactly M images are
// returned on every run.
func TestDecodeAllCountStability(t *testing.T) {
	key := newTestKey(t)
	codec := newTestCodec(t)
	p := New(codec, logger.NewSilentLogger())
	valid := encodePNG(t)

	const n = 300
	var (
		records []storage.Record
		m       int
	)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%03d.sealed", i)
		switch i % 5 {
		case 0:
			// Truncated container.
			records = append(records, storage.Record{Name: name, Data: []byte{0x01, 0x02}})
		case 1:
			// Decrypts but is not an image.
			records = append(records, sealRecord(t, codec, key, name, []byte("not an image")))
		default:
			records = append(records, sealRecord(t, codec, key, name, valid))
			m++
		}
	}

	for run := 0; run < 10; run++ {
		result := p.DecodeAll(records, key)
		require.Len(t, result.Images, m)
		require.Equal(t, n-m, result.Skipped)
	}
}

// Ensure records sealed under another key are skipped.
func TestDecodeAllWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	records := []storage.Record{sealRecord(t, codec, newTestKey(t), "a.sealed", encodePNG(t))}

	result := New(codec, logger.NewSilentLogger()).DecodeAll(records, newTestKey(t))
	require.Empty(t, result.Images)
	require.Equal(t, 1, result.Skipped)
}

// Ensure the async variant delivers exactly one result and closes.
func TestDecodeAllAsync(t *testing.T) {
	key := newTestKey(t)
	codec := newTestCodec(t)
	records := []storage.Record{
		sealRecord(t, codec, key, "a.sealed", encodePNG(t)),
		{Name: "b.sealed", Data: nil},
	}

	c := New(codec, logger.NewSilentLogger()).DecodeAllAsync(records, key)
	result, ok := <-c
	require.True(t, ok)
	require.Len(t, result.Images, 1)
	require.Equal(t, 1, result.Skipped)

	_, ok = <-c
	require.False(t, ok)
}
