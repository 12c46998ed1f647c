// Package pipeline decrypts and decodes stored records in bulk.
package pipeline

import (
	"bytes"
	"image"
	"sort"
	"sync"

	// Registered image decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/dustin/go-humanize"
	"github.com/nats-io/nuid"

	"github.com/idvault-io/idvault/vault/encryption"
	"github.com/idvault-io/idvault/vault/logger"
	"github.com/idvault-io/idvault/vault/storage"
)

// Decryptor opens encrypted containers.
type Decryptor interface {
	Decrypt(container []byte, key *encryption.Key) ([]byte, error)
}

// Image is a decoded record.
type Image struct {
	// Name is the record name the image was stored under.
	Name string
	// Format is the name of the decoder that recognized the image.
	Format string
	Image  image.Image
}

// Result is the outcome of a bulk decode. Images holds every record that
// decrypted and decoded; Skipped counts the rest.
type Result struct {
	Images  []Image
	Skipped int
}

// Pipeline decrypts and decodes records on a bounded pool of goroutines.
type Pipeline struct {
	codec  Decryptor
	logger logger.Logger
}

// New creates a Pipeline.
func New(codec Decryptor, log logger.Logger) *Pipeline {
	return &Pipeline{codec: codec, logger: log}
}

// DecodeAll decrypts and decodes every record with key and blocks until all
// records are accounted for. It never fails: records that do not decrypt or
// decode are skipped and logged by name. Images are ordered by name.
func (p *Pipeline) DecodeAll(records []storage.Record, key *encryption.Key) Result {
	var (
		batch  = nuid.Next()
		mu     sync.Mutex
		result = Result{Images: make([]Image, 0, len(records))}
	)
	if len(records) == 0 {
		return result
	}

	items := make([]interface{}, len(records))
	for i := range records {
		items[i] = &records[i]
	}
	q := queue.New(int64(len(items)))
	if err := q.Put(items...); err != nil {
		p.logger.Errorf("[%s] Failed to queue records: %v", batch, err)
		result.Skipped = len(records)
		return result
	}

	queue.ExecuteInParallel(q, func(item interface{}) {
		record := item.(*storage.Record)
		img, err := p.decode(record, key)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Skipped++
			p.logger.Debugf("[%s] Skipping record %s: %v", batch, record.Name, err)
			return
		}
		result.Images = append(result.Images, img)
	})

	sort.Slice(result.Images, func(i, j int) bool {
		return result.Images[i].Name < result.Images[j].Name
	})
	p.logger.Debugf("[%s] Decoded %s of %s",
		batch, humanize.Comma(int64(len(result.Images))), humanize.Comma(int64(len(records))))
	return result
}

// DecodeAllAsync runs DecodeAll in the background. The returned channel
// receives exactly one Result and is then closed.
func (p *Pipeline) DecodeAllAsync(records []storage.Record, key *encryption.Key) <-chan Result {
	c := make(chan Result, 1)
	go func() {
		c <- p.DecodeAll(records, key)
		close(c)
	}()
	return c
}

func (p *Pipeline) decode(record *storage.Record, key *encryption.Key) (Image, error) {
	plaintext, err := p.codec.Decrypt(record.Data, key)
	if err != nil {
		return Image{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(plaintext))
	if err != nil {
		return Image{}, err
	}
	return Image{Name: record.Name, Format: format, Image: img}, nil
}
