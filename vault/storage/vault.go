// Package storage persists encrypted containers as one file per capture in a
// private directory.
package storage

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru"
	atomic_file "github.com/natefinch/atomic"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"

	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/logger"
)

const (
	// DefaultSuffix is the file extension given to stored containers.
	DefaultSuffix = "sealed"

	dirPerm  = 0700
	filePerm = 0600

	recordTimeLayout = "20060102_150405.000"
)

// ErrRecordExists is the cause reported by Store when the name is taken.
var ErrRecordExists = errors.New("record already exists")

// Record is a stored container and the name it was stored under.
type Record struct {
	Name string
	Data []byte
}

// Config contains settings for a Vault.
type Config struct {
	// Dir is the private directory holding stored containers.
	Dir string
	// Suffix is the file extension of stored containers, without the dot.
	Suffix string
	// CacheSize is the number of containers kept in memory. Zero disables
	// the cache.
	CacheSize int
}

// Vault stores and enumerates encrypted containers. Containers are opaque to
// the Vault and are never modified after they are written.
type Vault struct {
	dir    string
	suffix string
	cache  *lru.Cache
	logger logger.Logger
}

// NewVault creates a Vault over config.Dir, creating the directory if
// needed.
func NewVault(config Config, log logger.Logger) (*Vault, error) {
	if config.Dir == "" {
		return nil, errors.New("storage directory not set")
	}
	suffix := strings.TrimPrefix(config.Suffix, ".")
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if strings.ContainsAny(suffix, `/\`) {
		return nil, errors.Errorf("invalid storage suffix %q", config.Suffix)
	}
	if err := os.MkdirAll(config.Dir, dirPerm); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	v := &Vault{dir: config.Dir, suffix: suffix, logger: log}
	if config.CacheSize > 0 {
		cache, err := lru.New(config.CacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create container cache")
		}
		v.cache = cache
	}
	return v, nil
}

// Dir returns the storage directory.
func (v *Vault) Dir() string {
	return v.dir
}

// NewRecordName returns the name for a record captured at t, of the form
// yyyyMMdd_HHmmssSSS.<suffix> in UTC.
func (v *Vault) NewRecordName(t time.Time) string {
	ts := strings.Replace(t.UTC().Format(recordTimeLayout), ".", "", 1)
	return ts + "." + v.suffix
}

// Store atomically writes container under name. Records are never
// replaced: storing to a name already in use fails with ErrRecordExists.
func (v *Vault) Store(name string, container []byte) error {
	if err := v.validateName(name); err != nil {
		return fault.Wrap(fault.ErrStorageWriteFailed, err)
	}
	if err := os.MkdirAll(v.dir, dirPerm); err != nil {
		return fault.Wrap(fault.ErrStorageWriteFailed, err)
	}
	// Write the full container under a staging name, then link it into
	// place. Link fails if the name is taken, even across processes.
	path := filepath.Join(v.dir, name)
	staging := filepath.Join(v.dir, "."+name+"."+nuid.Next())
	defer os.Remove(staging)
	if err := atomic_file.WriteFile(staging, bytes.NewReader(container)); err != nil {
		return fault.Wrap(fault.ErrStorageWriteFailed, err)
	}
	if err := os.Chmod(staging, filePerm); err != nil {
		return fault.Wrap(fault.ErrStorageWriteFailed, err)
	}
	if err := os.Link(staging, path); err != nil {
		if os.IsExist(err) {
			err = errors.Wrap(ErrRecordExists, name)
		}
		return fault.Wrap(fault.ErrStorageWriteFailed, err)
	}
	if v.cache != nil {
		v.cache.Add(name, append([]byte(nil), container...))
	}
	v.logger.Debugf("Stored %s (%s)", name, humanize.Bytes(uint64(len(container))))
	return nil
}

// LoadAll returns every stored record, ordered by name. An empty vault
// yields an empty slice. Files that vanish or cannot be read during the scan
// are skipped.
func (v *Vault) LoadAll() ([]Record, error) {
	names, err := v.list()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := v.read(name)
		if err != nil {
			v.logger.Warnf("Skipping unreadable record %s: %v", name, err)
			continue
		}
		records = append(records, Record{Name: name, Data: data})
	}
	return records, nil
}

// Count returns the number of stored records and their total size in bytes.
func (v *Vault) Count() (int, int64, error) {
	names, err := v.list()
	if err != nil {
		return 0, 0, err
	}
	var size int64
	for _, name := range names {
		info, err := os.Stat(filepath.Join(v.dir, name))
		if err != nil {
			continue
		}
		size += info.Size()
	}
	return len(names), size, nil
}

func (v *Vault) list() ([]string, error) {
	entries, err := ioutil.ReadDir(v.dir)
	if err != nil {
		return nil, fault.Wrap(fault.ErrStorageReadFailed, err)
	}
	ext := "." + v.suffix
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		// Skip directories and in-flight temp files.
		if !entry.Mode().IsRegular() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (v *Vault) read(name string) ([]byte, error) {
	if v.cache != nil {
		if data, ok := v.cache.Get(name); ok {
			return append([]byte(nil), data.([]byte)...), nil
		}
	}
	data, err := ioutil.ReadFile(filepath.Join(v.dir, name))
	if err != nil {
		return nil, err
	}
	if v.cache != nil {
		v.cache.Add(name, append([]byte(nil), data...))
	}
	return data, nil
}

func (v *Vault) validateName(name string) error {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.Errorf("invalid record name %q", name)
	}
	if filepath.Ext(name) != "."+v.suffix || len(name) == len(v.suffix)+1 {
		return errors.Errorf("record name %q must end in .%s", name, v.suffix)
	}
	return nil
}
