package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hako/durafmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/idvault-io/idvault/vault/authz"
	"github.com/idvault-io/idvault/vault/encryption"
	"github.com/idvault-io/idvault/vault/secretstore"
	"github.com/idvault-io/idvault/vault/storage"
)

const (
	defaultDataDirName  = ".idvault"
	defaultCacheSize    = 64
	defaultJPEGQuality  = 80
	defaultSecretSubdir = "keyring"
)

// SecretConfig contains settings for the secret store holding the symmetric
// key and the passphrase verifier.
type SecretConfig struct {
	Service  string
	Backends []string
	FileDir  string
	// Wrap wraps stored secrets with the master key from IDVAULT_MASTER_KEY.
	Wrap bool
}

// EncryptionConfig contains settings for the container codec.
type EncryptionConfig struct {
	Format           encryption.Format
	UntaggedFallback encryption.Format
}

// Config contains all settings for a Service.
type Config struct {
	LogLevel    uint32
	LogSilent   bool
	DataDir     string
	Storage     storage.Config
	Secret      SecretConfig
	Encryption  EncryptionConfig
	GrantTTL    time.Duration
	JPEGQuality int
}

// String returns a human-readable summary of the configuration.
func (c Config) String() string {
	return fmt.Sprintf("data=%s format=%s fallback=%s grant=%s",
		c.DataDir, c.Encryption.Format, c.Encryption.UntaggedFallback, durafmt.Parse(c.GrantTTL))
}

// new Viper to parse configuration file
func newViper() *viper.Viper {
	v := viper.New()
	return v
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	dataDir := defaultDataDirName
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, defaultDataDirName)
	}
	config := &Config{DataDir: dataDir}
	config.LogLevel = uint32(log.InfoLevel)
	config.Storage.Suffix = storage.DefaultSuffix
	config.Storage.CacheSize = defaultCacheSize
	config.Secret.Service = secretstore.DefaultServiceName
	config.Encryption.Format = encryption.FormatAuthenticated
	config.Encryption.UntaggedFallback = encryption.FormatNone
	config.GrantTTL = authz.DefaultTTL
	config.JPEGQuality = defaultJPEGQuality
	return config
}

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, fmt.Errorf("Invalid log.level setting %q", level)
	}
	return l, nil
}

// VaultDir returns the directory holding stored containers.
func (c Config) VaultDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(c.DataDir, "vault")
}

// SecretDir returns the directory used by the encrypted file keyring.
func (c Config) SecretDir() string {
	if c.Secret.FileDir != "" {
		return c.Secret.FileDir
	}
	return filepath.Join(c.DataDir, defaultSecretSubdir)
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given configuration file. A missing file yields the
// defaults.
func NewConfig(configFile string) (*Config, error) {
	config := NewDefaultConfig()
	if configFile == "" {
		return config, nil
	}

	v := newViper()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
	}

	if v.IsSet("log.level") {
		level := v.GetString("log.level")
		levelInt, err := GetLogLevel(level)
		if err != nil {
			return nil, err
		}

		config.LogLevel = levelInt
	}

	if v.IsSet("log.silent") {
		config.LogSilent = v.GetBool("log.silent")
	}

	if v.IsSet("data.dir") {
		config.DataDir = v.GetString("data.dir")
	}

	if err := parseStorageConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseSecretConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseEncryptionConfig(config, v); err != nil {
		return nil, err
	}

	if v.IsSet("grant.ttl") {
		ttl, err := time.ParseDuration(v.GetString("grant.ttl"))
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("Invalid grant.ttl setting %q", v.GetString("grant.ttl"))
		}
		config.GrantTTL = ttl
	}

	if v.IsSet("capture.jpeg.quality") {
		quality := v.GetInt("capture.jpeg.quality")
		if quality < 1 || quality > 100 {
			return nil, fmt.Errorf("Invalid capture.jpeg.quality setting %d", quality)
		}
		config.JPEGQuality = quality
	}

	return config, nil
}

// parseStorageConfig parses the `storage` section of a config file and
// populates the given Config.
func parseStorageConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("storage.dir") {
		config.Storage.Dir = v.GetString("storage.dir")
	}

	if v.IsSet("storage.suffix") {
		suffix := strings.TrimPrefix(v.GetString("storage.suffix"), ".")
		if suffix == "" || strings.ContainsAny(suffix, `/\.`) {
			return fmt.Errorf("Invalid storage.suffix setting %q", v.GetString("storage.suffix"))
		}
		config.Storage.Suffix = suffix
	}

	if v.IsSet("storage.cache.size") {
		size := v.GetInt("storage.cache.size")
		if size < 0 {
			return fmt.Errorf("Invalid storage.cache.size setting %d", size)
		}
		config.Storage.CacheSize = size
	}

	return nil
}

// parseSecretConfig parses the `secret` section of a config file and
// populates the given Config.
func parseSecretConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("secret.service") {
		config.Secret.Service = v.GetString("secret.service")
	}

	if v.IsSet("secret.backends") {
		config.Secret.Backends = v.GetStringSlice("secret.backends")
	}

	if v.IsSet("secret.file.dir") {
		config.Secret.FileDir = v.GetString("secret.file.dir")
	}

	if v.IsSet("secret.wrap") {
		config.Secret.Wrap = v.GetBool("secret.wrap")
	}

	return nil
}

// parseEncryptionConfig parses the `encryption` section of a config file and
// populates the given Config.
func parseEncryptionConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("encryption.format") {
		format, err := encryption.ParseFormat(v.GetString("encryption.format"))
		if err != nil {
			return err
		}
		if format == encryption.FormatNone {
			return fmt.Errorf("Invalid encryption.format setting %q", v.GetString("encryption.format"))
		}
		config.Encryption.Format = format
	}

	if v.IsSet("encryption.untagged.fallback") {
		format, err := encryption.ParseFormat(v.GetString("encryption.untagged.fallback"))
		if err != nil {
			return err
		}
		config.Encryption.UntaggedFallback = format
	}

	return nil
}
