package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idvault-io/idvault/vault/authz"
	"github.com/idvault-io/idvault/vault/encryption"
	"github.com/idvault-io/idvault/vault/secretstore"
	"github.com/idvault-io/idvault/vault/storage"
)

// Ensure NewConfig properly parses config files.
func TestNewConfigFromFile(t *testing.T) {
	config, err := NewConfig("configs/full.yaml")
	require.NoError(t, err)

	require.Equal(t, uint32(5), config.LogLevel)
	require.True(t, config.LogSilent)
	require.Equal(t, "/foo", config.DataDir)
	require.Equal(t, "/foo/photos", config.Storage.Dir)
	require.Equal(t, "jpg", config.Storage.Suffix)
	require.Equal(t, 16, config.Storage.CacheSize)
	require.Equal(t, "idvault-test", config.Secret.Service)
	require.Equal(t, []string{"file", "pass"}, config.Secret.Backends)
	require.Equal(t, "/foo/keys", config.Secret.FileDir)
	require.True(t, config.Secret.Wrap)
	require.Equal(t, 30*time.Second, config.GrantTTL)
	require.Equal(t, encryption.FormatLegacy, config.Encryption.Format)
	require.Equal(t, encryption.FormatAuthenticated, config.Encryption.UntaggedFallback)
	require.Equal(t, 90, config.JPEGQuality)

	require.Equal(t, "/foo/photos", config.VaultDir())
	require.Equal(t, "/foo/keys", config.SecretDir())
}

// Ensure default config is returned when no file is given.
func TestNewConfigDefault(t *testing.T) {
	config, err := NewConfig("")
	require.NoError(t, err)

	require.Equal(t, uint32(4), config.LogLevel)
	require.Equal(t, storage.DefaultSuffix, config.Storage.Suffix)
	require.Equal(t, defaultCacheSize, config.Storage.CacheSize)
	require.Equal(t, secretstore.DefaultServiceName, config.Secret.Service)
	require.Equal(t, authz.DefaultTTL, config.GrantTTL)
	require.Equal(t, encryption.FormatAuthenticated, config.Encryption.Format)
	require.Equal(t, encryption.FormatNone, config.Encryption.UntaggedFallback)
	require.Equal(t, 80, config.JPEGQuality)
	require.Equal(t, filepath.Join(config.DataDir, "vault"), config.VaultDir())
	require.Equal(t, filepath.Join(config.DataDir, "keyring"), config.SecretDir())
}

// Ensure settings missing from a file keep their defaults.
func TestNewConfigDefaultAndFile(t *testing.T) {
	config, err := NewConfig("configs/simple.yaml")
	require.NoError(t, err)

	require.Equal(t, uint32(3), config.LogLevel)
	require.Equal(t, "/tmp/idvault", config.DataDir)
	require.Equal(t, "/tmp/idvault/vault", config.VaultDir())
	require.Equal(t, authz.DefaultTTL, config.GrantTTL)
	require.Equal(t, encryption.FormatAuthenticated, config.Encryption.Format)
}

// Ensure a missing config file yields the defaults.
func TestNewConfigFileNotFound(t *testing.T) {
	config, err := NewConfig("somefile.yaml")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), config)
}

// Ensure invalid settings are rejected.
func TestNewConfigInvalidSettings(t *testing.T) {
	for _, file := range []string{
		"configs/invalid-format.yaml",
		"configs/invalid-level.yaml",
		"configs/invalid-ttl.yaml",
		"configs/invalid-quality.yaml",
		"configs/invalid-suffix.yaml",
	} {
		_, err := NewConfig(file)
		require.Error(t, err, file)
	}
}

// Ensure GetLogLevel maps names to logrus levels.
func TestGetLogLevel(t *testing.T) {
	for name, want := range map[string]uint32{"debug": 5, "INFO": 4, "warn": 3, "error": 2} {
		got, err := GetLogLevel(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := GetLogLevel("trace")
	require.Error(t, err)
}

// Ensure the summary names the formats and TTL.
func TestConfigString(t *testing.T) {
	config := NewDefaultConfig()
	config.DataDir = "/data"
	require.Equal(t, "data=/data format=authenticated fallback=none grant=1 minute", config.String())
}
