package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, FilterModeLegacy, cfg.FilterMode)
	_, ok := cfg.CSRFKeyBytes()
	assert.True(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.CSRFKey, again.CSRFKey, "key is persisted")
}

func TestLoadCompletesPartialEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
backend:
  base_url: http://api.local:9000/
  endpoints:
    clients:
      path: /v2/clients
      methods: [GET]
filter_mode: bogus
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.local:9000", cfg.Backend.BaseURL)
	assert.Equal(t, FilterModeLegacy, cfg.FilterMode)

	clients := cfg.Backend.Endpoints[ResourceClients]
	assert.Equal(t, "/v2/clients", clients.Path)
	assert.Equal(t, EncodingString, clients.Encoding)
	assert.True(t, clients.Allows("get"))
	assert.False(t, clients.Allows("DELETE"))

	assert.Equal(t, DefaultEndpoints()[ResourceServices], cfg.Backend.Endpoints[ResourceServices])
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvListen, ":9999")
	t.Setenv(EnvBackendURL, "http://backend:5000/")
	t.Setenv(EnvFilterMode, FilterModeConjunctive)
	t.Setenv(EnvTimeout, "3")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "http://backend:5000", cfg.Backend.BaseURL)
	assert.Equal(t, FilterModeConjunctive, cfg.FilterMode)
	assert.Equal(t, 3, cfg.Backend.RequestTimeoutSeconds)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvLogLevel+"=debug\n"+EnvListen+"=:1\n"), 0o600))
	t.Setenv(EnvListen, ":2")
	t.Setenv(EnvLogLevel, "")
	require.NoError(t, os.Unsetenv(EnvLogLevel))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "debug", os.Getenv(EnvLogLevel))
	assert.Equal(t, ":2", os.Getenv(EnvListen))
}

func TestLoadFileSkipsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvListen, "0.0.0.0:7000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
}

func TestBasicAuthEnabled(t *testing.T) {
	var none *BasicAuthConfig
	assert.False(t, none.Enabled())
	assert.False(t, (&BasicAuthConfig{Password: "pw"}).Enabled())
	assert.False(t, (&BasicAuthConfig{Username: "admin"}).Enabled())
	assert.True(t, (&BasicAuthConfig{Username: "admin", Password: "pw"}).Enabled())
	assert.True(t, (&BasicAuthConfig{Username: "admin", PasswordHash: "$argon2id$..."}).Enabled())
}
