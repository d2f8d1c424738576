package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesNamedConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	content := `
default:
  backend: postgres
  host: localhost
  port: 5432
  database: app
  username: app
  password: secret
  ssl_mode: disable
  pool_min: 2
  pool_max: 10
  connect_timeout: 5s
analytics:
  backend: mongo
  host: mongo.internal
  port: 27017
  database: events
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	configs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	primary := configs["default"]
	assert.Equal(t, BackendPostgres, primary.Backend)
	assert.Equal(t, "localhost", primary.Host)
	assert.Equal(t, 5432, primary.Port)
	assert.Equal(t, 10, primary.PoolMax)
	assert.Equal(t, 5*time.Second, primary.ConnectTimeout)

	analytics := configs["analytics"]
	assert.Equal(t, BackendMongo, analytics.Backend)
	assert.Equal(t, 27017, analytics.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: [not a mapping"), 0o600))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dur.yaml")
	content := "default:\n  backend: mysql\n  connect_timeout: soon\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestConfigNormalizedDefaults(t *testing.T) {
	cfg := Config{}.normalized()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)

	custom := Config{MaxRetries: 2, RetryBaseDelay: time.Second}.normalized()
	assert.Equal(t, 2, custom.MaxRetries)
	assert.Equal(t, time.Second, custom.RetryBaseDelay)
}
