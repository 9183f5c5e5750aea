package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, filepath.Join("local-data", "stockroom.db"), cfg.Store.DSN)
	assert.Equal(t, "stockroom:events", cfg.Events.Topic)
	assert.Equal(t, time.Second, cfg.Events.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Events.Retention)
	assert.Equal(t, 100, cfg.Print.MaxCopies)
	assert.EqualValues(t, 1000001, cfg.Allocator.BarcodeFloor)
	assert.EqualValues(t, 10001, cfg.Allocator.SKUFloor)
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectBackoff)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockroom.yaml")
	err := os.WriteFile(path, []byte(`
addr: ":9090"
store:
  data_dir: /tmp/stockroom
events:
  poll_interval: 250ms
  max_entries: 50
print:
  max_copies: 10
agent:
  code_page: cp850
`), 0o644)
	require.NoError(t, err)

	t.Setenv("STOCKROOM_PRINT_MAX_COPIES", "20")
	t.Setenv("STOCKROOM_EVENTS_RETENTION", "1500")
	t.Setenv("STOCKROOM_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.PollInterval)
	assert.Equal(t, 50, cfg.Events.MaxEntries)
	assert.Equal(t, 20, cfg.Print.MaxCopies, "env overrides file")
	assert.Equal(t, 1500*time.Millisecond, cfg.Events.Retention, "bare numbers are milliseconds")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "cp850", cfg.Agent.CodePage)
	assert.Equal(t, filepath.Join("/tmp/stockroom", "stockroom.db"), cfg.Store.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	assert.Error(t, cfg.Validate(), "postgres needs a dsn")

	cfg.Store.DSN = "postgres://localhost/stockroom?sslmode=disable"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Print.MaxCopies = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestGetenvDurationIgnoresGarbage(t *testing.T) {
	t.Setenv("STOCKROOM_TEST_DURATION", "soon")
	assert.Equal(t, time.Minute, getenvDuration("STOCKROOM_TEST_DURATION", time.Minute))
}
