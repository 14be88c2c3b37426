package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "data-lake", cfg.Lake.Bucket)
	assert.Equal(t, "raw-data", cfg.Lake.RawBucket)
	assert.Equal(t, "omd-1", cfg.Ingest.FallbackBucket)
	assert.Equal(t, 50, cfg.Reconcile.RowLimit)
	require.Len(t, cfg.Reconcile.Connectors, 2)
	assert.Equal(t, "customers_db", cfg.Reconcile.Connectors[0].Match)
	assert.Equal(t, []string{"products", "inventory"}, cfg.Reconcile.Connectors[1].Tables)
}

func TestManager_LoadFileMergesNonZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omd.yaml")
	content := `
server:
  port: 9090
lake:
  bucket: archive
watch:
  dir: /tmp/drop
  debounce: 2s
reconcile:
  connectors:
    - match: hr_db
      driver: sqlite
      dsn: file:hr.db
      tables: [employees]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m := NewManager()
	require.NoError(t, m.LoadFile(path))
	cfg := m.Get()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, "archive", cfg.Lake.Bucket)
	assert.Equal(t, "raw-data", cfg.Lake.RawBucket)
	assert.Equal(t, "/tmp/drop", cfg.Watch.Dir)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	require.Len(t, cfg.Reconcile.Connectors, 1)
	assert.Equal(t, "sqlite", cfg.Reconcile.Connectors[0].Driver)
	assert.Equal(t, []string{path}, m.GetPaths())
}

func TestManager_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("OMD_PORT", "7070")
	t.Setenv("OMD_REDIS_ADDR", "redis:6379")
	t.Setenv("OMD_TELEMETRY", "true")

	m := NewManager()
	require.NoError(t, m.LoadFile(path))

	assert.Equal(t, 7070, m.Get().Server.Port)
	assert.Equal(t, "redis:6379", m.Get().Redis.Addr)
	assert.True(t, m.Get().Telemetry.Enabled)
}

func TestManager_LoadFileRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	err := NewManager().LoadFile(path)
	assert.Error(t, err)
}

func TestManager_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m := NewManager()
	m.Get().Lake.Bucket = "custom-lake"
	require.NoError(t, m.Save(path))

	loaded := NewManager()
	require.NoError(t, loaded.LoadFile(path))
	assert.Equal(t, "custom-lake", loaded.Get().Lake.Bucket)
}
