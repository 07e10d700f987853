package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
[ledger]
authority = "0xfeed0001"

[db]
driver = "sqlite"
dsn = "file:test.db"

[api]
addr = "127.0.0.1:4000"
page_limit = 50

[tracker]
enabled = false

[log]
level = "debug"
console = true
`
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, "0xfeed0001", cfg.Ledger.Authority)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "file:test.db", cfg.DB.DSN)
	assert.Equal(t, "127.0.0.1:4000", cfg.API.Addr)
	assert.Equal(t, 50, cfg.API.PageLimit)
	assert.False(t, cfg.Tracker.Enabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.Console)

	// 未出现的字段保持默认值
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.Endpoint)
	assert.Equal(t, 64, cfg.WS.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Tracker.ReloadInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.toml")))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "0.0.0.0:3900", cfg.API.Addr)
	assert.Equal(t, "0.0.0.0:16900", cfg.Monitor.HealthServerAddr)
	assert.Equal(t, 5*time.Second, cfg.API.CacheTTL)
	assert.True(t, cfg.Tracker.Enabled)
}
