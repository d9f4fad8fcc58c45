package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", c.Node.DataDir)
	assert.Equal(t, 2*time.Second, c.Sync.ScanInterval)
	assert.Equal(t, 500, c.Sync.DeltaLimit)
	assert.Equal(t, filepath.Join("data", "fleet.db"), c.DBPath())
	assert.Equal(t, filepath.Join("data", "raft"), c.MetalogDir())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fleetsync.yaml", `
node:
  id: node-a
  data_dir: state
sync:
  scan_interval: 500ms
  merge_interval: 0s
  delta_limit: 50
  merge_threshold: 0.7
log:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9100
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", c.Node.ID)
	assert.Equal(t, filepath.Join(dir, "state"), c.Node.DataDir)
	assert.Equal(t, 500*time.Millisecond, c.Sync.ScanInterval)
	assert.Equal(t, time.Duration(0), c.Sync.MergeInterval)
	assert.Equal(t, 50, c.Sync.DeltaLimit)
	assert.InDelta(t, 0.7, c.Sync.MergeThreshold, 1e-9)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "sync:\n  scan_every: 1s\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvNodeID, "env-node")
	t.Setenv(EnvDeltaLimit, "25")
	t.Setenv(EnvScanInterval, "3s")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvMergeThreshold, "0.5")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-node", c.Node.ID)
	assert.Equal(t, 25, c.Sync.DeltaLimit)
	assert.Equal(t, 3*time.Second, c.Sync.ScanInterval)
	assert.Equal(t, "warn", c.Log.Level)
	assert.InDelta(t, 0.5, c.Sync.MergeThreshold, 1e-9)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv(EnvDeltaLimit, "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Node.DataDir = "" }},
		{"scan interval too small", func(c *Config) { c.Sync.ScanInterval = time.Millisecond }},
		{"negative merge interval", func(c *Config) { c.Sync.MergeInterval = -time.Second }},
		{"zero delta limit", func(c *Config) { c.Sync.DeltaLimit = 0 }},
		{"threshold above one", func(c *Config) { c.Sync.MergeThreshold = 1.5 }},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParse_ThresholdOfOne(t *testing.T) {
	c, err := Parse([]byte("sync:\n  merge_threshold: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Sync.MergeThreshold)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "FLEETSYNC_TEST_DOTENV=from-file\n")
	t.Setenv("FLEETSYNC_TEST_DOTENV", "")
	os.Unsetenv("FLEETSYNC_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("FLEETSYNC_TEST_DOTENV"))
}
