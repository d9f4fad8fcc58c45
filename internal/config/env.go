package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override YAML values.
const (
	EnvNodeID         = "FLEETSYNC_NODE_ID"
	EnvDataDir        = "FLEETSYNC_DATA_DIR"
	EnvScanInterval   = "FLEETSYNC_SCAN_INTERVAL"
	EnvMergeInterval  = "FLEETSYNC_MERGE_INTERVAL"
	EnvDeltaLimit     = "FLEETSYNC_DELTA_LIMIT"
	EnvMergeThreshold = "FLEETSYNC_MERGE_THRESHOLD"
	EnvLogLevel       = "FLEETSYNC_LOG_LEVEL"
	EnvLogFormat      = "FLEETSYNC_LOG_FORMAT"
	EnvMetricsEnabled = "FLEETSYNC_METRICS_ENABLED"
	EnvMetricsAddr    = "FLEETSYNC_METRICS_ADDR"
)

// applyEnv overrides fields from FLEETSYNC_* variables. A variable that is
// set but unparseable is an error rather than silently ignored.
func (c *Config) applyEnv() error {
	if v, ok := getEnvStr(EnvNodeID); ok {
		c.Node.ID = v
	}
	if v, ok := getEnvStr(EnvDataDir); ok {
		c.Node.DataDir = v
	}
	if err := envDur(EnvScanInterval, &c.Sync.ScanInterval); err != nil {
		return err
	}
	if err := envDur(EnvMergeInterval, &c.Sync.MergeInterval); err != nil {
		return err
	}
	if v, ok := getEnvStr(EnvDeltaLimit); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDeltaLimit, err)
		}
		c.Sync.DeltaLimit = n
	}
	if v, ok := getEnvStr(EnvMergeThreshold); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMergeThreshold, err)
		}
		c.Sync.MergeThreshold = f
	}
	if v, ok := getEnvStr(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr(EnvLogFormat); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := getEnvStr(EnvMetricsEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMetricsEnabled, err)
		}
		c.Metrics.Enabled = b
	}
	if v, ok := getEnvStr(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envDur(key string, dst *time.Duration) error {
	v, ok := getEnvStr(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
