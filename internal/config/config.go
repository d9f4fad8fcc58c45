// Package config loads fleetsync node configuration from YAML, .env files
// and FLEETSYNC_* environment variables, and validates the result against
// an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full node configuration.
type Config struct {
	Node struct {
		// ID is the actor ID. Empty means: reuse the one recorded in the
		// database, or generate one on first start.
		ID      string `yaml:"id"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"node"`

	Sync struct {
		ScanInterval   time.Duration `yaml:"scan_interval"`
		MergeInterval  time.Duration `yaml:"merge_interval"` // 0 disables merge passes
		DeltaLimit     int           `yaml:"delta_limit"`
		MergeThreshold float64       `yaml:"merge_threshold"`
	} `yaml:"sync"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Node.DataDir = "./data"
	c.Sync.ScanInterval = 2 * time.Second
	c.Sync.MergeInterval = 30 * time.Second
	c.Sync.DeltaLimit = 500
	c.Sync.MergeThreshold = 0.85
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Metrics.Addr = ":9464"
	return &c
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and FLEETSYNC_* environment overrides, then validates
// it. Unknown YAML keys are rejected.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := c.decode(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		// Relative data dirs resolve against the config file.
		if c.Node.DataDir != "" && !filepath.IsAbs(c.Node.DataDir) {
			c.Node.DataDir = filepath.Join(filepath.Dir(path), c.Node.DataDir)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML over the defaults without environment overrides.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := c.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// DBPath is the node's SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.Node.DataDir, "fleet.db")
}

// MetalogDir holds state.json and log.jsonl.
func (c *Config) MetalogDir() string {
	return filepath.Join(c.Node.DataDir, "raft")
}

// Validate checks c against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data, err := json.Marshal(c.schemaView())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// schemaView is the shape #Config validates: durations in milliseconds.
func (c *Config) schemaView() map[string]any {
	return map[string]any{
		"node": map[string]any{
			"id":       c.Node.ID,
			"data_dir": c.Node.DataDir,
		},
		"sync": map[string]any{
			"scan_interval_ms":  c.Sync.ScanInterval.Milliseconds(),
			"merge_interval_ms": c.Sync.MergeInterval.Milliseconds(),
			"delta_limit":       c.Sync.DeltaLimit,
			"merge_threshold":   c.Sync.MergeThreshold,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
			"addr":    c.Metrics.Addr,
		},
	}
}
