// Package config loads the webplatform command's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Host kinds.
const (
	HostGoja   = "goja"
	HostChrome = "chrome"
)

// Config is the top-level configuration.
type Config struct {
	Host     string        `yaml:"host"`
	Document string        `yaml:"document"`
	URL      string        `yaml:"url"`
	Hash     string        `yaml:"hash"`
	FPS      int           `yaml:"fps"`
	Memory   MemoryConfig  `yaml:"memory"`
	Chrome   ChromeConfig  `yaml:"chrome"`
	Log      LogConfig     `yaml:"log"`
	Trace    TraceConfig   `yaml:"trace"`
	Events   []EventConfig `yaml:"events"`
}

// MemoryConfig sizes the native linear memory.
type MemoryConfig struct {
	InitialPages uint32 `yaml:"initial_pages"`
	MaxPages     uint32 `yaml:"max_pages"`
	ScratchBytes uint32 `yaml:"scratch_bytes"`
}

// ChromeConfig configures the Chrome host.
type ChromeConfig struct {
	RemoteURL string        `yaml:"remote_url"`
	Headless  bool          `yaml:"headless"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// TraceConfig configures tracing.
type TraceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// EventConfig is one scripted event replayed by the run command.
type EventConfig struct {
	Selector string `yaml:"selector"`
	Type     string `yaml:"type"`
	Value    string `yaml:"value"` // set as the element's value property first, if non-empty
}

// Defaults returns a Config with every field at its default.
func Defaults() *Config {
	return &Config{
		Host: HostGoja,
		FPS:  60,
		Memory: MemoryConfig{
			InitialPages: 17,
			MaxPages:     1024,
			ScratchBytes: 1 << 20,
		},
		Chrome: ChromeConfig{
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Trace: TraceConfig{
			Exporter: "noop",
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies WEBPLATFORM_* environment variables.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBPLATFORM_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("WEBPLATFORM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WEBPLATFORM_TRACE_ENABLED"); v == "true" {
		cfg.Trace.Enabled = true
	}
	if v := os.Getenv("WEBPLATFORM_CHROME_URL"); v != "" {
		cfg.Chrome.RemoteURL = v
	}
}
