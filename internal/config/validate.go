package config

import (
	"fmt"
	"strings"

	"github.com/6over3/webplatform/errors"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and reports every problem at once. The returned error
// is an errors.Error of phase config wrapping a *ValidationError.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch cfg.Host {
	case HostGoja:
		if cfg.URL != "" {
			ve.Add("url is only used by the chrome host")
		}
	case HostChrome:
		if cfg.Chrome.Timeout <= 0 {
			ve.Add("chrome.timeout must be > 0")
		}
	default:
		ve.Add("host must be %q or %q, got %q", HostGoja, HostChrome, cfg.Host)
	}
	if cfg.FPS < 0 {
		ve.Add("fps must be >= 0")
	}

	m := cfg.Memory
	if m.MaxPages == 0 || m.MaxPages > 65536 {
		ve.Add("memory.max_pages must be in [1, 65536]")
	}
	if m.InitialPages > m.MaxPages {
		ve.Add("memory.initial_pages (%d) exceeds memory.max_pages (%d)", m.InitialPages, m.MaxPages)
	}
	if m.ScratchBytes < 64 {
		ve.Add("memory.scratch_bytes must be >= 64")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("log.level must be one of debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		ve.Add("log.format must be console or json")
	}
	switch cfg.Trace.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("trace.exporter must be stdout or noop")
	}

	for i, ev := range cfg.Events {
		if ev.Selector == "" {
			ve.Add("events[%d].selector is required", i)
		}
		if ev.Type == "" {
			ve.Add("events[%d].type is required", i)
		}
	}

	if ve.HasErrors() {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, ve, "invalid configuration")
	}
	return nil
}
