// Package config defines the pitwall configuration and how it is loaded.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Validate before use; errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// Date layouts accepted for the cutoff.
var cutoffLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Season is the championship year to acquire.
	Season int `koanf:"season"`

	// OutputDir is the root of every durable artifact.
	OutputDir string `koanf:"output_dir"`

	// CacheDir holds transient provider responses. Empty means <output_dir>/provider_cache.
	CacheDir string `koanf:"cache_dir"`

	// Cutoff bounds which events count as completed. Empty means now.
	Cutoff string `koanf:"cutoff"`

	// Resume skips units whose artifacts already exist. Force wins over it.
	Resume bool `koanf:"resume"`
	Force  bool `koanf:"force"`

	// CallDelay is slept before every provider attempt.
	CallDelay time.Duration `koanf:"call_delay"`

	// MaxAttempts and BackoffStep shape the retry policy: the wait after
	// failed attempt i is BackoffStep*(i+1).
	MaxAttempts int           `koanf:"max_attempts"`
	BackoffStep time.Duration `koanf:"backoff_step"`

	// HTTPTimeout bounds a single upstream request.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	OpenF1BaseURL  string `koanf:"openf1_base_url"`
	JolpicaBaseURL string `koanf:"jolpica_base_url"`

	// LedgerPath overrides <output_dir>/.pitwall/ledger.db.
	LedgerPath string `koanf:"ledger_path"`

	// MetricsAddr, when set, serves /metrics, /healthz and /status for the life of the run.
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config with defaults. The season defaults to the current
// year in UTC.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		Season:         time.Now().UTC().Year(),
		OutputDir:      "f1data",
		Resume:         true,
		MaxAttempts:    5,
		BackoffStep:    30 * time.Second,
		HTTPTimeout:    60 * time.Second,
		OpenF1BaseURL:  "https://api.openf1.org/v1",
		JolpicaBaseURL: "https://api.jolpi.ca/ergast/f1",
	}
}

// CutoffTime resolves Cutoff against now.
func (c *Config) CutoffTime(now time.Time) (time.Time, error) {
	s := strings.TrimSpace(c.Cutoff)
	if s == "" {
		return now.UTC(), nil
	}
	for _, layout := range cutoffLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cutoff %q is not a date", ErrInvalidConfig, c.Cutoff)
}

// Mode returns the run mode selected by Resume and Force.
func (c *Config) Mode() model.RunMode {
	return model.RunMode{Resume: c.Resume, Force: c.Force}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Season < 1950 || c.Season > 2100:
		return fmt.Errorf("%w: season %d out of range", ErrInvalidConfig, c.Season)
	case strings.TrimSpace(c.OutputDir) == "":
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidConfig)
	case c.BackoffStep < 0 || c.CallDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("%w: http_timeout must be positive", ErrInvalidConfig)
	case c.OpenF1BaseURL == "" || c.JolpicaBaseURL == "":
		return fmt.Errorf("%w: provider base urls must not be empty", ErrInvalidConfig)
	}
	if _, err := c.CutoffTime(time.Now()); err != nil {
		return err
	}
	return nil
}
