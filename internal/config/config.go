package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
// Components receive these as plain values through their constructors; no
// component reads the environment itself.
type Config struct {
	// Filesystem layout.
	ArchiveRoot string
	TempDir     string
	OutputDir   string
	ZonesPath   string
	CNRasterDir string
	CNCachePath string

	// Archive file naming template: <prefix><YYYYMMDDHH><minute-suffix><ext>.
	FilePrefix       string
	FileMinuteSuffix string
	RasterExt        string

	// Processing parameters.
	Durations          []int // cumulative durations, hours
	ControlHours       int   // completeness-check lookback
	RecentExcludeHours int   // recent hours excluded from the check
	Percentiles        []int
	Lambda             float64 // SCS-CN initial-abstraction ratio

	// Service surface.
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset and validating everything up front.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	durations, err := parseIntList(sharedcfg.EnvOrDefault("DURATIONS", "1,3,6,12,24"))
	if err != nil {
		return nil, fmt.Errorf("invalid DURATIONS: %w", err)
	}

	percentiles, err := parseIntList(sharedcfg.EnvOrDefault("PERCENTILES", "10,25,50,75,90"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERCENTILES: %w", err)
	}

	controlHours, err := strconv.Atoi(sharedcfg.EnvOrDefault("CONTROL_HOURS", "24"))
	if err != nil {
		return nil, errors.New("invalid CONTROL_HOURS")
	}

	excludeHours, err := strconv.Atoi(sharedcfg.EnvOrDefault("RECENT_EXCLUDE_HOURS", "2"))
	if err != nil {
		return nil, errors.New("invalid RECENT_EXCLUDE_HOURS")
	}

	lambda, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("LAMBDA", "0.2"), 64)
	if err != nil {
		return nil, errors.New("invalid LAMBDA")
	}

	cfg := &Config{
		ArchiveRoot: sharedcfg.EnvOrDefault("ARCHIVE_ROOT", ""),
		TempDir:     sharedcfg.EnvOrDefault("TEMP_DIR", ""),
		OutputDir:   sharedcfg.EnvOrDefault("OUTPUT_DIR", ""),
		ZonesPath:   sharedcfg.EnvOrDefault("ZONES_PATH", ""),
		CNRasterDir: sharedcfg.EnvOrDefault("CN_RASTER_DIR", ""),
		CNCachePath: sharedcfg.EnvOrDefault("CN_CACHE_PATH", ""),

		FilePrefix:       sharedcfg.EnvOrDefault("FILE_PREFIX", "MCM_"),
		FileMinuteSuffix: sharedcfg.EnvOrDefault("FILE_MINUTE_SUFFIX", "0000"),
		RasterExt:        sharedcfg.EnvOrDefault("RASTER_EXT", ".asc"),

		Durations:          durations,
		ControlHours:       controlHours,
		RecentExcludeHours: excludeHours,
		Percentiles:        percentiles,
		Lambda:             lambda,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct{ name, val string }{
		{"ARCHIVE_ROOT", c.ArchiveRoot},
		{"TEMP_DIR", c.TempDir},
		{"OUTPUT_DIR", c.OutputDir},
		{"ZONES_PATH", c.ZonesPath},
		{"CN_RASTER_DIR", c.CNRasterDir},
		{"CN_CACHE_PATH", c.CNCachePath},
	}
	for _, r := range required {
		if r.val == "" {
			return errors.New(r.name + " is required")
		}
	}

	if len(c.Durations) == 0 {
		return errors.New("DURATIONS must name at least one duration")
	}
	for _, d := range c.Durations {
		if d <= 0 {
			return fmt.Errorf("invalid duration %d: must be positive hours", d)
		}
	}

	if len(c.Percentiles) == 0 {
		return errors.New("PERCENTILES must name at least one level")
	}
	for _, p := range c.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("invalid percentile %d: must be in [0,100]", p)
		}
	}

	if c.ControlHours <= 0 {
		return errors.New("CONTROL_HOURS must be positive")
	}
	if c.RecentExcludeHours < 0 {
		return errors.New("RECENT_EXCLUDE_HOURS must not be negative")
	}
	if c.Lambda < 0 || c.Lambda >= 1 {
		return errors.New("LAMBDA must be in [0,1)")
	}
	return nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
