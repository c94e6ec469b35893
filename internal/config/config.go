package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Stress  StressConfig  `toml:"stress"`
	Logging LoggingConfig `toml:"logging"`
}

type StressConfig struct {
	Frames          int           `toml:"frames"`
	Duration        time.Duration `toml:"duration"` // 0 = run all frames
	Workers         int           `toml:"workers"`
	ReservePerFrame int           `toml:"reserve_per_frame"`
	BatchSize       uint32        `toml:"batch_size"`    // 0 or 1 = single reservations only
	InvalidRatio    float64       `toml:"invalid_ratio"` // share of flushed entities left without a location (0.0-1.0)
	FreeRatio       float64       `toml:"free_ratio"`    // share of live entities freed after each frame (0.0-1.0)
	Seed            uint64        `toml:"seed"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads a TOML config file on top of the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Stress: StressConfig{
			Frames:          100,
			Workers:         8,
			ReservePerFrame: 10000,
			BatchSize:       64,
			InvalidRatio:    0.1,
			FreeRatio:       0.25,
			Seed:            1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks that the stress settings describe a runnable test.
func (c *Config) Validate() error {
	var errs []error
	s := c.Stress
	if s.Frames <= 0 && s.Duration <= 0 {
		errs = append(errs, errors.New("stress: either frames or duration must be positive"))
	}
	if s.Workers <= 0 {
		errs = append(errs, fmt.Errorf("stress: workers must be positive, got %d", s.Workers))
	}
	if s.ReservePerFrame < 0 {
		errs = append(errs, fmt.Errorf("stress: reserve_per_frame must not be negative, got %d", s.ReservePerFrame))
	}
	if s.InvalidRatio < 0 || s.InvalidRatio > 1 {
		errs = append(errs, fmt.Errorf("stress: invalid_ratio must be within [0, 1], got %g", s.InvalidRatio))
	}
	if s.FreeRatio < 0 || s.FreeRatio > 1 {
		errs = append(errs, fmt.Errorf("stress: free_ratio must be within [0, 1], got %g", s.FreeRatio))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
