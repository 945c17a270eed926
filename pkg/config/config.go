// Package config loads adapter profiles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/roffe/canbtr/pkg/btr"
	"gopkg.in/yaml.v2"
)

const EnvConfig = "CANBTR_CONFIG"

// Config is an adapter profile. Zero ranges in Limits fall back to the
// SJA1000 register limits.
type Config struct {
	Adapter      string       `yaml:"adapter"`
	Port         string       `yaml:"port"`
	PortBaudrate int          `yaml:"portBaudrate"`
	Clock        int          `yaml:"clock"`
	Tolerance    float64      `yaml:"tolerance"`
	ReadWindowMs int          `yaml:"readWindowMs"`
	TripleSample bool         `yaml:"tripleSample"`
	Retries      uint         `yaml:"retries"`
	Limits       LimitsConfig `yaml:"limits"`
	Log          LogConfig    `yaml:"log"`
}

type LimitsConfig struct {
	Prescaler RangeConfig `yaml:"prescaler"`
	TSEG1     RangeConfig `yaml:"tseg1"`
	TSEG2     RangeConfig `yaml:"tseg2"`
	SJW       RangeConfig `yaml:"sjw"`
}

type RangeConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LogConfig controls the rotating log file, disabled when File is empty.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the profile of a Waveshare USB-CAN-A.
func Default() *Config {
	return &Config{
		Adapter:      "SLCAN",
		PortBaudrate: 2000000,
		Clock:        24000000,
		Tolerance:    btr.DefaultTolerance,
		ReadWindowMs: 100,
		Log: LogConfig{
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load returns the defaults overlaid with filename (or $CANBTR_CONFIG when
// filename is empty) and environment overrides.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		filename = os.Getenv(EnvConfig)
	}
	if filename != "" {
		if err := loadFromFile(cfg, filename); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if adapter := os.Getenv("CANBTR_ADAPTER"); adapter != "" {
		cfg.Adapter = adapter
	}
	if port := os.Getenv("CANBTR_PORT"); port != "" {
		cfg.Port = port
	}
	ints := []struct {
		env string
		dst *int
	}{
		{"CANBTR_PORT_BAUDRATE", &cfg.PortBaudrate},
		{"CANBTR_CLOCK", &cfg.Clock},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.env, v, err)
		}
		*i.dst = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must be set")
	}
	if c.PortBaudrate <= 0 {
		return fmt.Errorf("portBaudrate must be positive, got %d", c.PortBaudrate)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative, got %v", c.Tolerance)
	}
	if c.ReadWindowMs <= 0 {
		return fmt.Errorf("readWindowMs must be positive, got %d", c.ReadWindowMs)
	}
	return c.Constraints().Validate()
}

func (c *Config) ReadWindow() time.Duration {
	return time.Duration(c.ReadWindowMs) * time.Millisecond
}

// Constraints returns the solver limits for this profile.
func (c *Config) Constraints() btr.Constraints {
	bc := btr.DefaultConstraints(c.Clock)
	override := func(dst *btr.Range, r RangeConfig) {
		if r.Min != 0 {
			dst.Min = r.Min
		}
		if r.Max != 0 {
			dst.Max = r.Max
		}
	}
	override(&bc.Prescaler, c.Limits.Prescaler)
	override(&bc.TSEG1, c.Limits.TSEG1)
	override(&bc.TSEG2, c.Limits.TSEG2)
	override(&bc.SJW, c.Limits.SJW)
	return bc
}
