// Package config loads the client configuration from YAML, applying
// defaults and validating in one pass.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Screen   ScreenConfig   `yaml:"screen"`
	Tracking TrackingConfig `yaml:"tracking"`
	Stream   StreamConfig   `yaml:"stream"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

type ScreenConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	RefreshRate float32 `yaml:"refresh_rate"`
	Rotation    int     `yaml:"rotation"`
}

type TrackingConfig struct {
	Positional            bool `yaml:"positional"`
	PositionalOrientation bool `yaml:"positional_orientation"`

	Barometer           bool    `yaml:"barometer"`
	BarometerBackend    string  `yaml:"barometer_backend"`
	BarometerI2CBus     string  `yaml:"barometer_i2c_bus"`
	BarometerI2CAddr    uint16  `yaml:"barometer_i2c_addr"`
	BarometerRateHz     int     `yaml:"barometer_rate_hz"`
	SimBasePressureHPa  float64 `yaml:"sim_base_pressure_hpa"`
	SimPressureDriftHPa float64 `yaml:"sim_pressure_drift_hpa"`
}

type StreamConfig struct {
	RefreshRates       []float32 `yaml:"refresh_rates"`
	EncoderHighProfile bool      `yaml:"encoder_high_profile"`
	Encoder10Bits      bool      `yaml:"encoder_10bits"`
	EncoderAV1         bool      `yaml:"encoder_av1"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is given: a
// 2560x1440 60 Hz screen, simulated barometer, monitor on :8080.
func Default() Config {
	return Config{
		LogLevel: "info",
		Screen: ScreenConfig{
			Width:       2560,
			Height:      1440,
			RefreshRate: 60,
		},
		Tracking: TrackingConfig{
			Barometer:          true,
			BarometerBackend:   "sim",
			BarometerRateHz:    10,
			SimBasePressureHPa: 1013.25,
		},
		Stream: StreamConfig{
			RefreshRates:       []float32{60, 72, 90, 120},
			EncoderHighProfile: true,
			Encoder10Bits:      true,
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Listen:  ":8080",
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Screen.Width <= 0 || cfg.Screen.Height <= 0 {
		return Config{}, fmt.Errorf("screen.width and screen.height must be positive")
	}
	if cfg.Screen.RefreshRate <= 0 {
		return Config{}, fmt.Errorf("screen.refresh_rate must be positive")
	}
	if cfg.Screen.Rotation < 0 || cfg.Screen.Rotation > 3 {
		return Config{}, fmt.Errorf("screen.rotation must be 0..3")
	}
	if cfg.Tracking.Barometer {
		switch cfg.Tracking.BarometerBackend {
		case "sim":
			if cfg.Tracking.SimBasePressureHPa <= 0 {
				return Config{}, fmt.Errorf("tracking.sim_base_pressure_hpa must be positive")
			}
		case "bmxx80":
		default:
			return Config{}, fmt.Errorf("tracking.barometer_backend must be sim or bmxx80, got %q", cfg.Tracking.BarometerBackend)
		}
		if cfg.Tracking.BarometerRateHz <= 0 {
			cfg.Tracking.BarometerRateHz = 10
		}
	}
	if len(cfg.Stream.RefreshRates) == 0 {
		cfg.Stream.RefreshRates = []float32{cfg.Screen.RefreshRate}
	}
	if cfg.Monitor.Enabled && cfg.Monitor.Listen == "" {
		return Config{}, fmt.Errorf("monitor.listen is required when monitor.enabled is true")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}
