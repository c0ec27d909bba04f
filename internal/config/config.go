// Package config loads the engine's YAML configuration. Every threshold has
// an operating default; the file only needs to name what it overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rawblock/muling-engine/internal/disruption"
	"github.com/rawblock/muling-engine/internal/heuristics"
)

// EngineConfig is the full runtime configuration.
type EngineConfig struct {
	Detector heuristics.DetectorConfig `yaml:"detector"`
	Planner  disruption.PlannerConfig  `yaml:"planner"`
	Alerts   AlertConfig               `yaml:"alerts"`
	Scanner  ScannerConfig             `yaml:"scanner"`
	API      APIConfig                 `yaml:"api"`
}

// AlertConfig tunes the alert manager.
type AlertConfig struct {
	MinRiskScore float64 `yaml:"min_risk_score" validate:"gte=0,lte=100"`
}

// ScannerConfig tunes the batch case scanner.
type ScannerConfig struct {
	Workers       int           `yaml:"workers" validate:"gt=0"`
	MinAlertRisk  float64       `yaml:"min_alert_risk" validate:"gte=0,lte=100"`
	WatchInterval time.Duration `yaml:"watch_interval" validate:"gt=0"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	MaxUploadBytes  int64 `yaml:"max_upload_bytes" validate:"gt=0"`
	RunRetention    int   `yaml:"run_retention" validate:"gt=0"` // completed runs kept in memory
	RateLimitPerMin int   `yaml:"rate_limit_per_min" validate:"gt=0"`
}

// Default returns the engine's operating defaults.
func Default() EngineConfig {
	return EngineConfig{
		Detector: heuristics.DefaultDetectorConfig(),
		Planner:  disruption.DefaultPlannerConfig(),
		Alerts:   AlertConfig{MinRiskScore: 60},
		Scanner: ScannerConfig{
			Workers:       4,
			MinAlertRisk:  75,
			WatchInterval: 30 * time.Second,
		},
		API: APIConfig{
			MaxUploadBytes:  32 << 20,
			RunRetention:    100,
			RateLimitPerMin: 120,
		},
	}
}

var validate = validator.New()

// Load reads path and overlays it onto the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every threshold and budget. The defaults always pass.
func (c EngineConfig) Validate() error {
	return validate.Struct(c)
}
