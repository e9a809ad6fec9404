package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/agriwater/core/metrics"
	"github.com/kilianp07/agriwater/core/model"
	"github.com/kilianp07/agriwater/core/runlog"
	"github.com/kilianp07/agriwater/infra/mqtt"
)

// EnvPrefix marks environment overrides. AGRIWATER_OPTIMIZER__HORIZON=48
// sets optimizer.horizon.
const EnvPrefix = "AGRIWATER_"

type Config struct {
	Fleet     model.Fleet          `json:"fleet"`
	Tariff    model.TariffSchedule `json:"tariff"`
	Optimizer OptimizerConfig      `json:"optimizer"`
	Input     InputConfig          `json:"input"`
	Output    OutputConfig         `json:"output"`
	Generator GeneratorConfig      `json:"generator"`
	Metrics   metrics.Config       `json:"metrics"`
	RunLog    runlog.Config        `json:"run_log"`
	MQTT      mqtt.Config          `json:"mqtt"`
	API       APIConfig            `json:"api"`
	Logging   LoggingConfig        `json:"logging"`
}

// tariffDefaults seed the tariff so that a file may override single rates.
func tariffDefaults() map[string]any {
	t := model.DefaultTariff()
	return map[string]any{
		"tariff.peak_rate":        t.PeakRate,
		"tariff.offpeak_rate":     t.OffPeakRate,
		"tariff.subscribed_power": t.SubscribedPower,
		"tariff.penalty_rate":     t.PenaltyRate,
		"tariff.startup_cost":     t.StartupCost,
	}
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, then validates the result. An empty path uses defaults and
// the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range tariffDefaults() {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	if len(c.Fleet) == 0 {
		c.Fleet = model.DefaultFleet()
	}
	c.Optimizer.SetDefaults()
	c.Input.SetDefaults()
	c.Output.SetDefaults()
	c.Generator.SetDefaults()
	c.MQTT.SetDefaults()
	c.API.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Fleet.Validate(); err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	if err := c.Tariff.Validate(); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"optimizer", func() error { return c.Optimizer.Validate(c.Fleet) }},
		{"input", c.Input.Validate},
		{"output", c.Output.Validate},
		{"generator", c.Generator.Validate},
		{"metrics", c.Metrics.Validate},
		{"run_log", c.RunLog.Validate},
		{"mqtt", c.MQTT.Validate},
		{"api", c.API.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
