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

	"github.com/kilianp07/rescuedispatch/core/dispatch"
	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
	"github.com/kilianp07/rescuedispatch/core/metrics"
	"github.com/kilianp07/rescuedispatch/infra/mqtt"
)

type Config struct {
	Engine   dispatch.Config `json:"engine"`
	Rules    RulesConfig     `json:"rules"`
	Store    StoreConfig     `json:"store"`
	Journal  journal.Config  `json:"journal"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Metrics  metrics.Config  `json:"metrics"`
	Sentry   SentryConfig    `json:"sentry"`
	Logging  LoggingConfig   `json:"logging"`
	Scenario ScenarioConfig  `json:"scenario"`
}

// RulesConfig points at the hard rule and weight file. An empty path selects
// the built-in rule set.
type RulesConfig struct {
	Path string `json:"path"`
}

// ScenarioConfig points at an optional scenario file seeded at startup.
type ScenarioConfig struct {
	Path string `json:"path"`
}

// Load reads the file at path, applies K_ environment overrides
// (K_ENGINE__SPEED_KMH sets engine.speed_kmh), fills defaults and validates
// every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
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

// Default returns a configuration with every default applied: in-memory
// store, built-in rules, no broker and no metrics sink.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Engine.SetDefaults()
	c.Store.SetDefaults()
	c.Journal.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"engine", c.Engine.Validate},
		{"store", c.Store.Validate},
		{"journal", c.Journal.Validate},
		{"mqtt", c.MQTT.Validate},
		{"logging", c.Logging.Validate},
		{"sentry", c.Sentry.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("config %s: %w", v.name, err)
		}
	}
	return nil
}
