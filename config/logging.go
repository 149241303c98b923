package config

import (
	"fmt"
	"strings"
)

// LoggingConfig defines the log verbosity. The output format follows APP_ENV.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}
