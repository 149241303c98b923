package config

import "fmt"

// StoreConfig selects the resource-state store.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// DSN is the SQLite database path or DSN.
	DSN string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.DSN == "" {
		c.DSN = "rescuedispatch.db"
	}
}

// Validate checks the backend name.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory", "sqlite":
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}
