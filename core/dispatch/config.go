package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/rescuedispatch/core/matching"
)

// Config defines engine settings.
type Config struct {
	// SpeedKmh converts straight-line distance into travel time.
	SpeedKmh float64 `json:"speed_kmh"`
	// MaxVehicles caps the vehicles assembled into one automatic plan.
	MaxVehicles int `json:"max_vehicles"`
	// MaxClaimRetries bounds the re-score and retry loop after a lost claim.
	MaxClaimRetries int `json:"max_claim_retries"`
	// CandidateLimit is the number of candidates kept per pool in the journal.
	CandidateLimit    int    `json:"candidate_limit"`
	AckTimeoutSeconds int    `json:"ack_timeout_seconds"`
	AutoDispatch      bool   `json:"auto_dispatch"`
	Dispatcher        string `json:"dispatcher"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.SpeedKmh <= 0 {
		c.SpeedKmh = matching.DefaultSpeedKmh
	}
	if c.MaxVehicles <= 0 {
		c.MaxVehicles = 3
	}
	if c.MaxClaimRetries <= 0 {
		c.MaxClaimRetries = 3
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 5
	}
	if c.AckTimeoutSeconds <= 0 {
		c.AckTimeoutSeconds = 30
	}
	if c.Dispatcher == "" {
		c.Dispatcher = "auto"
	}
}

// Validate checks the settings once defaults are applied.
func (c Config) Validate() error {
	if c.SpeedKmh <= 0 || c.SpeedKmh > 1000 {
		return fmt.Errorf("engine: speed_kmh %v out of range", c.SpeedKmh)
	}
	if c.MaxVehicles > 20 {
		return fmt.Errorf("engine: max_vehicles %d too large", c.MaxVehicles)
	}
	return nil
}

// AckTimeout returns the acknowledgment wait as a duration.
func (c Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}
