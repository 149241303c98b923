// Package journal records auto-dispatch decisions: the candidates that were
// considered, the gate verdicts and the outcome.
package journal

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kilianp07/rescuedispatch/core/gate"
	"github.com/kilianp07/rescuedispatch/core/model"
)

// Candidate summarises one scored team or vehicle.
type Candidate struct {
	Kind       string           `json:"kind"`
	ID         string           `json:"id"`
	Score      float64          `json:"score"`
	Admissible bool             `json:"admissible"`
	Violations []gate.Violation `json:"violations,omitempty"`
}

// Record captures one decision.
type Record struct {
	Timestamp      time.Time          `json:"timestamp"`
	TaskID         string             `json:"task_id"`
	DisasterType   model.DisasterType `json:"disaster_type"`
	Outcome        string             `json:"outcome"`
	TeamID         string             `json:"team_id,omitempty"`
	VehicleIDs     []string           `json:"vehicle_ids,omitempty"`
	DispatchID     string             `json:"dispatch_id,omitempty"`
	Attempts       int                `json:"attempts"`
	Candidates     []Candidate        `json:"candidates,omitempty"`
	PlanViolations []gate.Violation   `json:"plan_violations,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Involves reports whether the team or vehicle appears in the record.
func (r Record) Involves(id string) bool {
	if r.TeamID == id || slices.Contains(r.VehicleIDs, id) {
		return true
	}
	for _, c := range r.Candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Query filters records. Zero fields match everything.
type Query struct {
	Start      time.Time
	End        time.Time
	TaskID     string
	ResourceID string
	Outcome    string
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.TaskID != "" && r.TaskID != q.TaskID {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return q.ResourceID == "" || r.Involves(q.ResourceID)
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

// Config selects and tunes the journal backend.
type Config struct {
	Backend    string `json:"backend"` // "", "jsonl" or "sqlite"
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills the rotation settings.
func (c *Config) SetDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks the backend selection.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "":
		return nil
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("journal: path is required for backend %s", c.Backend)
		}
		return nil
	}
	return fmt.Errorf("journal: unknown backend %q", c.Backend)
}

// New opens the configured backend. An empty backend yields a NopStore.
func New(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	}
	return NopStore{}, nil
}
