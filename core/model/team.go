package model

import (
	"fmt"
	"slices"
	"time"
)

// TeamStatus is the operating status of a rescue team.
type TeamStatus string

const (
	TeamStandby     TeamStatus = "standby"
	TeamDeployed    TeamStatus = "deployed"
	TeamResting     TeamStatus = "resting"
	TeamUnavailable TeamStatus = "unavailable"
)

// TeamCapability describes one skill of a team.
type TeamCapability struct {
	Code          Capability     `json:"code" yaml:"code"`
	Level         int            `json:"level" yaml:"level"` // proficiency 1..5
	DisasterTypes []DisasterType `json:"disaster_types" yaml:"disaster_types"`
	MaxConcurrent int            `json:"max_concurrent" yaml:"max_concurrent"`
}

// Team is a rescue unit that can be deployed to at most one task at a time.
type Team struct {
	ID                  string           `json:"id" yaml:"id"`
	Name                string           `json:"name" yaml:"name"`
	Type                string           `json:"type" yaml:"type"`
	Base                Location         `json:"base" yaml:"base"`
	TotalPersonnel      int              `json:"total_personnel" yaml:"total_personnel"`
	AvailablePersonnel  int              `json:"available_personnel" yaml:"available_personnel"`
	Capabilities        []TeamCapability `json:"capabilities" yaml:"capabilities"`
	ResponseTimeMinutes float64          `json:"response_time_minutes" yaml:"response_time_minutes"`
	Status              TeamStatus       `json:"status" yaml:"status"`
	CurrentTaskID       string           `json:"current_task_id,omitempty" yaml:"-"`
	UpdatedAt           time.Time        `json:"updated_at" yaml:"-"`
	Version             int64            `json:"version" yaml:"-"`
}

// AppliesTo reports whether the capability can be used on a disaster of type
// dt. A capability with no disaster types applies everywhere, and so does
// every capability when dt is empty.
func (c TeamCapability) AppliesTo(dt DisasterType) bool {
	if dt == "" || len(c.DisasterTypes) == 0 {
		return true
	}
	return slices.Contains(c.DisasterTypes, dt)
}

// CapabilitySet returns the team's capability codes usable on dt.
func (t Team) CapabilitySet(dt DisasterType) CapabilitySet {
	s := make(CapabilitySet, len(t.Capabilities))
	for _, c := range t.Capabilities {
		if c.AppliesTo(dt) {
			s[c.Code] = struct{}{}
		}
	}
	return s
}

// CapabilityLevel returns the mean proficiency over the capabilities usable
// on dt that match required. It returns 0 when nothing matches.
func (t Team) CapabilityLevel(required CapabilitySet, dt DisasterType) float64 {
	var sum float64
	var n int
	for _, c := range t.Capabilities {
		if !required.Has(c.Code) || !c.AppliesTo(dt) {
			continue
		}
		sum += float64(c.Level)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Validate checks the team invariants.
func (t Team) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("team id is required")
	}
	if t.AvailablePersonnel > t.TotalPersonnel {
		return fmt.Errorf("team %s: available personnel exceeds total", t.ID)
	}
	for _, c := range t.Capabilities {
		if c.Level < 1 || c.Level > 5 {
			return fmt.Errorf("team %s: capability %s level %d out of range", t.ID, c.Code, c.Level)
		}
	}
	if t.Status == TeamDeployed && t.CurrentTaskID == "" {
		return fmt.Errorf("team %s: deployed without a task", t.ID)
	}
	if t.Status != TeamDeployed && t.CurrentTaskID != "" {
		return fmt.Errorf("team %s: holds task %s while %s", t.ID, t.CurrentTaskID, t.Status)
	}
	return nil
}
