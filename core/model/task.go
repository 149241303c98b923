package model

import (
	"fmt"
	"time"
)

// TaskStatus is a state of the task lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskPlanning   TaskStatus = "planning"
	TaskAssigned   TaskStatus = "assigned"
	TaskDispatched TaskStatus = "dispatched"
	TaskEnRoute    TaskStatus = "en_route"
	TaskOnSite     TaskStatus = "on_site"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Bound reports whether a task in this status holds resources.
func (s TaskStatus) Bound() bool {
	switch s {
	case TaskAssigned, TaskDispatched, TaskEnRoute, TaskOnSite, TaskInProgress:
		return true
	}
	return false
}

// Task is a resource requirement produced by upstream planning.
type Task struct {
	ID                   string       `json:"id" yaml:"id"`
	DisasterType         DisasterType `json:"disaster_type" yaml:"disaster_type"`
	TaskType             string       `json:"task_type" yaml:"task_type"`
	Priority             Priority     `json:"priority" yaml:"priority"`
	Location             Location     `json:"location" yaml:"location"`
	DeadlineAt           time.Time    `json:"deadline_at" yaml:"deadline_at"`
	RequiredCapabilities []Capability `json:"required_capabilities" yaml:"required_capabilities"`
	MinPersonnel         int          `json:"min_personnel" yaml:"min_personnel"`
	RecommendedPersonnel int          `json:"recommended_personnel" yaml:"recommended_personnel"`
	RequiredVehicleTags  []string     `json:"required_vehicle_tags" yaml:"required_vehicle_tags"`
	// RequiredPayloadKg is the transport capacity the assembled plan must cover.
	RequiredPayloadKg float64 `json:"required_payload_kg" yaml:"required_payload_kg"`
	// HazardLevel in [0,1] estimates how dangerous the site is for personnel.
	HazardLevel        float64    `json:"hazard_level" yaml:"hazard_level"`
	Description        string     `json:"description" yaml:"description"`
	Status             TaskStatus `json:"status" yaml:"status"`
	AssignedTeamIDs    []string   `json:"assigned_team_ids" yaml:"-"`
	AssignedVehicleIDs []string   `json:"assigned_vehicle_ids" yaml:"-"`
	CreatedAt          time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time  `json:"updated_at" yaml:"-"`
	Version            int64      `json:"version" yaml:"-"`
}

// Capabilities returns the required capability codes as a set.
func (t Task) Capabilities() CapabilitySet {
	return NewCapabilitySet(t.RequiredCapabilities...)
}

// HasTeam reports whether the team is already bound to the task.
func (t Task) HasTeam(id string) bool { return containsString(t.AssignedTeamIDs, id) }

// Validate checks the task invariants.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.MinPersonnel < 0 {
		return fmt.Errorf("task %s: min personnel must not be negative", t.ID)
	}
	if t.RecommendedPersonnel > 0 && t.RecommendedPersonnel < t.MinPersonnel {
		return fmt.Errorf("task %s: recommended personnel below minimum", t.ID)
	}
	if t.HazardLevel < 0 || t.HazardLevel > 1 {
		return fmt.Errorf("task %s: hazard level must be in [0,1]", t.ID)
	}
	bound := len(t.AssignedTeamIDs) > 0 || len(t.AssignedVehicleIDs) > 0
	if bound && !t.Status.Bound() && !t.Status.Terminal() {
		return fmt.Errorf("task %s: resources bound while %s", t.ID, t.Status)
	}
	return nil
}
