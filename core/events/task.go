package events

import (
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// NeedsResources is published when a task moves to planning.
type NeedsResources struct {
	TaskID       string
	DisasterType model.DisasterType
	Priority     model.Priority
	At           time.Time
}

// TaskAssigned is published after a successful commit.
type TaskAssigned struct {
	TaskID     string
	DispatchID string
	TeamID     string
	VehicleIDs []string
	Type       model.DispatchType
	At         time.Time
}

// TaskReleased is published when a task ends and its resources return to
// service.
type TaskReleased struct {
	TaskID     string
	From       model.TaskStatus
	Status     model.TaskStatus
	TeamIDs    []string
	VehicleIDs []string
	At         time.Time
}

// TaskAdvanced is published for non-terminal field transitions.
type TaskAdvanced struct {
	TaskID string
	From   model.TaskStatus
	To     model.TaskStatus
	At     time.Time
}
