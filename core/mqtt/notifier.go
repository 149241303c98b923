// Package mqtt defines the field transport used to notify rescue teams of
// committed dispatches and to receive task status updates from the field.
package mqtt

import (
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// Notice is the dispatch order delivered to a team.
type Notice struct {
	DispatchID  string             `json:"dispatch_id"`
	TaskID      string             `json:"task_id"`
	TeamID      string             `json:"team_id"`
	VehicleIDs  []string           `json:"vehicle_ids"`
	Type        model.DispatchType `json:"type"`
	Priority    model.Priority     `json:"priority"`
	Destination model.Location     `json:"destination"`
	DeadlineAt  time.Time          `json:"deadline_at"`
	Mission     string             `json:"mission"`
}

// Notifier sends dispatch notices and tracks their acknowledgment.
type Notifier interface {
	// SendDispatch publishes the notice and returns the command identifier
	// used to track the acknowledgment.
	SendDispatch(n Notice) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}

// StatusUpdate is a task progress report sent from the field.
type StatusUpdate struct {
	TaskID string           `json:"task_id"`
	Status model.TaskStatus `json:"status"`
	TeamID string           `json:"team_id,omitempty"`
	Note   string           `json:"note,omitempty"`
	At     time.Time        `json:"at"`
}

// StatusSource delivers field status updates. The channel is closed when the
// source shuts down.
type StatusSource interface {
	Statuses() <-chan StatusUpdate
}
