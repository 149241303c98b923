package model

import "time"

// DispatchType tells why a dispatch was issued.
type DispatchType string

const (
	DispatchInitial       DispatchType = "initial"
	DispatchReinforcement DispatchType = "reinforcement"
	DispatchReplacement   DispatchType = "replacement"
)

// DispatchRecord is the committed binding of a team and vehicles to a task.
// It is created once per successful commit; afterwards only the completion
// and cancellation timestamps and the result payload change.
type DispatchRecord struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	TeamID      string         `json:"team_id"`
	VehicleIDs  []string       `json:"vehicle_ids"`
	Type        DispatchType   `json:"type"`
	Destination Location       `json:"destination"`
	Mission     string         `json:"mission"`
	Dispatcher  string         `json:"dispatcher"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// Active reports whether the dispatch is neither completed nor cancelled.
func (r DispatchRecord) Active() bool {
	return r.CompletedAt == nil && r.CancelledAt == nil
}
