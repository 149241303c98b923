// Package lifecycle governs task status transitions and the release of the
// resources bound to a task when it leaves the active states.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

// ErrIllegalTransition is returned for a transition the state machine forbids.
var ErrIllegalTransition = errors.New("illegal task transition")

// Origin identifies who requests a transition.
type Origin string

const (
	// OriginCommitter is the dispatch committer, the only origin allowed to
	// move a task to assigned.
	OriginCommitter Origin = "committer"
	// OriginField covers status updates reported from the field.
	OriginField Origin = "field"
	// OriginOperator covers explicit operator actions such as cancellation.
	OriginOperator Origin = "operator"
	// OriginPlanner is the planning step that picks up pending tasks.
	OriginPlanner Origin = "planner"
)

var order = []model.TaskStatus{
	model.TaskPending,
	model.TaskPlanning,
	model.TaskAssigned,
	model.TaskDispatched,
	model.TaskEnRoute,
	model.TaskOnSite,
	model.TaskInProgress,
}

func rank(s model.TaskStatus) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// Check validates a single transition.
func Check(from, to model.TaskStatus, origin Origin) error {
	illegal := func(why string) error {
		return fmt.Errorf("%w: %s -> %s: %s", ErrIllegalTransition, from, to, why)
	}
	if from.Terminal() {
		return illegal("task already terminal")
	}
	if rank(from) < 0 {
		return illegal("unknown source status")
	}
	switch to {
	case model.TaskCancelled:
		return nil
	case model.TaskCompleted:
		if from != model.TaskInProgress {
			return illegal("completion requires in_progress")
		}
		return nil
	case model.TaskFailed:
		if rank(from) < rank(model.TaskAssigned) {
			return illegal("nothing dispatched yet")
		}
		return nil
	case model.TaskAssigned:
		if origin != OriginCommitter {
			return illegal("only the dispatch committer assigns tasks")
		}
	}
	r := rank(to)
	if r < 0 {
		return illegal("unknown target status")
	}
	if r != rank(from)+1 {
		return illegal("transitions move forward one step at a time")
	}
	return nil
}

// Next returns the status following s on the forward path, or "" for
// in_progress and terminal states.
func Next(s model.TaskStatus) model.TaskStatus {
	r := rank(s)
	if r < 0 || r+1 >= len(order) {
		return ""
	}
	return order[r+1]
}

// Apply validates the transition of task to status to and writes the task
// inside tx. Leaving the bound states releases the team and vehicles and
// closes the active dispatch records of the task. The saved task is
// returned.
func Apply(ctx context.Context, tx store.Tx, task model.Task, to model.TaskStatus, origin Origin, now time.Time) (model.Task, error) {
	if err := Check(task.Status, to, origin); err != nil {
		return model.Task{}, err
	}
	if to.Terminal() {
		if err := Release(ctx, tx, task, to, now); err != nil {
			return model.Task{}, err
		}
	}
	task.Status = to
	return tx.SaveTask(ctx, task)
}

// Release returns the bound team and vehicles to their available states and
// stamps the task's active dispatch records. The task itself is not written;
// its assigned IDs are kept as history.
func Release(ctx context.Context, tx store.Tx, task model.Task, to model.TaskStatus, now time.Time) error {
	for _, id := range task.AssignedTeamIDs {
		team, err := tx.GetTeam(ctx, id)
		if err != nil {
			return fmt.Errorf("release team %s: %w", id, err)
		}
		if team.CurrentTaskID != task.ID {
			continue
		}
		team.Status = model.TeamStandby
		team.CurrentTaskID = ""
		if _, err := tx.SaveTeam(ctx, team); err != nil {
			return fmt.Errorf("release team %s: %w", id, err)
		}
	}
	for _, id := range task.AssignedVehicleIDs {
		v, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return fmt.Errorf("release vehicle %s: %w", id, err)
		}
		if v.Status != model.VehicleDeployed {
			continue
		}
		v.Status = model.VehicleAvailable
		if _, err := tx.SaveVehicle(ctx, v); err != nil {
			return fmt.Errorf("release vehicle %s: %w", id, err)
		}
	}
	records, err := tx.DispatchesForTask(ctx, task.ID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if !rec.Active() {
			continue
		}
		ts := now
		if to == model.TaskCancelled {
			rec.CancelledAt = &ts
		} else {
			rec.CompletedAt = &ts
			if rec.Result == nil {
				rec.Result = map[string]any{}
			}
			rec.Result["outcome"] = string(to)
		}
		if err := tx.UpdateDispatch(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
