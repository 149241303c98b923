package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/rescuedispatch/core/lifecycle"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

// Request asks the committer to bind a team and vehicles to a task.
type Request struct {
	TaskID     string
	TeamID     string
	VehicleIDs []string
	Dispatcher string
	// Type defaults to model.DispatchInitial.
	Type    model.DispatchType
	Mission string
}

func (r *Request) normalize() error {
	if r.TaskID == "" || r.TeamID == "" {
		return fmt.Errorf("%w: task and team are required", ErrInvalidRequest)
	}
	if r.Type == "" {
		r.Type = model.DispatchInitial
	}
	switch r.Type {
	case model.DispatchInitial, model.DispatchReinforcement, model.DispatchReplacement:
	default:
		return fmt.Errorf("%w: unknown dispatch type %q", ErrInvalidRequest, r.Type)
	}
	// Reinforcement and replacement may send a team alone, on the vehicles
	// already at the scene.
	if r.Type == model.DispatchInitial && len(r.VehicleIDs) == 0 {
		return fmt.Errorf("%w: an initial dispatch needs at least one vehicle", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(r.VehicleIDs))
	for _, id := range r.VehicleIDs {
		if id == "" {
			return fmt.Errorf("%w: empty vehicle id", ErrInvalidRequest)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: vehicle %s listed twice", ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Committer claims teams and vehicles for a task in a single store
// transaction. Every precondition is re-read inside the transaction, so two
// commits racing for the same resource cannot both succeed.
type Committer struct {
	store store.Store
	now   func() time.Time
}

// NewCommitter returns a committer over s.
func NewCommitter(s store.Store) *Committer {
	return &Committer{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Commit binds the requested resources and returns the dispatch record. A
// resource that is no longer free yields a *ClaimError wrapping
// ErrConcurrentClaim; missing entities yield ErrNotFound. On error nothing is
// written.
func (c *Committer) Commit(ctx context.Context, req Request) (model.DispatchRecord, error) {
	if err := req.normalize(); err != nil {
		return model.DispatchRecord{}, err
	}
	var rec model.DispatchRecord
	err := c.store.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, req.TaskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", req.TaskID, err)
		}
		if err := checkTask(task, req); err != nil {
			return err
		}
		team, err := tx.GetTeam(ctx, req.TeamID)
		if err != nil {
			return fmt.Errorf("team %s: %w", req.TeamID, err)
		}
		if team.Status != model.TeamStandby {
			return claim(ClaimTeam, team.ID, "team is %s", team.Status)
		}
		vehicles := make([]model.Vehicle, 0, len(req.VehicleIDs))
		for _, id := range req.VehicleIDs {
			v, err := tx.GetVehicle(ctx, id)
			if err != nil {
				return fmt.Errorf("vehicle %s: %w", id, err)
			}
			if v.Status != model.VehicleAvailable {
				return claim(ClaimVehicle, v.ID, "vehicle is %s", v.Status)
			}
			vehicles = append(vehicles, v)
		}

		now := c.now()
		if task.Status == model.TaskPending {
			if task, err = lifecycle.Apply(ctx, tx, task, model.TaskPlanning, lifecycle.OriginPlanner, now); err != nil {
				return err
			}
		}
		task.AssignedTeamIDs = append(task.AssignedTeamIDs, team.ID)
		task.AssignedVehicleIDs = append(task.AssignedVehicleIDs, req.VehicleIDs...)
		if req.Type == model.DispatchInitial {
			task, err = lifecycle.Apply(ctx, tx, task, model.TaskAssigned, lifecycle.OriginCommitter, now)
		} else {
			task, err = tx.SaveTask(ctx, task)
		}
		if err != nil {
			return err
		}

		team.Status = model.TeamDeployed
		team.CurrentTaskID = task.ID
		if _, err := tx.SaveTeam(ctx, team); err != nil {
			return err
		}
		for _, v := range vehicles {
			v.Status = model.VehicleDeployed
			if _, err := tx.SaveVehicle(ctx, v); err != nil {
				return err
			}
		}
		rec = model.DispatchRecord{
			ID:          uuid.NewString(),
			TaskID:      task.ID,
			TeamID:      team.ID,
			VehicleIDs:  append([]string(nil), req.VehicleIDs...),
			Type:        req.Type,
			Destination: task.Location,
			Mission:     req.Mission,
			Dispatcher:  req.Dispatcher,
			CreatedAt:   now,
		}
		return tx.InsertDispatch(ctx, rec)
	})
	if err != nil {
		commitsTotal.WithLabelValues(string(req.Type), commitResult(err)).Inc()
		return model.DispatchRecord{}, classify(err)
	}
	commitsTotal.WithLabelValues(string(req.Type), "committed").Inc()
	return rec, nil
}

func checkTask(task model.Task, req Request) error {
	if req.Type == model.DispatchInitial {
		if task.Status != model.TaskPending && task.Status != model.TaskPlanning {
			return claim(ClaimTask, task.ID, "task is %s", task.Status)
		}
		return nil
	}
	if !task.Status.Bound() {
		return fmt.Errorf("%w: %s dispatch needs an active task, %s is %s", ErrInvalidRequest, req.Type, task.ID, task.Status)
	}
	if task.HasTeam(req.TeamID) {
		return fmt.Errorf("%w: team %s already bound to %s", ErrInvalidRequest, req.TeamID, task.ID)
	}
	return nil
}

// classify maps store write conflicts onto claim errors.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrConcurrentClaim):
		return err
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrDuplicate):
		return &ClaimError{Kind: ClaimStore, Reason: err.Error()}
	}
	return err
}

func commitResult(err error) string {
	switch {
	case errors.Is(err, ErrConcurrentClaim), errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrDuplicate):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
