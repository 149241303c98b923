package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/store"
)

func TestCheck(t *testing.T) {
	checks := []struct {
		from, to model.TaskStatus
		origin   Origin
		ok       bool
	}{
		{model.TaskPending, model.TaskPlanning, OriginPlanner, true},
		{model.TaskPlanning, model.TaskAssigned, OriginCommitter, true},
		{model.TaskPlanning, model.TaskAssigned, OriginField, false},
		{model.TaskPending, model.TaskAssigned, OriginCommitter, false},
		{model.TaskAssigned, model.TaskDispatched, OriginField, true},
		{model.TaskAssigned, model.TaskEnRoute, OriginField, false},
		{model.TaskOnSite, model.TaskInProgress, OriginField, true},
		{model.TaskInProgress, model.TaskCompleted, OriginField, true},
		{model.TaskOnSite, model.TaskCompleted, OriginField, false},
		{model.TaskAssigned, model.TaskFailed, OriginField, true},
		{model.TaskPlanning, model.TaskFailed, OriginField, false},
		{model.TaskPending, model.TaskCancelled, OriginOperator, true},
		{model.TaskInProgress, model.TaskCancelled, OriginOperator, true},
		{model.TaskCancelled, model.TaskPending, OriginOperator, false},
		{model.TaskCompleted, model.TaskCancelled, OriginOperator, false},
		{model.TaskFailed, model.TaskFailed, OriginField, false},
		{model.TaskDispatched, model.TaskAssigned, OriginCommitter, false},
		{model.TaskDispatched, "lost", OriginField, false},
	}
	for _, c := range checks {
		err := Check(c.from, c.to, c.origin)
		if c.ok && err != nil {
			t.Errorf("%s -> %s by %s: unexpected %v", c.from, c.to, c.origin, err)
		}
		if !c.ok && !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s by %s: expected illegal transition got %v", c.from, c.to, c.origin, err)
		}
	}
}

func TestNext(t *testing.T) {
	if Next(model.TaskAssigned) != model.TaskDispatched {
		t.Fatalf("assigned must be followed by dispatched")
	}
	if Next(model.TaskInProgress) != "" || Next(model.TaskCompleted) != "" {
		t.Fatalf("no forward step after in_progress")
	}
}

func TestApplyReleasesOnTerminal(t *testing.T) {
	for _, to := range []model.TaskStatus{model.TaskCancelled, model.TaskFailed} {
		s := store.NewMemoryStore()
		ctx := context.Background()
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		err := s.Update(ctx, func(tx store.Tx) error {
			if _, err := tx.SaveTeam(ctx, model.Team{ID: "A", Status: model.TeamDeployed, CurrentTaskID: "t1"}); err != nil {
				return err
			}
			if _, err := tx.SaveVehicle(ctx, model.Vehicle{ID: "v1", Status: model.VehicleDeployed}); err != nil {
				return err
			}
			if err := tx.InsertDispatch(ctx, model.DispatchRecord{ID: "d1", TaskID: "t1", TeamID: "A", VehicleIDs: []string{"v1"}}); err != nil {
				return err
			}
			task, err := tx.SaveTask(ctx, model.Task{
				ID: "t1", Status: model.TaskEnRoute, AssignedTeamIDs: []string{"A"}, AssignedVehicleIDs: []string{"v1"},
			})
			if err != nil {
				return err
			}
			_, err = Apply(ctx, tx, task, to, OriginOperator, now)
			return err
		})
		if err != nil {
			t.Fatalf("%s: %v", to, err)
		}
		team, _ := s.GetTeam(ctx, "A")
		if team.Status != model.TeamStandby || team.CurrentTaskID != "" {
			t.Fatalf("%s: team not released: %+v", to, team)
		}
		v, _ := s.GetVehicle(ctx, "v1")
		if v.Status != model.VehicleAvailable {
			t.Fatalf("%s: vehicle not released: %+v", to, v)
		}
		rec, _ := s.GetDispatch(ctx, "d1")
		if rec.Active() {
			t.Fatalf("%s: dispatch record still active", to)
		}
		if to == model.TaskCancelled && (rec.CancelledAt == nil || !rec.CancelledAt.Equal(now)) {
			t.Fatalf("cancelled_at not stamped: %+v", rec)
		}
		if to == model.TaskFailed && rec.Result["outcome"] != "failed" {
			t.Fatalf("failure outcome missing: %+v", rec.Result)
		}
		task, _ := s.GetTask(ctx, "t1")
		if task.Status != to || len(task.AssignedTeamIDs) != 1 {
			t.Fatalf("%s: unexpected task %+v", to, task)
		}
	}
}

func TestApplyRejectsWithoutWriting(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.SaveTask(ctx, model.Task{ID: "t1", Status: model.TaskPending})
		return err
	})
	err := s.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, "t1")
		if err != nil {
			return err
		}
		_, err = Apply(ctx, tx, task, model.TaskDispatched, OriginField, time.Now())
		return err
	})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition got %v", err)
	}
	task, _ := s.GetTask(ctx, "t1")
	if task.Status != model.TaskPending || task.Version != 1 {
		t.Fatalf("task must be untouched: %+v", task)
	}
}
