package dispatch

import (
	"cmp"
	"context"
	"slices"

	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
)

// Run drives the engine until ctx is cancelled. It sweeps the open tasks once,
// then auto-dispatches tasks announced by Plan, retries planning tasks
// whenever resources are released and applies field status updates.
// statuses may be nil. Run acts on the engine's own work queue; the event bus
// is for observers only.
func (e *Engine) Run(ctx context.Context, statuses <-chan coremqtt.StatusUpdate) error {
	defer monitoring.Recover()

	if err := e.sweep(ctx, model.TaskPending, model.TaskPlanning); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.work.wake:
			e.drainWork(ctx)
		case u, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			if _, err := e.AdvanceTask(ctx, u.TaskID, u.Status); err != nil {
				e.log.Warnf("status update %s -> %s from team %s: %v", u.TaskID, u.Status, u.TeamID, err)
			}
		}
	}
}

func (e *Engine) drainWork(ctx context.Context) {
	tasks, resweep := e.work.drain()
	if !e.cfg.AutoDispatch {
		return
	}
	for _, id := range tasks {
		if ctx.Err() != nil {
			return
		}
		task, err := e.store.GetTask(ctx, id)
		if err != nil {
			e.log.Warnf("queued task %s: %v", id, err)
			continue
		}
		if task.Status != model.TaskPlanning {
			continue
		}
		e.auto(ctx, id)
	}
	if resweep {
		if err := e.sweep(ctx, model.TaskPlanning); err != nil {
			e.log.Errorf("sweep after release: %v", err)
		}
	}
}

// sweep processes the tasks in the given states, most urgent first. Without
// automatic dispatch pending tasks are only moved to planning.
func (e *Engine) sweep(ctx context.Context, states ...model.TaskStatus) error {
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	open := tasks[:0:0]
	for _, t := range tasks {
		if slices.Contains(states, t.Status) {
			open = append(open, t)
		}
	}
	slices.SortStableFunc(open, func(a, b model.Task) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return a.DeadlineAt.Compare(b.DeadlineAt)
	})
	for _, t := range open {
		if ctx.Err() != nil {
			return nil
		}
		if !e.cfg.AutoDispatch {
			if t.Status == model.TaskPending {
				if _, err := e.Plan(ctx, t.ID); err != nil {
					e.log.Errorf("plan task %s: %v", t.ID, err)
				}
			}
			continue
		}
		e.auto(ctx, t.ID)
	}
	return nil
}

func (e *Engine) auto(ctx context.Context, taskID string) {
	out, err := e.AutoDispatch(ctx, taskID, "")
	if err != nil {
		e.log.Errorf("auto dispatch of task %s (%s): %v", taskID, out.Status, err)
		return
	}
	e.log.Debugw("auto dispatch", map[string]any{
		"task_id":  taskID,
		"outcome":  out.Status,
		"team_id":  out.TeamID,
		"coverage": out.CapacityCoverage,
		"attempts": out.Attempts,
	})
}
