// Package dispatch matches rescue teams and vehicles to tasks and commits the
// resulting assignments.
//
// The Engine is a request-driven façade: scoring and gating are read-only and
// run against store snapshots, and the only mutating step is the Committer's
// transactional claim.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
	"github.com/kilianp07/rescuedispatch/core/events"
	"github.com/kilianp07/rescuedispatch/core/gate"
	"github.com/kilianp07/rescuedispatch/core/ledger"
	"github.com/kilianp07/rescuedispatch/core/lifecycle"
	"github.com/kilianp07/rescuedispatch/core/logger"
	"github.com/kilianp07/rescuedispatch/core/matching"
	coremetrics "github.com/kilianp07/rescuedispatch/core/metrics"
	"github.com/kilianp07/rescuedispatch/core/model"
	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
	"github.com/kilianp07/rescuedispatch/core/rules"
	"github.com/kilianp07/rescuedispatch/core/store"
	"github.com/kilianp07/rescuedispatch/internal/eventbus"
)

// Engine exposes matching, capacity checks, commits and task lifecycle
// operations over one resource-state store.
type Engine struct {
	store     store.Store
	scorer    *matching.Scorer
	gate      *gate.Evaluator
	ledger    *ledger.Ledger
	committer *Committer
	cfg       Config
	log       logger.Logger
	now       func() time.Time

	mu       sync.RWMutex
	bus      eventbus.EventBus
	sink     coremetrics.MetricsSink
	notifier coremqtt.Notifier
	journal  journal.Store

	work          *workQueue
	notifications sync.WaitGroup
}

// NewEngine creates an engine. The ledger may be nil, in which case one is
// created over s.
func NewEngine(s store.Store, rs rules.Store, l *ledger.Ledger, cfg Config, log logger.Logger) (*Engine, error) {
	if s == nil || rs == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = ledger.New(s, log)
	}
	return &Engine{
		store:     s,
		scorer:    matching.NewScorer(rs, cfg.SpeedKmh),
		gate:      gate.New(rs),
		ledger:    l,
		committer: NewCommitter(s),
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		sink:      coremetrics.NopSink{},
		journal:   journal.NopStore{},
		work:      newWorkQueue(),
	}, nil
}

// SetEventBus configures the bus engine events are published on.
func (e *Engine) SetEventBus(bus eventbus.EventBus) {
	e.mu.Lock()
	e.bus = bus
	e.mu.Unlock()
}

// SetMetricsSink configures where committed dispatches are recorded.
func (e *Engine) SetMetricsSink(sink coremetrics.MetricsSink) {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// SetNotifier configures the transport used to notify teams of dispatches.
func (e *Engine) SetNotifier(n coremqtt.Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// SetJournal configures the store automatic dispatch decisions are logged to.
func (e *Engine) SetJournal(j journal.Store) {
	if j == nil {
		j = journal.NopStore{}
	}
	e.mu.Lock()
	e.journal = j
	e.mu.Unlock()
}

// SetClock overrides the timestamp source of the engine and its committer.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.committer.now = now
}

// Ledger returns the capacity ledger used by the engine.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

func (e *Engine) publish(ev eventbus.Event) {
	e.mu.RLock()
	bus := e.bus
	e.mu.RUnlock()
	if bus != nil {
		bus.Publish(ev)
	}
}

// MatchTeams scores the teams for the task and attaches the hard-gate verdict
// of each candidate. Admissible candidates come first; each group keeps the
// score order.
func (e *Engine) MatchTeams(ctx context.Context, taskID string, limit int) ([]matching.TeamCandidate, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	list, err := e.matchTeams(ctx, task)
	if err != nil {
		return nil, err
	}
	return truncate(list, limit), nil
}

func (e *Engine) matchTeams(ctx context.Context, task model.Task) ([]matching.TeamCandidate, error) {
	start := time.Now()
	defer func() { matchLatency.WithLabelValues("team").Observe(time.Since(start).Seconds()) }()

	teams, err := e.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	list, err := e.scorer.ScoreTeams(ctx, task, teams, 0)
	if err != nil {
		return nil, err
	}
	for i := range list {
		v, err := e.gate.Candidate(ctx, list[i].Metrics())
		if err != nil {
			return nil, err
		}
		list[i].Verdict = v
		if !v.Admissible {
			e.rejected(task.ID, "team", list[i].Team.ID, v)
		}
	}
	return admissibleFirst(list, func(c matching.TeamCandidate) bool { return c.Verdict.Admissible }), nil
}

// MatchVehicles scores the vehicles for the task. teamID may be empty; when
// set, distances run through the team's base.
func (e *Engine) MatchVehicles(ctx context.Context, taskID, teamID string, limit int) ([]matching.VehicleCandidate, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	var team *model.Team
	if teamID != "" {
		t, err := e.store.GetTeam(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", teamID, err)
		}
		team = &t
	}
	list, err := e.matchVehicles(ctx, task, team)
	if err != nil {
		return nil, err
	}
	return truncate(list, limit), nil
}

func (e *Engine) matchVehicles(ctx context.Context, task model.Task, team *model.Team) ([]matching.VehicleCandidate, error) {
	start := time.Now()
	defer func() { matchLatency.WithLabelValues("vehicle").Observe(time.Since(start).Seconds()) }()

	vehicles, err := e.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	list, err := e.scorer.ScoreVehicles(ctx, task, team, vehicles, 0)
	if err != nil {
		return nil, err
	}
	for i := range list {
		v, err := e.gate.Candidate(ctx, list[i].Metrics())
		if err != nil {
			return nil, err
		}
		list[i].Verdict = v
		if !v.Admissible {
			e.rejected(task.ID, "vehicle", list[i].Vehicle.ID, v)
		}
	}
	return admissibleFirst(list, func(c matching.VehicleCandidate) bool { return c.Verdict.Admissible }), nil
}

func (e *Engine) rejected(taskID, kind, id string, v gate.Verdict) {
	gateRejections.WithLabelValues(kind).Inc()
	e.log.Debugw("candidate rejected", map[string]any{
		"task_id":    taskID,
		"kind":       kind,
		"candidate":  id,
		"violations": len(v.Violations),
	})
	e.publish(events.CandidateRejected{TaskID: taskID, Kind: kind, CandidateID: id, Violations: v.Violations})
}

// CanLoad reports whether the device can be loaded on the vehicle.
func (e *Engine) CanLoad(ctx context.Context, vehicleID, deviceID string) (ledger.Feasibility, error) {
	return e.ledger.CanLoad(ctx, vehicleID, deviceID)
}

// CanMount reports whether the module can be mounted on the device slot.
func (e *Engine) CanMount(ctx context.Context, deviceID, moduleID string, slot int) (ledger.Feasibility, error) {
	return e.ledger.CanMount(ctx, deviceID, moduleID, slot)
}

// CommitDispatch claims the team and vehicles for the task as an initial
// dispatch and returns the dispatch ID.
func (e *Engine) CommitDispatch(ctx context.Context, taskID, teamID string, vehicleIDs []string, dispatcher string) (string, error) {
	rec, err := e.Commit(ctx, Request{TaskID: taskID, TeamID: teamID, VehicleIDs: vehicleIDs, Dispatcher: dispatcher})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Commit runs the committer for any dispatch type, then records, announces
// and notifies the dispatch.
func (e *Engine) Commit(ctx context.Context, req Request) (model.DispatchRecord, error) {
	if req.Dispatcher == "" {
		req.Dispatcher = e.cfg.Dispatcher
	}
	rec, err := e.committer.Commit(ctx, req)
	if err != nil {
		return model.DispatchRecord{}, err
	}
	task, err := e.store.GetTask(ctx, rec.TaskID)
	if err != nil {
		return rec, err
	}
	e.committed(task, rec, 0, 1)
	return rec, nil
}

func (e *Engine) committed(task model.Task, rec model.DispatchRecord, score float64, attempts int) {
	e.log.Infof("dispatch %s: team %s and %d vehicles bound to task %s (%s)", rec.ID, rec.TeamID, len(rec.VehicleIDs), rec.TaskID, rec.Type)
	if rec.Type == model.DispatchInitial {
		taskTransitions.WithLabelValues(string(model.TaskAssigned)).Inc()
	}
	e.mu.RLock()
	sink := e.sink
	e.mu.RUnlock()
	err := sink.RecordDispatchResult([]coremetrics.DispatchResult{{
		DispatchID:   rec.ID,
		TaskID:       task.ID,
		DisasterType: task.DisasterType,
		Priority:     task.Priority,
		Type:         rec.Type,
		TeamID:       rec.TeamID,
		VehicleIDs:   rec.VehicleIDs,
		Score:        score,
		Attempts:     attempts,
		Time:         rec.CreatedAt,
	}})
	if err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	e.publish(events.TaskAssigned{
		TaskID:     task.ID,
		DispatchID: rec.ID,
		TeamID:     rec.TeamID,
		VehicleIDs: rec.VehicleIDs,
		Type:       rec.Type,
		At:         rec.CreatedAt,
	})
	e.notify(task, rec)
}

// CancelTask cancels the task and releases its resources. Cancelling a task
// that is already terminal is a no-op reported by changed == false.
func (e *Engine) CancelTask(ctx context.Context, taskID string) (changed bool, err error) {
	var before, after model.Task
	err = e.store.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		before = task
		if task.Status.Terminal() {
			return nil
		}
		after, err = lifecycle.Apply(ctx, tx, task, model.TaskCancelled, lifecycle.OriginOperator, e.now())
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil || !changed {
		return false, err
	}
	e.released(before, after)
	return true, nil
}

// AdvanceTask applies a field-reported transition. Reporting the current
// status again is a no-op.
func (e *Engine) AdvanceTask(ctx context.Context, taskID string, to model.TaskStatus) (changed bool, err error) {
	var before, after model.Task
	err = e.store.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		before = task
		if task.Status == to {
			return nil
		}
		after, err = lifecycle.Apply(ctx, tx, task, to, lifecycle.OriginField, e.now())
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil || !changed {
		return false, err
	}
	if to.Terminal() {
		e.released(before, after)
		return true, nil
	}
	taskTransitions.WithLabelValues(string(to)).Inc()
	e.log.Infof("task %s: %s -> %s", taskID, before.Status, to)
	e.publish(events.TaskAdvanced{TaskID: taskID, From: before.Status, To: to, At: e.now()})
	return true, nil
}

func (e *Engine) released(before, after model.Task) {
	e.work.released()
	taskTransitions.WithLabelValues(string(after.Status)).Inc()
	e.log.Infof("task %s: %s -> %s, released %d teams and %d vehicles",
		after.ID, before.Status, after.Status, len(after.AssignedTeamIDs), len(after.AssignedVehicleIDs))
	e.publish(events.TaskReleased{
		TaskID:     after.ID,
		From:       before.Status,
		Status:     after.Status,
		TeamIDs:    after.AssignedTeamIDs,
		VehicleIDs: after.AssignedVehicleIDs,
		At:         e.now(),
	})
}

// Plan moves a pending task to planning and announces that it needs
// resources. A task already in planning is left as is.
func (e *Engine) Plan(ctx context.Context, taskID string) (changed bool, err error) {
	return e.plan(ctx, taskID, true)
}

func (e *Engine) plan(ctx context.Context, taskID string, announce bool) (bool, error) {
	var task model.Task
	changed := false
	err := e.store.Update(ctx, func(tx store.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		task = t
		if t.Status != model.TaskPending {
			return nil
		}
		task, err = lifecycle.Apply(ctx, tx, t, model.TaskPlanning, lifecycle.OriginPlanner, e.now())
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if task.Status != model.TaskPlanning {
		return false, fmt.Errorf("%w: task %s is %s", ErrInvalidRequest, taskID, task.Status)
	}
	if changed {
		taskTransitions.WithLabelValues(string(model.TaskPlanning)).Inc()
		if announce {
			e.work.needs(task.ID)
			e.publish(events.NeedsResources{TaskID: task.ID, DisasterType: task.DisasterType, Priority: task.Priority, At: e.now()})
		}
	}
	return changed, nil
}

// Close waits for pending notifications and closes the journal.
func (e *Engine) Close() error {
	e.notifications.Wait()
	e.mu.RLock()
	j := e.journal
	e.mu.RUnlock()
	return j.Close()
}

func admissibleFirst[C any](list []C, ok func(C) bool) []C {
	out := make([]C, 0, len(list))
	for _, c := range list {
		if ok(c) {
			out = append(out, c)
		}
	}
	for _, c := range list {
		if !ok(c) {
			out = append(out, c)
		}
	}
	return out
}

func truncate[C any](list []C, limit int) []C {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// isClaim reports whether err is a lost claim.
func isClaim(err error) bool { return errors.Is(err, ErrConcurrentClaim) }
