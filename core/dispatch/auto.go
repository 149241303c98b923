package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
	"github.com/kilianp07/rescuedispatch/core/gate"
	"github.com/kilianp07/rescuedispatch/core/matching"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/rules"
)

// Automatic dispatch outcomes.
const (
	OutcomeCommitted          = "committed"
	OutcomeNeedsReinforcement = "needs_reinforcement"
	OutcomeNoTeam             = "no_team"
	OutcomeNoVehicle          = "no_vehicle"
	OutcomePlanRejected       = "plan_rejected"
	OutcomeClaimLost          = "claim_lost"
	OutcomeError              = "error"
)

// Outcome is the result of an automatic dispatch attempt.
type Outcome struct {
	TaskID     string   `json:"task_id"`
	Status     string   `json:"status"`
	DispatchID string   `json:"dispatch_id,omitempty"`
	TeamID     string   `json:"team_id,omitempty"`
	VehicleIDs []string `json:"vehicle_ids,omitempty"`
	Score      float64  `json:"score"`
	// CapacityCoverage is the fraction of the required payload the selected
	// vehicles can carry.
	CapacityCoverage   float64          `json:"capacity_coverage"`
	NeedsReinforcement bool             `json:"needs_reinforcement"`
	PlanViolations     []gate.Violation `json:"plan_violations,omitempty"`
	Attempts           int              `json:"attempts"`
}

// AutoDispatch plans the task, picks the best admissible team, assembles
// vehicles until the required payload is covered and commits the plan. A lost
// claim re-scores against the fresh snapshot and retries, up to
// MaxClaimRetries times. A plan that fails only on capacity coverage is
// reported with NeedsReinforcement and not committed.
func (e *Engine) AutoDispatch(ctx context.Context, taskID, dispatcher string) (Outcome, error) {
	if dispatcher == "" {
		dispatcher = e.cfg.Dispatcher
	}
	out := Outcome{TaskID: taskID}
	jr := journal.Record{TaskID: taskID}
	out, err := e.autoDispatch(ctx, taskID, dispatcher, out, &jr)
	if err != nil && out.Status == "" {
		out.Status = OutcomeError
	}
	autoOutcomes.WithLabelValues(out.Status).Inc()

	jr.Timestamp = e.now()
	jr.Outcome = out.Status
	jr.TeamID = out.TeamID
	jr.VehicleIDs = out.VehicleIDs
	jr.DispatchID = out.DispatchID
	jr.Attempts = out.Attempts
	jr.PlanViolations = out.PlanViolations
	if err != nil {
		jr.Error = err.Error()
	}
	e.mu.RLock()
	j := e.journal
	e.mu.RUnlock()
	if jerr := j.Append(ctx, jr); jerr != nil {
		e.log.Errorf("journal append for task %s: %v", taskID, jerr)
	}
	return out, err
}

func (e *Engine) autoDispatch(ctx context.Context, taskID, dispatcher string, out Outcome, jr *journal.Record) (Outcome, error) {
	if _, err := e.plan(ctx, taskID, false); err != nil {
		return out, err
	}
	var lost error
	for attempt := 1; attempt <= e.cfg.MaxClaimRetries+1; attempt++ {
		out.Attempts = attempt
		task, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			return out, fmt.Errorf("task %s: %w", taskID, err)
		}
		jr.DisasterType = task.DisasterType
		if task.Status != model.TaskPlanning {
			out.Status = OutcomeClaimLost
			return out, claim(ClaimTask, task.ID, "task is %s", task.Status)
		}

		teams, err := e.matchTeams(ctx, task)
		if err != nil {
			return out, err
		}
		jr.Candidates = teamEntries(teams, e.cfg.CandidateLimit)
		if len(teams) == 0 || !teams[0].Verdict.Admissible {
			out.Status = OutcomeNoTeam
			e.log.Warnf("task %s: no admissible team among %d candidates", task.ID, len(teams))
			return out, nil
		}
		team := teams[0]

		vehicles, err := e.matchVehicles(ctx, task, &team.Team)
		if err != nil {
			return out, err
		}
		jr.Candidates = append(jr.Candidates, vehicleEntries(vehicles, e.cfg.CandidateLimit)...)
		ids, coverage := selectVehicles(task, vehicles, e.cfg.MaxVehicles)
		out.TeamID = team.Team.ID
		out.VehicleIDs = ids
		out.Score = team.Score
		out.CapacityCoverage = coverage
		if len(ids) == 0 {
			out.Status = OutcomeNoVehicle
			e.log.Warnf("task %s: no admissible vehicle for team %s", task.ID, team.Team.ID)
			return out, nil
		}

		verdict, err := e.gate.Plan(ctx, gate.Metrics{rules.MetricCapacityCoverage: coverage})
		if err != nil {
			return out, err
		}
		if !verdict.Admissible {
			e.rejected(task.ID, "plan", team.Team.ID, verdict)
			out.PlanViolations = verdict.Violations
			if verdict.OnlyMetric(rules.MetricCapacityCoverage) {
				out.Status = OutcomeNeedsReinforcement
				out.NeedsReinforcement = true
				e.log.Warnf("task %s: capacity coverage %.2f, emergency reinforcement needed", task.ID, coverage)
			} else {
				out.Status = OutcomePlanRejected
			}
			return out, nil
		}

		rec, err := e.committer.Commit(ctx, Request{
			TaskID:     task.ID,
			TeamID:     team.Team.ID,
			VehicleIDs: ids,
			Dispatcher: dispatcher,
			Mission:    task.Description,
		})
		if isClaim(err) {
			lost = err
			var ce *ClaimError
			if errors.As(err, &ce) && ce.Kind == ClaimTask {
				out.Status = OutcomeClaimLost
				return out, err
			}
			e.log.Infof("task %s attempt %d: %v, re-scoring", task.ID, attempt, err)
			continue
		}
		if err != nil {
			return out, err
		}
		out.Status = OutcomeCommitted
		out.DispatchID = rec.ID
		if committed, err := e.store.GetTask(ctx, task.ID); err == nil {
			task = committed
		}
		e.committed(task, rec, team.Score, attempt)
		return out, nil
	}
	out.Status = OutcomeClaimLost
	return out, fmt.Errorf("task %s: gave up after %d attempts: %w", taskID, out.Attempts, lost)
}

// selectVehicles walks the ranked admissible vehicles and accumulates spare
// payload until the task requirement is covered or max vehicles are picked.
// At least one vehicle is selected when any is admissible.
func selectVehicles(task model.Task, ranked []matching.VehicleCandidate, limit int) ([]string, float64) {
	var ids []string
	var spare float64
	for _, c := range ranked {
		if !c.Verdict.Admissible || len(ids) >= limit {
			break
		}
		ids = append(ids, c.Vehicle.ID)
		spare += c.Vehicle.SpareWeightKg()
		if spare >= task.RequiredPayloadKg {
			break
		}
	}
	if len(ids) == 0 {
		return nil, 0
	}
	return ids, capacityCoverage(spare, task.RequiredPayloadKg)
}

func capacityCoverage(spare, required float64) float64 {
	if required <= 0 {
		return 1
	}
	return min(1, spare/required)
}

func teamEntries(list []matching.TeamCandidate, limit int) []journal.Candidate {
	list = truncate(list, limit)
	out := make([]journal.Candidate, 0, len(list))
	for _, c := range list {
		out = append(out, journal.Candidate{Kind: "team", ID: c.Team.ID, Score: c.Score, Admissible: c.Verdict.Admissible, Violations: c.Verdict.Violations})
	}
	return out
}

func vehicleEntries(list []matching.VehicleCandidate, limit int) []journal.Candidate {
	list = truncate(list, limit)
	out := make([]journal.Candidate, 0, len(list))
	for _, c := range list {
		out = append(out, journal.Candidate{Kind: "vehicle", ID: c.Vehicle.ID, Score: c.Score, Admissible: c.Verdict.Admissible, Violations: c.Verdict.Violations})
	}
	return out
}
