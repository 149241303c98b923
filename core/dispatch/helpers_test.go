package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/rules"
	"github.com/kilianp07/rescuedispatch/core/store"
	"github.com/kilianp07/rescuedispatch/infra/logger"
)

var paris = model.Location{Lat: 48.8566, Lon: 2.3522}

func north(km float64) model.Location {
	return model.Location{Lat: paris.Lat + km/111.195, Lon: paris.Lon}
}

func collapseTask(id string) model.Task {
	return model.Task{
		ID:                   id,
		DisasterType:         "earthquake",
		Priority:             model.PriorityHigh,
		Location:             paris,
		RequiredCapabilities: []model.Capability{"LIFE_DETECTION", "STRUCTURAL_RESCUE"},
		MinPersonnel:         10,
		RecommendedPersonnel: 12,
		HazardLevel:          0.1,
		RequiredPayloadKg:    600,
		Description:          "collapsed building, trapped occupants",
		Status:               model.TaskPending,
	}
}

func rescueTeam(id string, km float64) model.Team {
	return model.Team{
		ID: id, Base: north(km), TotalPersonnel: 20, AvailablePersonnel: 15, ResponseTimeMinutes: 15,
		Status: model.TeamStandby,
		Capabilities: []model.TeamCapability{
			{Code: "LIFE_DETECTION", Level: 4}, {Code: "STRUCTURAL_RESCUE", Level: 4},
		},
	}
}

// teamB is closer than A but covers only half of the required capabilities.
func teamB() model.Team {
	return model.Team{
		ID: "B", Base: north(2), TotalPersonnel: 12, AvailablePersonnel: 12, ResponseTimeMinutes: 15,
		Status:       model.TeamStandby,
		Capabilities: []model.TeamCapability{{Code: "LIFE_DETECTION", Level: 4}},
	}
}

func truck(id string, km, maxKg float64) model.Vehicle {
	return model.Vehicle{
		ID: id, Base: north(km), IsAllTerrain: true, MaxWeightKg: maxKg, MaxVolumeM3: 10,
		MaxDeviceSlots: 4, RangeKm: 400, Status: model.VehicleAvailable,
	}
}

type fixture struct {
	tasks    []model.Task
	teams    []model.Team
	vehicles []model.Vehicle
}

func defaultFixture() fixture {
	return fixture{
		tasks:    []model.Task{collapseTask("t1")},
		teams:    []model.Team{rescueTeam("A", 5), teamB()},
		vehicles: []model.Vehicle{truck("v1", 5, 1000), truck("v2", 8, 300)},
	}
}

func seed(t *testing.T, s store.Store, f fixture) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, func(tx store.Tx) error {
		for _, task := range f.tasks {
			if _, err := tx.SaveTask(ctx, task); err != nil {
				return err
			}
		}
		for _, team := range f.teams {
			if _, err := tx.SaveTeam(ctx, team); err != nil {
				return err
			}
		}
		for _, v := range f.vehicles {
			if _, err := tx.SaveVehicle(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newTestEngine(t *testing.T, s store.Store, cfg Config) *Engine {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	rs, err := rules.NewMemoryStore(rules.Default())
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	e, err := NewEngine(s, rs, nil, cfg, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.SetClock(func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) })
	return e
}

func engineWith(t *testing.T, f fixture) (*Engine, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	seed(t, s, f)
	return newTestEngine(t, s, Config{}), s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type memJournal struct {
	mu   sync.Mutex
	recs []journal.Record
}

func (j *memJournal) Append(_ context.Context, r journal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, r)
	return nil
}

func (j *memJournal) Query(_ context.Context, q journal.Query) ([]journal.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Record
	for _, r := range j.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *memJournal) Close() error { return nil }
