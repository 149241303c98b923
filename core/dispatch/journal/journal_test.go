package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/rescuedispatch/core/gate"
)

func sample(task, team, outcome string, ts time.Time) Record {
	return Record{
		Timestamp:  ts,
		TaskID:     task,
		Outcome:    outcome,
		TeamID:     team,
		VehicleIDs: []string{"v-" + team},
		Candidates: []Candidate{
			{Kind: "team", ID: team, Score: 0.8, Admissible: true},
			{Kind: "team", ID: "B", Score: 0.9, Violations: []gate.Violation{{RuleID: "HR-EM-003", Message: "capability coverage below 70%"}}},
		},
	}
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		sample("t1", "A", "committed", base),
		sample("t2", "C", "needs_reinforcement", base.Add(time.Hour)),
		sample("t3", "A", "committed", base.Add(2*time.Hour)),
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	checks := []struct {
		name string
		q    Query
		want int
	}{
		{"all", Query{}, 3},
		{"task", Query{TaskID: "t2"}, 1},
		{"resource", Query{ResourceID: "A"}, 2},
		{"vehicle", Query{ResourceID: "v-C"}, 1},
		{"rejected candidate", Query{ResourceID: "B"}, 3},
		{"outcome", Query{Outcome: "committed"}, 2},
		{"window", Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}, 1},
	}
	for _, c := range checks {
		out, err := s.Query(ctx, c.q)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if len(out) != c.want {
			t.Errorf("%s: got %d records want %d", c.name, len(out), c.want)
		}
	}
	out, _ := s.Query(ctx, Query{TaskID: "t1"})
	if len(out) == 1 && out[0].Candidates[1].Violations[0].RuleID != "HR-EM-003" {
		t.Fatalf("violations not preserved: %+v", out[0])
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore("file:journal_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "journal", "decisions.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore_ReadsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	rec := sample("t1", "A", "committed", time.Now())
	rec.Error = strings.Repeat("x", 200*1024)
	for i := 0; i < 8; i++ {
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := s.files()
	if len(files) < 2 {
		t.Fatalf("expected rotation, got %v", files)
	}
	out, err := s.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 8 {
		t.Fatalf("expected 8 records across backups got %d", len(out))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := s.(NopStore); !ok {
		t.Fatalf("expected NopStore got %T", s)
	}
	if _, err := New(Config{Backend: "sqlite"}); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := New(Config{Backend: "kafka", Path: "x"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
