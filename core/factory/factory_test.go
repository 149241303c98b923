package factory

import (
	"strings"
	"testing"
	"time"
)

type sink struct {
	url     string
	timeout time.Duration
	batch   int
}

type sinkConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Batch   int           `json:"batch"`
}

func newSinkRegistry(t *testing.T) *Registry[*sink] {
	t.Helper()
	reg := NewRegistry[*sink]()
	if err := reg.Register("Influx", func(conf map[string]any) (*sink, error) {
		var c sinkConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sink{url: c.URL, timeout: c.Timeout, batch: c.Batch}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegistry_Create(t *testing.T) {
	reg := newSinkRegistry(t)
	s, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{
		"url": "http://influx:8086", "timeout": "2s", "batch": "50",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.url != "http://influx:8086" || s.timeout != 2*time.Second || s.batch != 50 {
		t.Fatalf("unexpected sink %+v", s)
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := newSinkRegistry(t)
	checks := []struct {
		name string
		fn   func() error
		want string
	}{
		{"duplicate", func() error { return reg.Register("INFLUX", func(map[string]any) (*sink, error) { return nil, nil }) }, "already registered"},
		{"nil factory", func() error { return reg.Register("x", nil) }, "nil factory"},
		{"empty name", func() error { return reg.Register(" ", func(map[string]any) (*sink, error) { return nil, nil }) }, "empty type"},
		{"unknown type", func() error { _, err := reg.Create(ModuleConfig{Type: "prom"}); return err }, "known: influx"},
		{"unknown key", func() error {
			_, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"bucket": "b"}})
			return err
		}, "bucket"},
	}
	for _, c := range checks {
		err := c.fn()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected error containing %q got %v", c.name, c.want, err)
		}
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := newSinkRegistry(t)
	_ = reg.Register("nop", func(map[string]any) (*sink, error) { return &sink{}, nil })
	names := reg.Names()
	if len(names) != 2 || names[0] != "influx" || names[1] != "nop" {
		t.Fatalf("unexpected names %v", names)
	}
}
