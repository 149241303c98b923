package monitoring

import (
	"errors"
	"testing"

	"github.com/kilianp07/rescuedispatch/config"
	coremon "github.com/kilianp07/rescuedispatch/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", m)
	}
}

func TestNewSentryMonitorBadDSN(t *testing.T) {
	if _, err := NewSentryMonitor(config.SentryConfig{DSN: "::not-a-dsn"}); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}

func TestSentryMonitorCapture(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{DSN: "https://public@example.com/1", Environment: "test"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	m.CaptureException(errors.New("ledger drift"), map[string]string{"vehicle_id": "v1"})
	m.CaptureException(nil, nil)
	m.CapturePanic("boom")
}
