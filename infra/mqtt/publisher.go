package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
)

// MockNotifier records dispatch notices in memory. It is used by tests and by
// the CLI when no broker is configured.
type MockNotifier struct {
	Notices  map[string]coremqtt.Notice
	FailIDs  map[string]bool
	NoAckIDs map[string]bool
	mu       sync.Mutex
	acks     map[string]bool
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		Notices:  make(map[string]coremqtt.Notice),
		FailIDs:  make(map[string]bool),
		NoAckIDs: make(map[string]bool),
		acks:     make(map[string]bool),
	}
}

// SendDispatch records the notice or fails for teams listed in FailIDs.
func (m *MockNotifier) SendDispatch(n coremqtt.Notice) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[n.TeamID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Notices[n.TeamID] = n
	commandID := fmt.Sprintf("cmd-%s-%s", n.TeamID, n.DispatchID)
	m.acks[commandID] = !m.NoAckIDs[n.TeamID]
	return commandID, nil
}

// WaitForAck simulates an immediate acknowledgment, or a timeout for teams
// listed in NoAckIDs.
func (m *MockNotifier) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.acks[commandID]
	delete(m.acks, commandID)
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrAckTimeout, commandID)
	}
	return true, nil
}

// Sent returns a copy of the recorded notices keyed by team.
func (m *MockNotifier) Sent() map[string]coremqtt.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]coremqtt.Notice, len(m.Notices))
	for k, v := range m.Notices {
		out[k] = v
	}
	return out
}
