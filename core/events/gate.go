package events

import "github.com/kilianp07/rescuedispatch/core/gate"

// CandidateRejected is published when the hard gate vetoes a candidate.
// Kind is "team", "vehicle" or "plan".
type CandidateRejected struct {
	TaskID      string
	Kind        string
	CandidateID string
	Violations  []gate.Violation
}
