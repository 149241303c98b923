package metrics

import (
	"time"

	"github.com/kilianp07/rescuedispatch/core/model"
)

// DispatchResult is one committed dispatch to be recorded.
type DispatchResult struct {
	DispatchID   string
	TaskID       string
	DisasterType model.DisasterType
	Priority     model.Priority
	Type         model.DispatchType
	TeamID       string
	VehicleIDs   []string
	Score        float64
	Attempts     int
	Time         time.Time
}

// MetricsSink records dispatch results for observability purposes.
type MetricsSink interface {
	RecordDispatchResult(results []DispatchResult) error
}

// DispatchAckEvent captures the acknowledgment of a dispatch notice.
type DispatchAckEvent struct {
	DispatchID   string
	TeamID       string
	Acknowledged bool
	Latency      time.Duration
	Error        string
	Time         time.Time
}

// DispatchAckRecorder records ACK events.
type DispatchAckRecorder interface {
	RecordDispatchAck(ev DispatchAckEvent) error
}

// RejectionEvent records a candidate vetoed by the hard gate.
type RejectionEvent struct {
	TaskID      string
	Kind        string
	CandidateID string
	RuleIDs     []string
	Time        time.Time
}

// RejectionRecorder records gate rejections.
type RejectionRecorder interface {
	RecordRejection(ev RejectionEvent) error
}

// TaskTransitionEvent records a task status change.
type TaskTransitionEvent struct {
	TaskID string
	From   model.TaskStatus
	To     model.TaskStatus
	Time   time.Time
}

// TaskTransitionRecorder records task transitions.
type TaskTransitionRecorder interface {
	RecordTaskTransition(ev TaskTransitionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatchResult([]DispatchResult) error    { return nil }
func (NopSink) RecordDispatchAck(DispatchAckEvent) error       { return nil }
func (NopSink) RecordRejection(RejectionEvent) error           { return nil }
func (NopSink) RecordTaskTransition(TaskTransitionEvent) error { return nil }
