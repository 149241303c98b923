package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/rescuedispatch/core/events"
	coremetrics "github.com/kilianp07/rescuedispatch/core/metrics"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// acknowledgments, gate rejections and task transitions. It stops when the
// context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.SubscribeBuffered(64)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) {
	now := time.Now()
	switch e := ev.(type) {
	case events.AckEvent:
		if r, ok := sink.(coremetrics.DispatchAckRecorder); ok {
			errStr := ""
			if e.Err != nil {
				errStr = e.Err.Error()
			}
			_ = r.RecordDispatchAck(coremetrics.DispatchAckEvent{
				DispatchID:   e.DispatchID,
				TeamID:       e.TeamID,
				Acknowledged: e.Acknowledged,
				Latency:      e.Latency,
				Error:        errStr,
				Time:         now,
			})
		}
	case events.CandidateRejected:
		if r, ok := sink.(coremetrics.RejectionRecorder); ok {
			ids := make([]string, 0, len(e.Violations))
			for _, v := range e.Violations {
				ids = append(ids, v.RuleID)
			}
			_ = r.RecordRejection(coremetrics.RejectionEvent{
				TaskID:      e.TaskID,
				Kind:        e.Kind,
				CandidateID: e.CandidateID,
				RuleIDs:     ids,
				Time:        now,
			})
		}
	case events.TaskAdvanced:
		transition(sink, e.TaskID, e.From, e.To, e.At)
	case events.TaskReleased:
		transition(sink, e.TaskID, e.From, e.Status, e.At)
	case events.TaskAssigned:
		if e.Type == model.DispatchInitial {
			transition(sink, e.TaskID, "", model.TaskAssigned, e.At)
		}
	case events.NeedsResources:
		transition(sink, e.TaskID, model.TaskPending, model.TaskPlanning, e.At)
	}
}

func transition(sink coremetrics.MetricsSink, id string, from, to model.TaskStatus, at time.Time) {
	r, ok := sink.(coremetrics.TaskTransitionRecorder)
	if !ok {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	_ = r.RecordTaskTransition(coremetrics.TaskTransitionEvent{TaskID: id, From: from, To: to, Time: at})
}
