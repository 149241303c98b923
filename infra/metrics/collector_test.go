package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/rescuedispatch/core/events"
	"github.com/kilianp07/rescuedispatch/core/gate"
	coremetrics "github.com/kilianp07/rescuedispatch/core/metrics"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/internal/eventbus"
)

type captureSink struct {
	coremetrics.NopSink
	mu          sync.Mutex
	acks        []coremetrics.DispatchAckEvent
	rejections  []coremetrics.RejectionEvent
	transitions []coremetrics.TaskTransitionEvent
}

func (c *captureSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, ev)
	return nil
}

func (c *captureSink) RecordRejection(ev coremetrics.RejectionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections = append(c.rejections, ev)
	return nil
}

func (c *captureSink) RecordTaskTransition(ev coremetrics.TaskTransitionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, ev)
	return nil
}

func (c *captureSink) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acks), len(c.rejections), len(c.transitions)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.AckEvent{DispatchID: "d1", TeamID: "A", Acknowledged: true, Latency: time.Second})
	bus.Publish(events.CandidateRejected{TaskID: "t1", Kind: "team", CandidateID: "B", Violations: []gate.Violation{{RuleID: "HR-EM-001"}}})
	bus.Publish(events.TaskAdvanced{TaskID: "t1", From: model.TaskAssigned, To: model.TaskDispatched})
	bus.Publish(events.TaskReleased{TaskID: "t1", From: model.TaskDispatched, Status: model.TaskCancelled})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a, r, tr := sink.counts()
		if a == 1 && r == 1 && tr == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	a, r, tr := sink.counts()
	if a != 1 || r != 1 || tr != 2 {
		t.Fatalf("unexpected counts acks=%d rejections=%d transitions=%d", a, r, tr)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.rejections[0].RuleIDs[0] != "HR-EM-001" {
		t.Fatalf("rule id not forwarded: %+v", sink.rejections[0])
	}
	if sink.transitions[1].To != model.TaskCancelled {
		t.Fatalf("release transition not recorded: %+v", sink.transitions)
	}
}
