package dispatch

import (
	"time"

	"github.com/kilianp07/rescuedispatch/core/events"
	"github.com/kilianp07/rescuedispatch/core/model"
	"github.com/kilianp07/rescuedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
)

// notify sends the dispatch notice to the team in the background and
// publishes the acknowledgment outcome. It is a no-op without a notifier.
func (e *Engine) notify(task model.Task, rec model.DispatchRecord) {
	e.mu.RLock()
	n := e.notifier
	e.mu.RUnlock()
	if n == nil {
		return
	}
	notice := coremqtt.Notice{
		DispatchID:  rec.ID,
		TaskID:      task.ID,
		TeamID:      rec.TeamID,
		VehicleIDs:  rec.VehicleIDs,
		Type:        rec.Type,
		Priority:    task.Priority,
		Destination: rec.Destination,
		DeadlineAt:  task.DeadlineAt,
		Mission:     rec.Mission,
	}
	e.notifications.Add(1)
	go func() {
		defer e.notifications.Done()
		defer monitoring.Recover()

		start := time.Now()
		cmdID, err := n.SendDispatch(notice)
		if err != nil {
			notifyFailures.Inc()
			e.log.Errorf("dispatch %s: notify team %s: %v", rec.ID, rec.TeamID, err)
			e.publish(events.AckEvent{DispatchID: rec.ID, TeamID: rec.TeamID, Err: err})
			return
		}
		ok, err := n.WaitForAck(cmdID, e.cfg.AckTimeout())
		lat := time.Since(start)
		ackLatency.WithLabelValues(boolLabel(ok)).Observe(lat.Seconds())
		if err != nil || !ok {
			e.log.Warnf("dispatch %s: team %s did not acknowledge: %v", rec.ID, rec.TeamID, err)
		}
		e.publish(events.AckEvent{DispatchID: rec.ID, TeamID: rec.TeamID, Acknowledged: ok, Err: err, Latency: lat})
	}()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
