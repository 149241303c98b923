// Package events defines the engine events published on the event bus.
//
// Available event types:
//   - NeedsResources: a task entered planning and waits for a dispatch
//   - TaskAssigned: a dispatch was committed
//   - TaskReleased: a task reached a terminal state and freed its resources
//   - TaskAdvanced: a field status update moved a task forward
//   - CandidateRejected: the hard gate vetoed a team, vehicle or plan
//   - AckEvent: a team acknowledged (or missed) a dispatch notice
package events
