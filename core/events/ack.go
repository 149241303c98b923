package events

import "time"

// AckEvent reports the outcome of a dispatch notice sent to a team.
type AckEvent struct {
	DispatchID   string
	TeamID       string
	Acknowledged bool
	Err          error
	Latency      time.Duration
}
