package mqtt

import "errors"

var (
	// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrUnknownCommand is returned when waiting on a command that was never sent
	// or whose acknowledgment was already consumed.
	ErrUnknownCommand = errors.New("unknown command")
)
