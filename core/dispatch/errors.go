package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/rescuedispatch/core/ledger"
	"github.com/kilianp07/rescuedispatch/core/store"
)

var (
	// ErrNotFound is returned when a referenced task, team or vehicle does not
	// exist.
	ErrNotFound = store.ErrNotFound
	// ErrConcurrentClaim is returned when a resource was claimed by another
	// dispatch between scoring and commit.
	ErrConcurrentClaim = errors.New("resource already claimed")
	// ErrInvariantViolation reports a capacity ledger drift.
	ErrInvariantViolation = ledger.ErrInvariantViolation
	// ErrInvalidRequest is returned for malformed requests and for tasks in a
	// state that cannot receive the requested dispatch.
	ErrInvalidRequest = errors.New("invalid dispatch request")
)

// Claim kinds reported by ClaimError.
const (
	ClaimTask    = "task"
	ClaimTeam    = "team"
	ClaimVehicle = "vehicle"
	ClaimStore   = "store"
)

// ClaimError describes which resource lost a concurrent claim.
type ClaimError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ClaimError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s: %s", ErrConcurrentClaim, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrConcurrentClaim, e.Kind, e.ID, e.Reason)
}

func (e *ClaimError) Unwrap() error { return ErrConcurrentClaim }

func claim(kind, id, format string, args ...any) error {
	return &ClaimError{Kind: kind, ID: id, Reason: fmt.Sprintf(format, args...)}
}
