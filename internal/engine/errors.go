package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for workflow operations. Callers match with errors.Is;
// the typed errors below carry the detail.
var (
	// ErrInvalidTransition marks an operation invoked from a state that
	// does not permit it. These are programming or sequencing errors and
	// are never silently ignored.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConstraint marks a creation that would violate a structural
	// invariant, such as a second live assignment for a round.
	ErrConstraint = errors.New("constraint violation")
)

// InvalidTransitionError reports the operation, the entity and the status
// it was in.
type InvalidTransitionError struct {
	Op     string
	Entity string
	ID     string
	Status string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %q", e.Op, e.Entity, e.ID, e.Status)
}

func (e InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConstraintError reports a violated creation invariant.
type ConstraintError struct {
	Msg string
}

func (e ConstraintError) Error() string { return e.Msg }

func (e ConstraintError) Is(target error) bool { return target == ErrConstraint }
