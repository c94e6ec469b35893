package ecs

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleEntity matches every *StaleEntityError.
	ErrStaleEntity = errors.New("ecs: stale entity")

	// ErrPendingReservations is returned (or panicked with) when an exclusive
	// mutation is attempted while reserved entities have not been flushed yet.
	ErrPendingReservations = errors.New("ecs: reserved entities must be flushed first")

	// ErrIndexSpaceExhausted is panicked with when no more slot indices are left.
	ErrIndexSpaceExhausted = errors.New("ecs: entity index space exhausted")
)

// StaleEntityError reports an entity that does not refer to a live slot anymore.
type StaleEntityError struct {
	Entity Entity
	Reason string
}

func (e *StaleEntityError) Error() string {
	return fmt.Sprintf("ecs: stale entity %s: %s", e.Entity, e.Reason)
}

func (e *StaleEntityError) Is(target error) bool {
	return target == ErrStaleEntity
}

func staleEntity(e Entity, reason string) error {
	return &StaleEntityError{Entity: e, Reason: reason}
}
