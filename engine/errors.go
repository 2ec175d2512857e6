// Package engine implements the action primitives (C4), the collapse/fold
// engine (C5), the replacement graph (C6) and the orchestrator (C7) that
// together drive an interactive history rewrite (spec §4.4-§4.7).
package engine

import (
	"errors"
	"fmt"
)

// Error kinds from spec §7 not already defined by plan or reslock.
var (
	// ErrEmptyChangeset marks an action that produced no diff; the
	// orchestrator warns and continues rather than treating it as fatal.
	ErrEmptyChangeset = errors.New("action produced an empty changeset")

	// ErrAlreadyInProgress is returned by Start when histedit-state
	// already exists.
	ErrAlreadyInProgress = errors.New("histedit already in progress")

	// ErrMQApplied is returned by Start when an incompatible patch-queue
	// style overlay is active.
	ErrMQApplied = errors.New("histedit is incompatible with applied mq patches")

	// ErrNonDescendantContinue is returned by Continue when the working
	// copy's parent is not a descendant of the recorded parentnode.
	ErrNonDescendantContinue = errors.New("working copy is not a descendant of the suspended parent")

	// ErrDirty is returned by Start when the working copy has
	// uncommitted changes.
	ErrDirty = errors.New("working copy has uncommitted changes")

	// ErrNothingToEdit is returned by Start when the resolved range is
	// empty (exit code 1 per spec §6).
	ErrNothingToEdit = errors.New("nothing to edit")
)

// ConflictError is returned when a merge leaves unresolved files; the
// caller persists state and exits with its message (spec §7 Conflict).
type ConflictError struct {
	Unresolved int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unresolved conflicts (%d files); fix and run histedit --continue", e.Unresolved)
}

func (e *ConflictError) Unwrap() error { return ErrNeedsContinue }

// ErrNeedsContinue is a sentinel wrapped by ConflictError and by the always-
// suspend edit action, signaling the orchestrator to persist state and
// exit rather than treat the condition as a hard failure.
var ErrNeedsContinue = errors.New("histedit suspended, run --continue")
