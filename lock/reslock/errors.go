package reslock

import (
	"errors"
	"fmt"
)

// ErrLockHeld is the sentinel wrapped by HeldError.
var ErrLockHeld = errors.New("lock held")

// ErrLockUnavailable wraps filesystem errors encountered while attempting
// to create, read, or unlink the on-disk lock entry.
var ErrLockUnavailable = errors.New("lock unavailable")

// ErrContractViolation is returned when the inheritance API is misused —
// Reacquire on a handle that was never PrepareInherit'd, or a double
// PrepareInherit — a program bug, not a runtime condition to retry.
var ErrContractViolation = errors.New("lock contract violated")

// HeldError reports the identity currently holding a contested resource.
type HeldError struct {
	Resource string
	Owner    string // "host:pid", or the raw opaque content if unparsable
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("resource %q locked by %s", e.Resource, e.Owner)
}

func (e *HeldError) Unwrap() error { return ErrLockHeld }
