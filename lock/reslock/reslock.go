// Package reslock implements the advisory repository lock of spec §4.1: a
// cross-process, cross-host lock over a named resource, represented
// on-disk by a symlink (or plain file) whose content is the owner
// identity "host:pid". It supports recursive acquisition by a single
// handle, stale-lock detection and breaking, and inheritance by a child
// process over an environment variable.
package reslock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/tidecore/histedit/lock/flock"
	"github.com/tidecore/histedit/utils"
)

// InheritEnvVar is the environment variable a parent process sets before
// spawning a child (e.g. an editor, or this tool invoked recursively) so
// the child recognizes the pre-existing on-disk entry as its own.
const InheritEnvVar = "HISTEDIT_LOCK_OWNER"

// Lock guards one named resource under dir. The working-copy lock and the
// store lock (spec §5) are two independent Lock values over distinct
// resource names, always acquired working-copy-first.
type Lock struct {
	dir      string
	resource string
	path     string

	// meta mediates the stale-lock-break race on this host: only one
	// local acquirer may unlink-and-recreate a dead owner's entry at a
	// time. gofrs/flock is repurposed here as that purely local
	// mutex — it cannot express the cross-host symlink semantics of the
	// resource lock itself, so it sits one level down instead.
	meta *flock.Lock

	mu        sync.Mutex
	refcount  int
	inherited bool
	ownerPID  int // os.Getpid() at the moment refcount went 0->1
}

// New returns a Lock for resource under dir (typically the repo's
// metadata directory, per spec §6 sjoin).
func New(dir, resource string) *Lock {
	path := filepath.Join(dir, resource+".lock")
	return &Lock{
		dir:      dir,
		resource: resource,
		path:     path,
		meta:     flock.New(path + ".break"),
	}
}

// FromInherited constructs a Lock that already considers the on-disk
// entry named by the HISTEDIT_LOCK_OWNER environment variable as held,
// for a child process started by a parent that called PrepareInherit.
// It returns nil if the environment variable is unset.
func FromInherited(dir, resource string) *Lock {
	owner := os.Getenv(InheritEnvVar)
	if owner == "" {
		return nil
	}
	l := New(dir, resource)
	l.refcount = 1
	l.inherited = true
	l.ownerPID = os.Getpid()
	return l
}

// Acquire attempts to take the lock, recursively if this handle already
// holds it. timeout follows spec §4.1 step 5: 0 returns immediately,
// negative retries indefinitely, positive sleeps one second per retry up
// to timeout attempts.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refcount > 0 {
		l.refcount++
		return nil
	}

	attempts := 0
	for {
		ok, held, err := l.tryAcquireLocked(ctx)
		if err != nil {
			return err
		}
		if ok {
			l.refcount = 1
			l.ownerPID = os.Getpid()
			return nil
		}

		if timeout == 0 {
			return held
		}
		if timeout > 0 {
			attempts++
			if time.Duration(attempts)*time.Second > timeout {
				return held
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// tryAcquireLocked runs one iteration of spec §4.1 steps 1-4. held is
// non-nil (and err nil) exactly when the resource is currently owned by
// someone else and ok is false.
func (l *Lock) tryAcquireLocked(ctx context.Context) (ok bool, held *HeldError, err error) {
	content := ownerString()

	created, err := createEntry(l.path, content)
	if err != nil {
		return false, nil, err
	}
	if created {
		return true, nil, nil
	}

	existing, err := readEntry(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with the owner's release; retry immediately.
			return l.tryAcquireLocked(ctx)
		}
		return false, nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}

	host, pid, ok := parseOwner(existing)
	if !ok {
		// Opaque content: can't evaluate staleness, so this is just a
		// held resource under an identity we can't introspect.
		return false, &HeldError{Resource: l.resource, Owner: existing}, nil
	}

	if host != hostname() {
		return false, &HeldError{Resource: l.resource, Owner: existing}, nil
	}

	if utils.VerifyProcess(pid, selfBinaryName()) {
		return false, &HeldError{Resource: l.resource, Owner: existing}, nil
	}

	// Stale: the owning pid is dead on our own host. Break it under the
	// secondary meta-lock, acquired with timeout 0 (spec §4.1 step 4): a
	// single non-blocking attempt, never a wait.
	acquired, breakErr := l.meta.TryLock(ctx)
	if breakErr != nil || !acquired {
		// Someone else is already breaking this lock; treat as held for
		// this round and let the outer retry loop try again.
		return false, &HeldError{Resource: l.resource, Owner: existing}, nil
	}
	defer l.meta.Unlock(context.Background()) //nolint:errcheck

	// Re-read under the meta-lock: another local racer may have already
	// broken and re-created the entry for itself.
	reread, rerr := readEntry(l.path)
	if rerr == nil && reread != existing {
		return false, &HeldError{Resource: l.resource, Owner: reread}, nil
	}

	log.WithFunc("reslock.breakStale").Infof(ctx, "breaking stale lock %s held by dead pid %d on %s", l.resource, pid, host)
	if err := unlinkEntry(l.path); err != nil {
		return false, nil, err
	}

	created, err = createEntry(l.path, content)
	if err != nil {
		return false, nil, err
	}
	if !created {
		// Another process won the race immediately after our unlink.
		return false, &HeldError{Resource: l.resource}, nil
	}
	return true, nil, nil
}

// Release decrements the refcount, unlinking the on-disk entry only when it
// reaches zero; no release callbacks are run. It is a no-op if the
// current process is not the one that acquired the handle (spec §4.1:
// "if the process that holds the handle has forked and the caller is not
// the original pid, release is a no-op").
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refcount == 0 {
		return nil
	}
	if os.Getpid() != l.ownerPID {
		return nil
	}

	l.refcount--
	if l.refcount > 0 {
		return nil
	}

	if l.inherited {
		// The handle is released locally but the on-disk entry belongs to
		// whoever we inherited it from (or our own parent handle); leave
		// it in place.
		return nil
	}
	return unlinkEntry(l.path)
}

// PrepareInherit marks the handle inherited — future Release calls run
// but do not unlink the on-disk entry — and returns the owner string a
// child process should be given (via InheritEnvVar) to treat the same
// entry as its own.
func (l *Lock) PrepareInherit() (owner string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refcount == 0 {
		return "", fmt.Errorf("%w: prepare-inherit on an unheld lock", ErrContractViolation)
	}
	if l.inherited {
		return "", fmt.Errorf("%w: prepare-inherit called twice", ErrContractViolation)
	}
	l.inherited = true
	return ownerString(), nil
}

// Reacquire clears the inherited flag set by PrepareInherit, restoring
// normal release-time unlink behavior.
func (l *Lock) Reacquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.inherited {
		return fmt.Errorf("%w: reacquire without a prior prepare-inherit", ErrContractViolation)
	}
	l.inherited = false
	return nil
}
