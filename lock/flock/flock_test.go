package flock

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestLockUnlockBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := New(path)
	ctx := context.Background()

	if err := l.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestTryLockFailsWhileHeldBySameInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := New(path)
	ctx := context.Background()

	if err := l.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer l.Unlock(ctx)

	ok, err := l.TryLock(ctx)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if ok {
		t.Fatal("TryLock() = true while already held by the same instance's in-process token")
	}
}

// TestTryLockFailsAcrossInstances covers the cross-process half of the
// guarantee: a second Lock value pointed at the same path must not be able
// to acquire the flock(2) while the first holds it, even though the two
// have independent in-process channels.
func TestTryLockFailsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	holder := New(path)
	contender := New(path)
	ctx := context.Background()

	if err := holder.Lock(ctx); err != nil {
		t.Fatalf("holder.Lock() error = %v", err)
	}
	defer holder.Unlock(ctx)

	ok, err := contender.TryLock(ctx)
	if err != nil {
		t.Fatalf("contender.TryLock() error = %v", err)
	}
	if ok {
		t.Fatal("contender.TryLock() = true while holder still holds the flock")
	}
}

func TestUnlockThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := New(path)
	ctx := context.Background()

	if err := l.Lock(ctx); err != nil {
		t.Fatalf("first Lock() error = %v", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := l.Lock(ctx); err != nil {
		t.Fatalf("second Lock() after Unlock() error = %v", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("second Unlock() error = %v", err)
	}
}

func TestLockBlocksUntilContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	holder := New(path)
	contender := New(path)

	if err := holder.Lock(context.Background()); err != nil {
		t.Fatalf("holder.Lock() error = %v", err)
	}
	defer holder.Unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := contender.Lock(ctx); err == nil {
		t.Fatal("contender.Lock() error = nil, want a context-deadline error")
	}

	// The channel token taken by the failed Lock attempt must have been
	// released, so a fresh TryLock from the same instance doesn't
	// self-deadlock against its own in-process semaphore.
	holder.Unlock(context.Background())
	ok, err := contender.TryLock(context.Background())
	if err != nil {
		t.Fatalf("TryLock() after cancelled Lock() error = %v", err)
	}
	if !ok {
		t.Fatal("TryLock() = false, want the failed Lock() to have released its in-process token")
	}
}
