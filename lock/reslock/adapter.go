package reslock

import (
	"context"
	"errors"

	locklib "github.com/tidecore/histedit/lock"
)

// locker adapts a *Lock to the generic lock.Locker interface.
type locker struct{ l *Lock }

var _ locklib.Locker = (*locker)(nil)

// AsLocker exposes l through the generic lock.Locker contract.
func (l *Lock) AsLocker() locklib.Locker { return &locker{l: l} }

func (a *locker) Lock(ctx context.Context) error {
	return a.l.Acquire(ctx, -1)
}

func (a *locker) Unlock(ctx context.Context) error {
	return a.l.Release(ctx)
}

func (a *locker) TryLock(ctx context.Context) (bool, error) {
	err := a.l.Acquire(ctx, 0)
	if err == nil {
		return true, nil
	}
	var held *HeldError
	if errors.As(err, &held) {
		return false, nil
	}
	return false, err
}
