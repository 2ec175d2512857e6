package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

// Abort discards a suspended edit (spec §4.7 abort()): the working copy
// is returned to the original topmost, every temporary and new commit
// created during the run is stripped, and histedit-state is removed.
func (o *Orchestrator) Abort(ctx context.Context) error {
	state, err := o.Store.Read()
	if err != nil {
		if errors.Is(err, store.ErrNoState) {
			return ErrNoSuspendedEdit
		}
		return fmt.Errorf("read state: %w", err)
	}

	if err := o.WCLock.Acquire(ctx, -1); err != nil {
		return fmt.Errorf("acquire working-copy lock: %w", err)
	}
	defer o.WCLock.Release(ctx) //nolint:errcheck

	graph := FromRaw(state.Replacements)
	reduced, err := graph.Reduce(ctx, o.Deps.Repo.ChangelogRev)
	if err != nil {
		return fmt.Errorf("reduce replacement graph: %w", err)
	}

	if _, err := o.Deps.Merge.Update(ctx, o.Deps.Repo, state.Topmost, false, true, vcs.NullID); err != nil {
		return fmt.Errorf("update to original topmost: %w", err)
	}

	toStrip := make([]vcs.CommitID, 0, len(reduced.New)+len(reduced.TmpNodes))
	for n := range reduced.New {
		toStrip = append(toStrip, n)
	}
	for t := range reduced.TmpNodes {
		toStrip = append(toStrip, t)
	}
	ordered, err := rootsFirst(ctx, toStrip, o.Deps.Repo.ChangelogRev)
	if err != nil {
		return fmt.Errorf("order abort strip targets: %w", err)
	}
	if len(ordered) > 0 {
		if err := o.withStoreLock(ctx, func(ctx context.Context) error {
			return o.Repair.Strip(ctx, ordered)
		}); err != nil {
			return fmt.Errorf("strip run commits: %w", err)
		}
	}

	return o.Store.Remove()
}
