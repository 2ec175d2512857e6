package engine

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

// Deps bundles the external collaborators an action primitive needs. All
// fields are required; memrepo provides a reference implementation for
// tests.
type Deps struct {
	Repo    vcs.Repo
	Merge   vcs.Merge
	Copies  vcs.Copies
	Editor  vcs.Editor
	CurrentUser func() string
}

// Result is what an action primitive hands back to the orchestrator's
// action loop: the parent the next action should build atop, and zero or
// more replacement-graph entries to append.
type Result struct {
	Parent       vcs.CommitID
	Replacements []store.Replacement
}

// applyDelta checks the working copy out to parent, then three-way-merges
// the delta target.Parent1 -> target onto it, matching the "update to
// current_parent, merge parent1->target" step shared by pick/edit/fold/mess
// (spec §4.4).
func applyDelta(ctx context.Context, d Deps, parent vcs.CommitID, target vcs.Commit) error {
	if _, err := d.Merge.Update(ctx, d.Repo, parent, false, true, vcs.NullID); err != nil {
		return fmt.Errorf("checkout %s: %w", parent.Short(), err)
	}
	stats, err := d.Merge.Update(ctx, d.Repo, target.ID, true, true, target.Parent1)
	if err != nil {
		return fmt.Errorf("merge delta for %s: %w", target.ID.Short(), err)
	}
	if err := d.Repo.SetDirstateParents(ctx, parent, vcs.NullID); err != nil {
		return fmt.Errorf("reset dirstate parents to %s: %w", parent.Short(), err)
	}
	if stats.Unresolved > 0 {
		return &ConflictError{Unresolved: stats.Unresolved}
	}
	return nil
}

// Pick applies target's exact delta on top of parent and commits it
// verbatim with target's metadata (spec §4.4 pick).
func Pick(ctx context.Context, d Deps, parent vcs.CommitID, target vcs.Commit) (Result, error) {
	if target.Parent1 == parent {
		// Reentrant no-op: already in place, nothing to synthesize, no
		// replacement entry at all (supplemented from the original; see
		// SPEC_FULL.md).
		log.WithFunc("engine.Pick").Debugf(ctx, "changeset %s already a child of %s, no-op", target.ID.Short(), parent.Short())
		return Result{Parent: target.ID}, nil
	}

	if err := applyDelta(ctx, d, parent, target); err != nil {
		return Result{}, err
	}

	newID, empty, err := d.Repo.Commit(ctx, target.Description, target.Author, target.Date, target.Extra)
	if err != nil {
		return Result{}, fmt.Errorf("commit pick of %s: %w", target.ID.Short(), err)
	}
	if empty {
		log.WithFunc("engine.Pick").Warnf(ctx, "%w: %s", ErrEmptyChangeset, target.ID.Short())
		return Result{Parent: parent}, nil
	}
	return Result{Parent: newID, Replacements: []store.Replacement{{Precursor: target.ID, Successors: []vcs.CommitID{newID}}}}, nil
}

// Edit applies target's delta exactly as Pick does, then always suspends
// for the user to amend and commit manually (spec §4.4 edit).
func Edit(ctx context.Context, d Deps, parent vcs.CommitID, target vcs.Commit) (Result, error) {
	if err := applyDelta(ctx, d, parent, target); err != nil {
		return Result{}, err
	}
	return Result{}, ErrNeedsContinue
}

// Drop discards target's content entirely: the working copy parent is
// unchanged and the replacement graph records an empty successor tuple
// (spec §4.4 drop).
func Drop(_ context.Context, _ Deps, parent vcs.CommitID, target vcs.Commit) (Result, error) {
	return Result{Parent: parent, Replacements: []store.Replacement{{Precursor: target.ID}}}, nil
}

// Mess applies target's delta, lets the user rewrite the message via the
// editor, and commits with the edited message but target's author/date/
// extra (spec §4.4 mess).
func Mess(ctx context.Context, d Deps, parent vcs.CommitID, target vcs.Commit) (Result, error) {
	if err := applyDelta(ctx, d, parent, target); err != nil {
		return Result{}, err
	}

	newText, err := d.Editor.Edit(ctx, target.Description)
	if err != nil {
		return Result{}, fmt.Errorf("edit message for %s: %w", target.ID.Short(), err)
	}

	newID, empty, err := d.Repo.Commit(ctx, newText, target.Author, target.Date, target.Extra)
	if err != nil {
		return Result{}, fmt.Errorf("commit mess of %s: %w", target.ID.Short(), err)
	}
	if empty || newID == target.ID {
		return Result{Parent: parent}, nil
	}
	return Result{Parent: newID, Replacements: []store.Replacement{{Precursor: target.ID, Successors: []vcs.CommitID{newID}}}}, nil
}
