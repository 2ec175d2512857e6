package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

// ErrNoSuspendedEdit is returned by Continue/Abort when no histedit-state
// file exists.
var ErrNoSuspendedEdit = fmt.Errorf("no suspended histedit to continue")

// Continue resumes a suspended edit (spec §4.7 continue()).
func (o *Orchestrator) Continue(ctx context.Context) error {
	state, err := o.Store.Read()
	if err != nil {
		if errors.Is(err, store.ErrNoState) {
			return ErrNoSuspendedEdit
		}
		return fmt.Errorf("read state: %w", err)
	}
	if len(state.Plan) == 0 {
		return fmt.Errorf("%w: persisted plan is empty", ErrNoSuspendedEdit)
	}

	if err := o.WCLock.Acquire(ctx, -1); err != nil {
		return fmt.Errorf("acquire working-copy lock: %w", err)
	}
	defer o.WCLock.Release(ctx) //nolint:errcheck

	suspended, rest := state.Plan.Pop()
	target, err := o.Deps.Repo.Get(ctx, suspended.Target)
	if err != nil {
		return fmt.Errorf("load suspended target %s: %w", suspended.Target.Short(), err)
	}

	graph := FromRaw(state.Replacements)

	result, err := o.resolveSuspended(ctx, state.ParentNode, suspended.Action, target)
	if err != nil {
		return err
	}
	graph.Append(result.Replacements...)

	state.ParentNode = result.Parent
	state.Plan = rest
	state.Replacements = nil

	return o.runLoop(ctx, state, graph)
}

// resolveSuspended commits the outcome of the action the user was left
// mid-way through, mirroring what that action's primitive would have done
// had it not needed to suspend. A user resolving a conflict may either
// leave the fix pending in the working copy (dp1 still parentNode) or
// commit it themselves, possibly as more than one commit (spec §9's open
// question: "otherwise attaches each [user commit] as a successor of the
// original") — commitsSince covers both, uniformly across every action
// that can suspend.
func (o *Orchestrator) resolveSuspended(ctx context.Context, parentNode vcs.CommitID, action plan.Action, target vcs.Commit) (Result, error) {
	dp1, _, err := o.Deps.Repo.DirstateParents(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read dirstate parents: %w", err)
	}

	internal, err := commitsSince(ctx, o.Deps.Repo, parentNode, dp1)
	if err != nil {
		return Result{}, err
	}

	if len(internal) > 0 {
		last := internal[len(internal)-1]
		ids := make([]vcs.CommitID, len(internal))
		for i, c := range internal {
			ids[i] = c.ID
		}
		if action == plan.Fold {
			parentCommit, err := o.Deps.Repo.Get(ctx, parentNode)
			if err != nil {
				return Result{}, fmt.Errorf("load parent %s: %w", parentNode.Short(), err)
			}
			return finishFold(ctx, o.Deps, parentCommit, target, last, internal[:len(internal)-1])
		}
		return Result{
			Parent:       last.ID,
			Replacements: []store.Replacement{{Precursor: target.ID, Successors: ids}},
		}, nil
	}

	// No manual commit: the user left the resolved changes pending in the
	// working copy. Edit always requires an explicit amend+commit, so an
	// empty internal chain here means the working copy never advanced.
	if action == plan.Edit {
		return Result{}, ErrNonDescendantContinue
	}

	message := target.Description
	if action == plan.Fold || action == plan.Mess {
		edited, err := o.Deps.Editor.Edit(ctx, target.Description)
		if err != nil {
			return Result{}, fmt.Errorf("edit message: %w", err)
		}
		message = edited
	}

	newID, empty, err := o.Deps.Repo.Commit(ctx, message, target.Author, target.Date, target.Extra)
	if err != nil {
		return Result{}, fmt.Errorf("commit resolved changes: %w", err)
	}

	switch action {
	case plan.Fold:
		if empty {
			return Result{Parent: parentNode}, nil
		}
		parentCommit, err := o.Deps.Repo.Get(ctx, parentNode)
		if err != nil {
			return Result{}, fmt.Errorf("load parent %s: %w", parentNode.Short(), err)
		}
		newCommit, err := o.Deps.Repo.Get(ctx, newID)
		if err != nil {
			return Result{}, fmt.Errorf("load resolved fold commit %s: %w", newID.Short(), err)
		}
		return finishFold(ctx, o.Deps, parentCommit, target, newCommit, nil)
	default: // pick and mess: the resolved working copy becomes target's successor
		if empty {
			return Result{Parent: parentNode}, nil
		}
		return Result{
			Parent:       newID,
			Replacements: []store.Replacement{{Precursor: target.ID, Successors: []vcs.CommitID{newID}}},
		}, nil
	}
}

// commitsSince walks the working copy's history backward from `to` via
// Parent1 until it reaches `from`, returning the intervening commits in
// ancestor-to-descendant order (from excluded, to included). It returns
// ErrNonDescendantContinue if the walk runs off the root without passing
// through from.
func commitsSince(ctx context.Context, repo vcs.Repo, from, to vcs.CommitID) ([]vcs.Commit, error) {
	if from == to {
		return nil, nil
	}
	var rev []vcs.Commit
	cur := to
	for {
		c, err := repo.Get(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("commits since: load %s: %w", cur.Short(), err)
		}
		rev = append(rev, c)
		if c.Parent1 == from {
			break
		}
		if c.Parent1.IsNull() {
			return nil, ErrNonDescendantContinue
		}
		cur = c.Parent1
	}
	out := make([]vcs.Commit, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out, nil
}
