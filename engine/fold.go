package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

// foldTempMessage is the placeholder message a temporary fold commit is
// given before finishFold replaces it with the combined message.
func foldTempMessage(target vcs.CommitID) string {
	return fmt.Sprintf("fold-temp-revision %s", target.Short())
}

// chain walks the linear history from last back to first via Parent1,
// returning the commits in ancestor-to-descendant order (first..last
// inclusive), as Collapse needs to union their touched files.
func chain(ctx context.Context, repo vcs.Repo, first, last vcs.Commit) ([]vcs.Commit, error) {
	if first.ID == last.ID {
		return []vcs.Commit{first}, nil
	}
	var rev []vcs.Commit
	cur := last
	for {
		rev = append(rev, cur)
		if cur.ID == first.ID {
			break
		}
		if cur.Parent1.IsNull() {
			return nil, fmt.Errorf("fold chain: %s is not an ancestor of %s", first.ID.Short(), last.ID.Short())
		}
		next, err := repo.Get(ctx, cur.Parent1)
		if err != nil {
			return nil, fmt.Errorf("fold chain: load %s: %w", cur.Parent1.Short(), err)
		}
		cur = next
	}
	out := make([]vcs.Commit, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out, nil
}

// Collapse synthesizes one commit representing the net effect of first..last
// (inclusive, linear) on top of first.Parent1 (spec §4.5). It never touches
// the working copy.
func Collapse(ctx context.Context, d Deps, first, last vcs.Commit, message, author string, date time.Time, extra map[string]string) (id vcs.CommitID, empty bool, err error) {
	commits, err := chain(ctx, d.Repo, first, last)
	if err != nil {
		return vcs.CommitID{}, false, err
	}

	base, err := d.Repo.Get(ctx, first.Parent1)
	if err != nil {
		return vcs.CommitID{}, false, fmt.Errorf("collapse: load base %s: %w", first.Parent1.Short(), err)
	}

	copied, err := d.Copies.PathCopies(ctx, first, last)
	if err != nil {
		return vcs.CommitID{}, false, fmt.Errorf("collapse: pathcopies: %w", err)
	}

	fileSet := make(map[string]struct{})
	for i, c := range commits {
		parent := base
		if i > 0 {
			parent = commits[i-1]
		}
		for _, f := range c.Files(parent) {
			fileSet[f] = struct{}{}
		}
	}

	var files []string
	for f := range fileSet {
		if reverted(f, last, base) {
			continue
		}
		files = append(files, f)
	}

	editedMessage, err := d.Editor.Edit(ctx, message)
	if err != nil {
		return vcs.CommitID{}, false, fmt.Errorf("collapse: edit message: %w", err)
	}

	if len(files) == 0 {
		return vcs.CommitID{}, true, nil
	}

	fn := func(path string) (*vcs.FileData, error) {
		entry, ok := last.Manifest[path]
		if !ok {
			return nil, nil // removed
		}
		return &vcs.FileData{Content: entry.Content, Flags: entry.Flags, CopiedFrom: copied[path]}, nil
	}

	newID, err := d.Repo.MemCtx(ctx, [2]vcs.CommitID{first.Parent1, first.Parent2}, editedMessage, author, date, extra, files, fn)
	if err != nil {
		return vcs.CommitID{}, false, fmt.Errorf("collapse: memctx: %w", err)
	}
	return newID, false, nil
}

// reverted reports whether path's net effect across the folded range
// cancels out against base — present in neither last nor base, or present
// in both with identical content and flags (spec §4.5 step 3).
func reverted(path string, last, base vcs.Commit) bool {
	lastEntry, inLast := last.Manifest[path]
	baseEntry, inBase := base.Manifest[path]
	if !inLast && !inBase {
		return true
	}
	if inLast && inBase {
		return lastEntry.Flags == baseEntry.Flags && string(lastEntry.Content) == string(baseEntry.Content)
	}
	return false
}

// Fold applies target's delta on top of parent, commits a temporary
// revision, then folds it together with parent's own commit into one
// combined commit (spec §4.4 fold + finishFold).
func Fold(ctx context.Context, d Deps, parent vcs.CommitID, target vcs.Commit) (Result, error) {
	if err := applyDelta(ctx, d, parent, target); err != nil {
		return Result{}, err
	}

	tempID, empty, err := d.Repo.Commit(ctx, foldTempMessage(target.ID), target.Author, target.Date, target.Extra)
	if err != nil {
		return Result{}, fmt.Errorf("commit fold-temp for %s: %w", target.ID.Short(), err)
	}
	if empty {
		return Result{Parent: parent}, nil
	}

	parentCommit, err := d.Repo.Get(ctx, parent)
	if err != nil {
		return Result{}, fmt.Errorf("fold: load parent %s: %w", parent.Short(), err)
	}
	tempCommit, err := d.Repo.Get(ctx, tempID)
	if err != nil {
		return Result{}, fmt.Errorf("fold: load temp %s: %w", tempID.Short(), err)
	}

	return finishFold(ctx, d, parentCommit, target, tempCommit, nil)
}

// finishFold combines parentCtx (the running parent commit) with oldctx (the
// fold target, already merged into newnode as a temp commit) into a single
// commit, per spec §4.4 finish_fold. internal lists any additional
// intermediate commits a user created during a suspended continue.
func finishFold(ctx context.Context, d Deps, parentCtx, oldctx, newnode vcs.Commit, internal []vcs.Commit) (Result, error) {
	if _, err := d.Merge.Update(ctx, d.Repo, parentCtx.Parent1, false, true, vcs.NullID); err != nil {
		return Result{}, fmt.Errorf("finish fold: checkout %s: %w", parentCtx.Parent1.Short(), err)
	}

	var descs []string
	descs = append(descs, parentCtx.Description)
	for _, ich := range internal {
		descs = append(descs, ich.Description)
	}
	descs = append(descs, oldctx.Description)
	message := strings.Join(descs, "\n***\n")

	author := parentCtx.Author
	if parentCtx.Author != oldctx.Author && d.CurrentUser != nil {
		author = d.CurrentUser()
	}
	date := parentCtx.Date
	if oldctx.Date.After(date) {
		date = oldctx.Date
	}

	combined, empty, err := Collapse(ctx, d, parentCtx, newnode, message, author, date, parentCtx.Extra)
	if err != nil {
		return Result{}, err
	}
	if empty {
		return Result{Parent: parentCtx.ID}, nil
	}

	if _, err := d.Merge.Update(ctx, d.Repo, combined, false, true, vcs.NullID); err != nil {
		return Result{}, fmt.Errorf("finish fold: checkout combined %s: %w", combined.Short(), err)
	}

	repls := []store.Replacement{
		{Precursor: oldctx.ID, Successors: []vcs.CommitID{newnode.ID}},
		{Precursor: parentCtx.ID, Successors: []vcs.CommitID{combined}},
		{Precursor: newnode.ID, Successors: []vcs.CommitID{combined}},
	}
	for _, ich := range internal {
		repls = append(repls, store.Replacement{Precursor: ich.ID, Successors: []vcs.CommitID{combined}})
	}

	return Result{Parent: combined, Replacements: repls}, nil
}
