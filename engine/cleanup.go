package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidecore/histedit/vcs"
)

// rootsFirst orders ids ascending by changelog rev, so an ancestor always
// precedes its descendants (spec §9 design note: root-first stripping is
// the specified behavior, reverse order is known buggy).
func rootsFirst(ctx context.Context, ids []vcs.CommitID, revOf func(context.Context, vcs.CommitID) (int, error)) ([]vcs.CommitID, error) {
	out := append([]vcs.CommitID(nil), ids...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		ri, err := revOf(ctx, out[i])
		if err != nil {
			sortErr = err
		}
		rj, err := revOf(ctx, out[j])
		if err != nil {
			sortErr = err
		}
		return ri < rj
	})
	return out, sortErr
}

// cleanup strips (or obsolescence-marks) every precursor in the reduced
// replacement graph, then every tmpnode, root-first, each batch under its
// own store-lock acquisition (spec §4.7's final cleanup steps).
func (o *Orchestrator) cleanup(ctx context.Context, r Reduced) error {
	precursors := make([]vcs.CommitID, 0, len(r.Final))
	for p := range r.Final {
		precursors = append(precursors, p)
	}
	tmp := make([]vcs.CommitID, 0, len(r.TmpNodes))
	for t := range r.TmpNodes {
		tmp = append(tmp, t)
	}

	if err := o.stripRoots(ctx, precursors, func(ctx context.Context, roots []vcs.CommitID) error {
		if o.Obsolescence != nil && o.Obsolescence.Enabled() {
			markers := make([]vcs.MarkerPair, len(roots))
			for i, p := range roots {
				markers[i] = vcs.MarkerPair{Precursor: p, Successors: r.Final[p]}
			}
			return o.Obsolescence.CreateMarkers(ctx, markers)
		}
		return o.Repair.Strip(ctx, roots)
	}); err != nil {
		return fmt.Errorf("cleanup precursors: %w", err)
	}

	if err := o.stripRoots(ctx, tmp, o.Repair.Strip); err != nil {
		return fmt.Errorf("cleanup tmpnodes: %w", err)
	}
	return nil
}

// stripRoots orders ids root-first and runs collect under the store lock.
// Empty input is a no-op — no lock is taken, matching the prior GC-style
// orchestrator's skip-when-nothing-to-do behavior.
func (o *Orchestrator) stripRoots(ctx context.Context, ids []vcs.CommitID, collect func(context.Context, []vcs.CommitID) error) error {
	if len(ids) == 0 {
		return nil
	}
	ordered, err := rootsFirst(ctx, ids, o.Deps.Repo.ChangelogRev)
	if err != nil {
		return err
	}
	if err := o.StoreLock.Acquire(ctx, -1); err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer o.StoreLock.Release(ctx) //nolint:errcheck
	return collect(ctx, ordered)
}
