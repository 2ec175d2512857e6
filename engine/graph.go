package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

// Graph accumulates replacement entries append-only during a run and
// reduces them to a final precursor -> successors mapping at completion
// (spec §4.6).
type Graph struct {
	raw []store.Replacement
}

// NewGraph returns an empty replacement graph.
func NewGraph() *Graph { return &Graph{} }

// FromRaw reconstructs a Graph from previously persisted replacement
// entries (state store round-trip).
func FromRaw(entries []store.Replacement) *Graph {
	return &Graph{raw: append([]store.Replacement(nil), entries...)}
}

// Append records zero or more new replacement entries.
func (g *Graph) Append(entries ...store.Replacement) {
	g.raw = append(g.raw, entries...)
}

// Raw returns the append-only entry list, for persistence.
func (g *Graph) Raw() []store.Replacement {
	return append([]store.Replacement(nil), g.raw...)
}

// Reduced is the result of Graph.Reduce: the final precursor -> successors
// mapping (tmpnodes excluded) plus the sets Reduce computed along the way.
type Reduced struct {
	Final    map[vcs.CommitID][]vcs.CommitID
	TmpNodes map[vcs.CommitID]bool
	New      map[vcs.CommitID]bool
}

// Reduce implements spec §4.6's reduction: union successors per
// precursor, classify intermediate (tmpnodes) vs final (new) commits, then
// recursively substitute each precursor's successors with their own
// closures until every chain bottoms out at a non-precursor or an empty
// (dropped) tuple. revOf orders each final successor tuple topologically.
func (g *Graph) Reduce(ctx context.Context, revOf func(context.Context, vcs.CommitID) (int, error)) (Reduced, error) {
	full := make(map[vcs.CommitID][]vcs.CommitID)
	replaced := make(map[vcs.CommitID]bool)
	allsuccs := make(map[vcs.CommitID]bool)

	for _, e := range g.raw {
		replaced[e.Precursor] = true
		full[e.Precursor] = append(full[e.Precursor], e.Successors...)
		for _, s := range e.Successors {
			allsuccs[s] = true
		}
	}

	tmpnodes := make(map[vcs.CommitID]bool)
	newNodes := make(map[vcs.CommitID]bool)
	for s := range allsuccs {
		if replaced[s] {
			tmpnodes[s] = true
		} else {
			newNodes[s] = true
		}
	}

	resolved := make(map[vcs.CommitID][]vcs.CommitID)
	visiting := make(map[vcs.CommitID]bool)

	var resolve func(id vcs.CommitID) ([]vcs.CommitID, error)
	resolve = func(id vcs.CommitID) ([]vcs.CommitID, error) {
		if r, ok := resolved[id]; ok {
			return r, nil
		}
		succs, isPrecursor := full[id]
		if !isPrecursor {
			return []vcs.CommitID{id}, nil
		}
		if visiting[id] {
			return nil, fmt.Errorf("replacement graph: cycle detected at %s", id.Short())
		}
		visiting[id] = true
		defer delete(visiting, id)

		var out []vcs.CommitID
		for _, s := range succs {
			closure, err := resolve(s)
			if err != nil {
				return nil, err
			}
			out = append(out, closure...)
		}
		resolved[id] = out
		return out, nil
	}

	final := make(map[vcs.CommitID][]vcs.CommitID)
	for p := range replaced {
		succs, err := resolve(p)
		if err != nil {
			return Reduced{}, err
		}
		if tmpnodes[p] {
			continue // internal; not exposed in the final mapping
		}
		if err := sortByRev(ctx, succs, revOf); err != nil {
			return Reduced{}, err
		}
		final[p] = succs
	}

	return Reduced{Final: final, TmpNodes: tmpnodes, New: newNodes}, nil
}

func sortByRev(ctx context.Context, ids []vcs.CommitID, revOf func(context.Context, vcs.CommitID) (int, error)) error {
	revs := make(map[vcs.CommitID]int, len(ids))
	for _, id := range ids {
		r, err := revOf(ctx, id)
		if err != nil {
			return fmt.Errorf("replacement graph: rev of %s: %w", id.Short(), err)
		}
		revs[id] = r
	}
	sort.SliceStable(ids, func(i, j int) bool { return revs[ids[i]] < revs[ids[j]] })
	return nil
}

// NewTopmost computes the range's new tip per spec §4.6. If r.Final is
// empty the rewrite was a no-op and ok is false. If r.New is non-empty,
// newtopmost is the new commit with the highest rev. Otherwise every
// range commit was dropped, and newtopmost is the parent of whichever
// final key has the lowest rev.
func NewTopmost(ctx context.Context, repo vcs.Repo, r Reduced, revOf func(context.Context, vcs.CommitID) (int, error)) (topmost vcs.CommitID, ok bool, err error) {
	if len(r.Final) == 0 {
		return vcs.CommitID{}, false, nil
	}

	if len(r.New) > 0 {
		best := vcs.CommitID{}
		bestRev := -1
		for n := range r.New {
			rev, err := revOf(ctx, n)
			if err != nil {
				return vcs.CommitID{}, false, err
			}
			if rev > bestRev {
				bestRev = rev
				best = n
			}
		}
		return best, true, nil
	}

	// Every range commit was dropped: walk to the parent of the lowest-rev
	// remaining key.
	lowest := vcs.CommitID{}
	lowestRev := int(^uint(0) >> 1)
	first := true
	for k := range r.Final {
		rev, err := revOf(ctx, k)
		if err != nil {
			return vcs.CommitID{}, false, err
		}
		if first || rev < lowestRev {
			first = false
			lowestRev = rev
			lowest = k
		}
	}
	base, err := repo.Get(ctx, lowest)
	if err != nil {
		return vcs.CommitID{}, false, fmt.Errorf("new topmost: load %s: %w", lowest.Short(), err)
	}
	return base.Parent1, true, nil
}
