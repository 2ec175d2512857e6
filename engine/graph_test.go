package engine

import (
	"context"
	"testing"
	"time"

	"github.com/tidecore/histedit/memrepo"
	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

func revLookup(repo *memrepo.Backend) func(context.Context, vcs.CommitID) (int, error) {
	return repo.ChangelogRev
}

func TestGraphReduceSimplePick(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, nil)
	newC := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "rewritten", nil, nil)

	g := NewGraph()
	g.Append(store.Replacement{Precursor: root, Successors: []vcs.CommitID{newC}})

	reduced, err := g.Reduce(context.Background(), revLookup(repo))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if got := reduced.Final[root]; len(got) != 1 || got[0] != newC {
		t.Fatalf("Final[root] = %v, want [%v]", got, newC)
	}
	if reduced.TmpNodes[newC] {
		t.Errorf("newC wrongly classified as a tmpnode")
	}
	if !reduced.New[newC] {
		t.Errorf("newC not classified as new")
	}
}

func TestGraphReduceDropIsEmptyTuple(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, nil)

	g := NewGraph()
	g.Append(store.Replacement{Precursor: root, Successors: nil})

	reduced, err := g.Reduce(context.Background(), revLookup(repo))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if succs, ok := reduced.Final[root]; !ok || len(succs) != 0 {
		t.Fatalf("Final[root] = %v, want empty tuple present", succs)
	}
}

// TestGraphReduceCollapsesTmpNodes covers a two-step run: the first action
// produces an intermediate commit that a later fold then subsumes. The
// intermediate must not appear in the final mapping at all.
func TestGraphReduceCollapsesTmpNodes(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, nil)
	tmp := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "intermediate", nil, nil)
	final := repo.Seed(root, vcs.NullID, "a", time.Unix(2, 0), "folded", nil, nil)

	g := NewGraph()
	g.Append(store.Replacement{Precursor: root, Successors: []vcs.CommitID{tmp}})
	g.Append(store.Replacement{Precursor: tmp, Successors: []vcs.CommitID{final}})

	reduced, err := g.Reduce(context.Background(), revLookup(repo))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if _, present := reduced.Final[tmp]; present {
		t.Errorf("tmp node leaked into Final map")
	}
	if got := reduced.Final[root]; len(got) != 1 || got[0] != final {
		t.Fatalf("Final[root] = %v, want [%v]", got, final)
	}
	if !reduced.TmpNodes[tmp] {
		t.Errorf("tmp not classified as a tmpnode")
	}
}

func TestGraphReduceDetectsCycle(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	a := repo.Seed(vcs.NullID, vcs.NullID, "u", time.Unix(0, 0), "a", nil, nil)
	b := repo.Seed(a, vcs.NullID, "u", time.Unix(1, 0), "b", nil, nil)

	g := NewGraph()
	g.Append(store.Replacement{Precursor: a, Successors: []vcs.CommitID{b}})
	g.Append(store.Replacement{Precursor: b, Successors: []vcs.CommitID{a}})

	if _, err := g.Reduce(context.Background(), revLookup(repo)); err == nil {
		t.Fatal("Reduce() error = nil, want cycle error")
	}
}

func TestNewTopmostNoOpWhenFinalEmpty(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	_, ok, err := NewTopmost(context.Background(), repo, Reduced{}, revLookup(repo))
	if err != nil {
		t.Fatalf("NewTopmost() error = %v", err)
	}
	if ok {
		t.Fatal("NewTopmost() ok = true for an empty reduction")
	}
}

func TestNewTopmostPicksHighestRevNewCommit(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "u", time.Unix(0, 0), "root", nil, nil)
	newer := repo.Seed(root, vcs.NullID, "u", time.Unix(1, 0), "newer", nil, nil)

	r := Reduced{
		Final: map[vcs.CommitID][]vcs.CommitID{root: {newer}},
		New:   map[vcs.CommitID]bool{newer: true},
	}
	top, ok, err := NewTopmost(context.Background(), repo, r, revLookup(repo))
	if err != nil {
		t.Fatalf("NewTopmost() error = %v", err)
	}
	if !ok || top != newer {
		t.Fatalf("NewTopmost() = (%v, %v), want (%v, true)", top, ok, newer)
	}
}

func TestNewTopmostWalksToParentWhenAllDropped(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "u", time.Unix(0, 0), "root", nil, nil)
	dropped := repo.Seed(root, vcs.NullID, "u", time.Unix(1, 0), "dropped", nil, nil)

	r := Reduced{
		Final: map[vcs.CommitID][]vcs.CommitID{dropped: {}},
		New:   map[vcs.CommitID]bool{},
	}
	top, ok, err := NewTopmost(context.Background(), repo, r, revLookup(repo))
	if err != nil {
		t.Fatalf("NewTopmost() error = %v", err)
	}
	if !ok || top != root {
		t.Fatalf("NewTopmost() = (%v, %v), want (%v, true)", top, ok, root)
	}
}

func TestNewTopmostLoadFailurePropagates(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	var unknown vcs.CommitID
	unknown[0] = 0xFF

	r := Reduced{
		Final: map[vcs.CommitID][]vcs.CommitID{unknown: {}},
		New:   map[vcs.CommitID]bool{},
	}
	if _, _, err := NewTopmost(context.Background(), repo, r, revLookup(repo)); err == nil {
		t.Fatal("NewTopmost() error = nil, want load failure")
	}
}
