package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tidecore/histedit/lock/reslock"
	"github.com/tidecore/histedit/memrepo"
	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/vcs"
)

func newTestOrchestrator(t *testing.T, repo *memrepo.Backend) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	return &Orchestrator{
		Deps:         testDeps(repo),
		Bookmarks:    repo,
		Repair:       repo,
		Obsolescence: repo,
		Discovery:    repo,
		Store:        store.New(dir),
		WCLock:       reslock.New(dir, "wlock"),
		StoreLock:    reslock.New(dir, "histedit-lock"),
	}
}

// TestStartRunsDropAndPickPlanToCompletion exercises the whole orchestrator
// loop end to end with a plan that actually rewrites history (a drop
// followed by a pick of its descendant, forcing delta-merge synthesis
// rather than a reentrant no-op): Start resolves the range, parses the
// plan from RulesText (no editor involved), runs it to completion, moves
// the bookmark off the stripped old tip, and removes the state file.
func TestStartRunsDropAndPickPlanToCompletion(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.New(t.TempDir())

	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	c1 := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "add b", nil, manifest(map[string]string{"a": "1", "b": "2"}))
	tip := repo.Seed(c1, vcs.NullID, "a", time.Unix(2, 0), "add c", nil, manifest(map[string]string{"a": "1", "b": "2", "c": "3"}))
	repo.SetBookmark("main", tip)

	orch := newTestOrchestrator(t, repo)

	rules := "drop " + c1.String() + "\npick " + tip.String() + "\n"
	err := orch.Start(ctx, StartOptions{
		Parent:    root,
		RulesText: rules,
		ResolveCommit: func(tok string) (vcs.CommitID, bool) {
			id, perr := vcs.ParseCommitID(tok)
			return id, perr == nil
		},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if orch.Store.Exists() {
		t.Fatal("state file still exists after a clean run")
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	newTip, ok := all["main"]
	if !ok {
		t.Fatal("bookmark \"main\" missing after run")
	}
	if newTip == tip {
		t.Fatal("bookmark \"main\" still points at the stripped old tip")
	}
	newTipCommit, err := repo.Get(ctx, newTip)
	if err != nil {
		t.Fatalf("Get(new tip) error = %v", err)
	}
	if _, hasB := newTipCommit.Manifest["b"]; hasB {
		t.Error("new tip still has path \"b\", want it dropped along with c1")
	}
	if _, hasC := newTipCommit.Manifest["c"]; !hasC {
		t.Error("new tip is missing path \"c\", want it carried from the picked commit's delta")
	}

	if _, err := repo.Get(ctx, tip); err == nil {
		t.Fatal("old tip still present after cleanup, want it stripped")
	}
	if _, err := repo.Get(ctx, c1); err == nil {
		t.Fatal("dropped commit still present after cleanup, want it stripped")
	}
}

func TestStartRejectsEmptyRange(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	repo.SetTip(root)

	orch := newTestOrchestrator(t, repo)
	err := orch.Start(ctx, StartOptions{Parent: root, RulesText: "pick " + root.String()})
	if err == nil {
		t.Fatal("Start() error = nil, want ErrNothingToEdit")
	}
}

func TestStartRejectsImmutableRevisionInRange(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	tip := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "published", nil, manifest(map[string]string{"a": "2"}))
	repo.SetTip(tip)
	repo.SetPhase(tip, vcs.PhaseImmutable)

	orch := newTestOrchestrator(t, repo)
	err := orch.Start(ctx, StartOptions{
		Parent:    root,
		RulesText: "pick " + tip.String(),
		ResolveCommit: func(tok string) (vcs.CommitID, bool) {
			id, perr := vcs.ParseCommitID(tok)
			return id, perr == nil
		},
	})
	if !errors.Is(err, plan.ErrImmutableRevision) {
		t.Fatalf("Start() error = %v, want plan.ErrImmutableRevision", err)
	}
}
