package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tidecore/histedit/memrepo"
	"github.com/tidecore/histedit/vcs"
)

func testDeps(repo *memrepo.Backend) Deps {
	return Deps{
		Repo:        repo,
		Merge:       repo,
		Copies:      repo,
		Editor:      identityEditor{},
		CurrentUser: func() string { return "tester" },
	}
}

type identityEditor struct{}

func (identityEditor) Edit(_ context.Context, text string) (string, error) { return text, nil }

func manifest(files map[string]string) map[string]vcs.ManifestEntry {
	out := make(map[string]vcs.ManifestEntry, len(files))
	for path, content := range files {
		out[path] = vcs.ManifestEntry{Content: []byte(content)}
	}
	return out
}

// conflictFixture builds a common ancestor with two children that each
// diverge the same path to a different value: parent (the running parent
// Pick/Mess/Fold will checkout to) and target (the commit being applied).
// Merging target's delta (ancestor -> target) onto parent's working copy
// then finds path "x" changed on both sides to different content, which
// memrepo.Backend.Update must report as unresolved.
func conflictFixture(t *testing.T) (repo *memrepo.Backend, parent vcs.CommitID, target vcs.Commit) {
	t.Helper()
	repo = memrepo.New(t.TempDir())
	ctx := context.Background()

	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1", "x": "1"}))
	parent = repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "parent side", nil, manifest(map[string]string{"a": "1", "x": "parent-value"}))
	targetID := repo.Seed(root, vcs.NullID, "a", time.Unix(2, 0), "target side", nil, manifest(map[string]string{"a": "1", "x": "target-value"}))

	var err error
	target, err = repo.Get(ctx, targetID)
	if err != nil {
		t.Fatalf("Get(target) error = %v", err)
	}
	return repo, parent, target
}

// TestPickSuspendsOnConflict covers spec §7 Conflict: a pick whose delta
// conflicts with the running parent's working copy must surface a
// ConflictError carrying the unresolved count, not silently force through
// one side (the memrepo.Update bug this guards: a stray !force term made
// this path permanently unreachable since every real call site passes
// force=true).
func TestPickSuspendsOnConflict(t *testing.T) {
	repo, parent, target := conflictFixture(t)

	_, err := Pick(context.Background(), testDeps(repo), parent, target)

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Pick() error = %v, want a *ConflictError", err)
	}
	if conflictErr.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", conflictErr.Unresolved)
	}
}

// TestMessSuspendsOnConflict is TestPickSuspendsOnConflict's Mess twin:
// Mess shares applyDelta with Pick, so the same conflict must surface
// before the editor is ever consulted.
func TestMessSuspendsOnConflict(t *testing.T) {
	repo, parent, target := conflictFixture(t)

	_, err := Mess(context.Background(), testDeps(repo), parent, target)

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Mess() error = %v, want a *ConflictError", err)
	}
	if conflictErr.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", conflictErr.Unresolved)
	}
}

func TestPickReentrantNoOp(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	child, err := repo.Get(context.Background(), repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "child", nil, manifest(map[string]string{"a": "1", "b": "2"})))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	result, err := Pick(context.Background(), testDeps(repo), root, child)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if result.Parent != child.ID {
		t.Fatalf("Pick() parent = %v, want %v (reentrant no-op)", result.Parent, child.ID)
	}
	if len(result.Replacements) != 0 {
		t.Fatalf("Pick() replacements = %v, want none for a reentrant no-op", result.Replacements)
	}
}

// TestPickAppliesDeltaAfterADrop exercises the case a plan's drop action
// exists for: picking a descendant whose parent is no longer the commit
// it was built on (because the commit between them was dropped), so Pick
// must apply the target's delta onto the new parent rather than just
// copying the target's own manifest forward.
func TestPickAppliesDeltaAfterADrop(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	ctx := context.Background()

	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	droppedID := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "dropped", nil, manifest(map[string]string{"a": "1", "b": "2"}))
	keptID := repo.Seed(droppedID, vcs.NullID, "a", time.Unix(2, 0), "kept", nil, manifest(map[string]string{"a": "1", "b": "2", "c": "3"}))

	dropped, err := repo.Get(ctx, droppedID)
	if err != nil {
		t.Fatalf("Get(dropped) error = %v", err)
	}
	kept, err := repo.Get(ctx, keptID)
	if err != nil {
		t.Fatalf("Get(kept) error = %v", err)
	}

	dropResult, err := Drop(ctx, testDeps(repo), root, dropped)
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if dropResult.Parent != root {
		t.Fatalf("Drop() parent = %v, want %v", dropResult.Parent, root)
	}
	if len(dropResult.Replacements) != 1 || len(dropResult.Replacements[0].Successors) != 0 {
		t.Fatalf("Drop() replacements = %v, want one empty-tuple entry", dropResult.Replacements)
	}

	pickResult, err := Pick(ctx, testDeps(repo), dropResult.Parent, kept)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	newCommit, err := repo.Get(ctx, pickResult.Parent)
	if err != nil {
		t.Fatalf("Get(new commit) error = %v", err)
	}
	// "b" should never have been introduced: it only existed in the
	// dropped commit, not in root or in the delta from dropped to kept.
	if _, hasB := newCommit.Manifest["b"]; hasB {
		t.Errorf("new commit still has path %q, want it excluded by the drop", "b")
	}
	if _, hasC := newCommit.Manifest["c"]; !hasC {
		t.Errorf("new commit is missing path %q, want it carried from kept's delta", "c")
	}
}

func TestMessRewritesDescriptionOnly(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	ctx := context.Background()
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	targetID := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "old message", nil, manifest(map[string]string{"a": "2"}))
	target, err := repo.Get(ctx, targetID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	deps := testDeps(repo)
	deps.Editor = rewriteEditor{text: "new message"}

	result, err := Mess(ctx, deps, root, target)
	if err != nil {
		t.Fatalf("Mess() error = %v", err)
	}
	if len(result.Replacements) != 1 || result.Replacements[0].Precursor != targetID {
		t.Fatalf("Mess() replacements = %v", result.Replacements)
	}
	newCommit, err := repo.Get(ctx, result.Parent)
	if err != nil {
		t.Fatalf("Get(new commit) error = %v", err)
	}
	if newCommit.Description != "new message" {
		t.Errorf("Description = %q, want %q", newCommit.Description, "new message")
	}
	if newCommit.Author != target.Author {
		t.Errorf("Author = %q, want unchanged %q", newCommit.Author, target.Author)
	}
}

type rewriteEditor struct{ text string }

func (e rewriteEditor) Edit(context.Context, string) (string, error) { return e.text, nil }

func TestEditAlwaysSuspends(t *testing.T) {
	repo := memrepo.New(t.TempDir())
	ctx := context.Background()
	root := repo.Seed(vcs.NullID, vcs.NullID, "a", time.Unix(0, 0), "root", nil, manifest(map[string]string{"a": "1"}))
	targetID := repo.Seed(root, vcs.NullID, "a", time.Unix(1, 0), "to edit", nil, manifest(map[string]string{"a": "2"}))
	target, err := repo.Get(ctx, targetID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	_, err = Edit(ctx, testDeps(repo), root, target)
	if !errors.Is(err, ErrNeedsContinue) {
		t.Fatalf("Edit() error = %v, want ErrNeedsContinue", err)
	}
}
