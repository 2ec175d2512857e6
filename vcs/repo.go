package vcs

import (
	"context"
	"time"
)

// FileData is the content an engine-constructed commit assigns to one path.
// A nil FileData (returned by FileContextFunc) means the path is removed.
type FileData struct {
	Content    []byte
	Flags      FileFlags
	CopiedFrom string // source path, non-empty if this path is a copy/rename destination
}

// FileContextFunc supplies the content a synthesized commit should have at
// path, given the working set of parent manifests the engine is folding.
// It mirrors the original's memctx filectxfn closures.
type FileContextFunc func(path string) (*FileData, error)

// Repo is the DAG storage and working-copy collaborator the engine operates
// against. Its implementation (a real repository backend) is out of scope
// for this module; memrepo provides an in-memory reference implementation.
type Repo interface {
	// Get returns the commit identified by id.
	Get(ctx context.Context, id CommitID) (Commit, error)

	// Commit records the working copy's current pending changes as a new
	// commit. empty is true (id is the zero value) when the working copy
	// has no net change relative to its parent — the "would be empty"
	// case spec §4.4 tells pick/mess to short-circuit on.
	Commit(ctx context.Context, description, user string, date time.Time, extra map[string]string) (id CommitID, empty bool, err error)

	// Phase returns the mutability phase of id.
	Phase(ctx context.Context, id CommitID) (Phase, error)

	// Set evaluates a revset-style query and returns the matching commits in
	// the repository's natural (topological, ascending) order. The engine
	// uses this to resolve the histedit target range and --outgoing.
	Set(ctx context.Context, query string, args ...any) ([]Commit, error)

	// ChangelogRev returns the integer revision number of id, used only for
	// ordering during replacement-graph reduction (spec §4.6).
	ChangelogRev(ctx context.Context, id CommitID) (int, error)

	// Children returns every commit whose Parent1 or Parent2 is id, used
	// to detect a range commit with children outside the edit range
	// (spec §3, the "orphaned nodes" invariant).
	Children(ctx context.Context, id CommitID) ([]CommitID, error)

	// MemCtx synthesizes a new commit from parents, a description, a date
	// and a file set, invoking fn once per touched path to obtain content.
	// It does not update the working copy or dirstate.
	MemCtx(ctx context.Context, parents [2]CommitID, description, user string, date time.Time, extra map[string]string, files []string, fn FileContextFunc) (CommitID, error)

	// DirstateParents returns the working copy's recorded parents.
	DirstateParents(ctx context.Context) (p1, p2 CommitID, err error)

	// SetDirstateParents updates the working copy's recorded parents without
	// touching tracked file content (used after a delta merge to drop the
	// merged-in second parent).
	SetDirstateParents(ctx context.Context, p1, p2 CommitID) error

	// Path returns the repository's root directory on disk.
	Path(ctx context.Context) string

	// SJoin joins name under the repository's internal store directory
	// (where histedit's own state file lives), mirroring repo.vfs.join.
	SJoin(name string) string
}
