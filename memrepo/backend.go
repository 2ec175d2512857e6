// Package memrepo is an in-memory reference implementation of every vcs
// collaborator interface, grounded on the content-addressed commit model
// of spec §3. It exists so the engine package is testable without a real
// DAG storage backend, which spec.md explicitly treats as external.
package memrepo

import (
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidecore/histedit/vcs"
)

// Backend holds an entire in-memory repository: commits, phases, revision
// order, the working copy's manifest and dirstate, bookmarks, and the
// test-configurable knobs for the other external collaborators. One
// Backend value satisfies vcs.Repo, vcs.Merge, vcs.Copies, vcs.Bookmarks,
// vcs.Repair, vcs.Obsolescence, vcs.Discovery, vcs.Editor and
// vcs.PatchOverlay.
type Backend struct {
	mu sync.Mutex

	root string

	commits map[vcs.CommitID]vcs.Commit
	rev     map[vcs.CommitID]int
	nextRev int

	tip vcs.CommitID

	workingManifest map[string]vcs.ManifestEntry
	dirstateP1      vcs.CommitID
	dirstateP2      vcs.CommitID
	unresolved      map[string]bool
	dirty           bool

	bookmarks map[string]vcs.CommitID

	obsolescenceEnabled bool
	markers             []vcs.MarkerPair

	outgoingMissing []vcs.CommitID

	// EditorFn transforms text passed to Editor.Edit; defaults to the
	// identity function (the user accepted the buffer unchanged).
	EditorFn func(string) (string, error)

	mqApplied bool
}

// New returns an empty Backend rooted at root (a scratch directory, e.g.
// t.TempDir() in tests).
func New(root string) *Backend {
	return &Backend{
		root:            root,
		commits:         make(map[vcs.CommitID]vcs.Commit),
		rev:             make(map[vcs.CommitID]int),
		workingManifest: make(map[string]vcs.ManifestEntry),
		unresolved:      make(map[string]bool),
		bookmarks:       make(map[string]vcs.CommitID),
	}
}

// Seed directly inserts a commit bypassing Merge/Commit, for constructing
// a repository's starting history in test fixtures. It assigns the next
// revision number and advances the tip.
func (b *Backend) Seed(parent1, parent2 vcs.CommitID, author string, date time.Time, description string, extra map[string]string, manifest map[string]vcs.ManifestEntry) vcs.CommitID {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := vcs.Commit{
		Parent1:     parent1,
		Parent2:     parent2,
		Author:      author,
		Date:        date,
		Description: description,
		Extra:       extra,
		Manifest:    copyManifest(manifest),
		Phase:       vcs.PhaseMutable,
	}
	c.ID = contentID(c, uuid.New())
	b.insertLocked(c)
	b.tip = c.ID
	b.dirstateP1 = c.ID
	b.dirstateP2 = vcs.NullID
	b.workingManifest = copyManifest(manifest)
	return c.ID
}

// SetPhase marks id's phase, for simulating a published/immutable commit.
func (b *Backend) SetPhase(id vcs.CommitID, phase vcs.Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.commits[id]
	c.Phase = phase
	b.commits[id] = c
}

// SetTip designates id as the range-resolution tip for the "range" query
// Repo.Set understands.
func (b *Backend) SetTip(id vcs.CommitID) { b.tip = id }

// SetBookmark installs a bookmark directly, bypassing Move/Write.
func (b *Backend) SetBookmark(name string, id vcs.CommitID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bookmarks[name] = id
}

// SetOutgoingMissing configures what Discovery.FindCommonOutgoing returns.
func (b *Backend) SetOutgoingMissing(ids []vcs.CommitID) { b.outgoingMissing = ids }

// SetObsolescenceEnabled toggles the Obsolescence collaborator's Enabled.
func (b *Backend) SetObsolescenceEnabled(enabled bool) { b.obsolescenceEnabled = enabled }

// SetDirty simulates an uncommitted working-copy change.
func (b *Backend) SetDirty(dirty bool) { b.dirty = dirty }

// SetMQApplied simulates an incompatible patch-queue overlay.
func (b *Backend) SetMQApplied(applied bool) { b.mqApplied = applied }

// Markers returns the obsolescence markers recorded so far, for test
// assertions.
func (b *Backend) Markers() []vcs.MarkerPair { return append([]vcs.MarkerPair(nil), b.markers...) }

func (b *Backend) insertLocked(c vcs.Commit) {
	b.commits[c.ID] = c
	b.rev[c.ID] = b.nextRev
	b.nextRev++
}

// contentID hashes a commit's fields into a 20-byte id, the same width as
// the real hash a production DAG store would use. salt is a fresh random
// uuid rather than a counter: two commits with byte-identical
// author/description/date/extra/manifest (e.g. two successive empty
// "mess" edits) must still not collide, and a random salt avoids having to
// thread a shared counter through every caller.
func contentID(c vcs.Commit, salt uuid.UUID) vcs.CommitID {
	h := sha1.New() //nolint:gosec
	h.Write(c.Parent1[:])
	h.Write(c.Parent2[:])
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00", c.Author, c.Description, c.Date.UnixNano())
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\x00", k, c.Extra[k])
	}
	paths := make([]string, 0, len(c.Manifest))
	for p := range c.Manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		e := c.Manifest[p]
		fmt.Fprintf(h, "%s\x00%v\x00", p, e.Flags)
		h.Write(e.Content)
	}
	h.Write(salt[:])
	var id vcs.CommitID
	copy(id[:], h.Sum(nil))
	return id
}

func copyManifest(m map[string]vcs.ManifestEntry) map[string]vcs.ManifestEntry {
	out := make(map[string]vcs.ManifestEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- vcs.Repo ---

func (b *Backend) Get(_ context.Context, id vcs.CommitID) (vcs.Commit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.commits[id]
	if !ok {
		return vcs.Commit{}, fmt.Errorf("memrepo: unknown commit %s", id.Short())
	}
	return c, nil
}

func (b *Backend) Phase(ctx context.Context, id vcs.CommitID) (vcs.Phase, error) {
	c, err := b.Get(ctx, id)
	if err != nil {
		return vcs.PhaseMutable, err
	}
	return c.Phase, nil
}

func (b *Backend) ChangelogRev(_ context.Context, id vcs.CommitID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rev[id]
	if !ok {
		return 0, fmt.Errorf("memrepo: unknown commit %s", id.Short())
	}
	return r, nil
}

func (b *Backend) Children(_ context.Context, id vcs.CommitID) ([]vcs.CommitID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []vcs.CommitID
	for cid, c := range b.commits {
		if c.Parent1 == id || c.Parent2 == id {
			out = append(out, cid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return b.rev[out[i]] < b.rev[out[j]] })
	return out, nil
}

// Set implements the single "range" query the engine issues: everything
// from the child of args[0] up to the configured tip, ancestor-first.
func (b *Backend) Set(ctx context.Context, query string, args ...any) ([]vcs.Commit, error) {
	if query != "range" || len(args) != 1 {
		return nil, fmt.Errorf("memrepo: unsupported query %q", query)
	}
	parent, ok := args[0].(vcs.CommitID)
	if !ok {
		return nil, fmt.Errorf("memrepo: range query expects a vcs.CommitID argument")
	}

	b.mu.Lock()
	tip := b.tip
	b.mu.Unlock()

	if tip == parent {
		return nil, nil
	}

	var rev []vcs.Commit
	cur := tip
	for {
		c, err := b.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		rev = append(rev, c)
		if c.Parent1 == parent {
			break
		}
		if c.Parent1.IsNull() {
			return nil, fmt.Errorf("memrepo: %s is not an ancestor of tip %s", parent.Short(), tip.Short())
		}
		cur = c.Parent1
	}
	out := make([]vcs.Commit, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out, nil
}

func (b *Backend) DirstateParents(_ context.Context) (p1, p2 vcs.CommitID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirstateP1, b.dirstateP2, nil
}

func (b *Backend) SetDirstateParents(_ context.Context, p1, p2 vcs.CommitID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirstateP1, b.dirstateP2 = p1, p2
	return nil
}

func (b *Backend) Path(context.Context) string { return b.root }

func (b *Backend) SJoin(name string) string {
	if name == "" {
		return b.root + "/.histedit"
	}
	return b.root + "/.histedit/" + name
}

func (b *Backend) Dirty(context.Context) (bool, error) { return b.dirty, nil }

// Commit records the working copy's pending content as a new commit.
func (b *Backend) Commit(_ context.Context, description, user string, date time.Time, extra map[string]string) (vcs.CommitID, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parentManifest := map[string]vcs.ManifestEntry{}
	if !b.dirstateP1.IsNull() {
		parentManifest = b.commits[b.dirstateP1].Manifest
	}
	if manifestsEqual(parentManifest, b.workingManifest) {
		return vcs.CommitID{}, true, nil
	}

	c := vcs.Commit{
		Parent1:     b.dirstateP1,
		Parent2:     b.dirstateP2,
		Author:      user,
		Date:        date,
		Description: description,
		Extra:       extra,
		Manifest:    copyManifest(b.workingManifest),
		Phase:       vcs.PhaseMutable,
	}
	c.ID = contentID(c, uuid.New())
	b.insertLocked(c)

	b.dirstateP1 = c.ID
	b.dirstateP2 = vcs.NullID
	b.unresolved = map[string]bool{}
	return c.ID, false, nil
}

// MemCtx synthesizes a commit from an explicit file set without touching
// the working copy.
func (b *Backend) MemCtx(_ context.Context, parents [2]vcs.CommitID, description, user string, date time.Time, extra map[string]string, files []string, fn vcs.FileContextFunc) (vcs.CommitID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	manifest := map[string]vcs.ManifestEntry{}
	if !parents[0].IsNull() {
		manifest = copyManifest(b.commits[parents[0]].Manifest)
	}
	for _, path := range files {
		data, err := fn(path)
		if err != nil {
			return vcs.CommitID{}, fmt.Errorf("memrepo: memctx file %s: %w", path, err)
		}
		if data == nil {
			delete(manifest, path)
			continue
		}
		manifest[path] = vcs.ManifestEntry{Content: data.Content, Flags: data.Flags}
	}

	c := vcs.Commit{
		Parent1:     parents[0],
		Parent2:     parents[1],
		Author:      user,
		Date:        date,
		Description: description,
		Extra:       extra,
		Manifest:    manifest,
		Phase:       vcs.PhaseMutable,
	}
	c.ID = contentID(c, uuid.New())
	b.insertLocked(c)
	return c.ID, nil
}

func manifestsEqual(a, b map[string]vcs.ManifestEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || other.Flags != v.Flags || string(other.Content) != string(v.Content) {
			return false
		}
	}
	return true
}
