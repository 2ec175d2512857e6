package memrepo

import (
	"context"

	"github.com/tidecore/histedit/vcs"
)

// --- vcs.Bookmarks ---

func (b *Backend) All(context.Context) (map[string]vcs.CommitID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]vcs.CommitID, len(b.bookmarks))
	for k, v := range b.bookmarks {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) Move(_ context.Context, name string, to vcs.CommitID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to.IsNull() {
		delete(b.bookmarks, name)
		return nil
	}
	b.bookmarks[name] = to
	return nil
}

func (b *Backend) Write(context.Context) error { return nil }

// --- vcs.Repair ---

// Strip removes every root and everything reachable from it through
// Children, fixing up the tip and dirstate if either pointed at a
// stripped commit.
func (b *Backend) Strip(_ context.Context, roots []vcs.CommitID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doomed := map[vcs.CommitID]bool{}
	var walk func(id vcs.CommitID)
	walk = func(id vcs.CommitID) {
		if doomed[id] {
			return
		}
		doomed[id] = true
		for cid, c := range b.commits {
			if (c.Parent1 == id || c.Parent2 == id) && !doomed[cid] {
				walk(cid)
			}
		}
	}
	for _, r := range roots {
		walk(r)
	}

	parent1 := make(map[vcs.CommitID]vcs.CommitID, len(doomed))
	for id := range doomed {
		parent1[id] = b.commits[id].Parent1
	}
	nearestSurvivor := func(id vcs.CommitID) vcs.CommitID {
		for doomed[id] && !id.IsNull() {
			id = parent1[id]
		}
		return id
	}

	if doomed[b.tip] {
		b.tip = nearestSurvivor(b.tip)
	}
	if doomed[b.dirstateP1] {
		b.dirstateP1 = nearestSurvivor(b.dirstateP1)
	}
	if doomed[b.dirstateP2] {
		b.dirstateP2 = vcs.NullID
	}
	for name, target := range b.bookmarks {
		if doomed[target] {
			delete(b.bookmarks, name)
		}
	}

	for id := range doomed {
		delete(b.commits, id)
		delete(b.rev, id)
	}
	return nil
}

// --- vcs.Obsolescence ---

func (b *Backend) Enabled() bool { return b.obsolescenceEnabled }

func (b *Backend) CreateMarkers(_ context.Context, markers []vcs.MarkerPair) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markers = append(b.markers, markers...)
	return nil
}

// --- vcs.Discovery ---

func (b *Backend) FindCommonOutgoing(context.Context, string) ([]vcs.CommitID, error) {
	return b.outgoingMissing, nil
}

// --- vcs.Editor ---

func (b *Backend) Edit(_ context.Context, text string) (string, error) {
	if b.EditorFn != nil {
		return b.EditorFn(text)
	}
	return text, nil
}

// --- vcs.PatchOverlay ---

func (b *Backend) Applied(context.Context) (bool, error) { return b.mqApplied, nil }
