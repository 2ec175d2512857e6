package memrepo

import (
	"context"

	"github.com/tidecore/histedit/vcs"
)

// Update implements vcs.Merge. A plain checkout (branchMerge=false)
// replaces the working manifest outright and repoints the dirstate. A
// three-way merge (branchMerge=true) applies the delta between ancestor
// and target onto the current working manifest, marking a path unresolved
// when the working copy has locally diverged from ancestor at that path
// and target's content differs from the working copy's. force only
// bypasses the dirty-working-copy precheck the caller is responsible for
// (mirroring real Mercurial's update --force); it never suppresses a
// genuine content conflict, so memrepo's reference implementation doesn't
// consult it here.
func (b *Backend) Update(ctx context.Context, repo vcs.Repo, target vcs.CommitID, branchMerge, force bool, ancestor vcs.CommitID) (vcs.UpdateStats, error) {
	targetCommit, err := repo.Get(ctx, target)
	if err != nil {
		return vcs.UpdateStats{}, err
	}

	if !branchMerge {
		b.mu.Lock()
		b.workingManifest = copyManifest(targetCommit.Manifest)
		b.dirstateP1 = target
		b.dirstateP2 = vcs.NullID
		b.unresolved = map[string]bool{}
		b.mu.Unlock()
		return vcs.UpdateStats{Updated: len(targetCommit.Manifest)}, nil
	}

	var ancestorCommit vcs.Commit
	if !ancestor.IsNull() {
		ancestorCommit, err = repo.Get(ctx, ancestor)
		if err != nil {
			return vcs.UpdateStats{}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	paths := make(map[string]struct{})
	for p := range targetCommit.Manifest {
		paths[p] = struct{}{}
	}
	for p := range ancestorCommit.Manifest {
		paths[p] = struct{}{}
	}

	var stats vcs.UpdateStats
	unresolved := map[string]bool{}
	for path := range paths {
		targetEntry, inTarget := targetCommit.Manifest[path]
		ancestorEntry, inAncestor := ancestorCommit.Manifest[path]
		if inTarget && inAncestor && sameEntry(targetEntry, ancestorEntry) {
			continue // delta doesn't touch this path
		}
		if !inTarget && !inAncestor {
			continue
		}

		curEntry, inCur := b.workingManifest[path]
		localDiverged := inCur != inAncestor || (inCur && inAncestor && !sameEntry(curEntry, ancestorEntry))

		if localDiverged && inCur && (!inTarget || !sameEntry(curEntry, targetEntry)) {
			unresolved[path] = true
			stats.Unresolved++
			continue
		}

		if inTarget {
			b.workingManifest[path] = targetEntry
			if inCur {
				stats.Merged++
			} else {
				stats.Updated++
			}
		} else {
			delete(b.workingManifest, path)
			stats.Removed++
		}
	}
	b.unresolved = unresolved
	b.dirstateP2 = target
	return stats, nil
}

func sameEntry(a, b vcs.ManifestEntry) bool {
	return a.Flags == b.Flags && string(a.Content) == string(b.Content)
}

// PathCopies implements vcs.Copies. memrepo does not model copy/rename
// provenance, so it always reports no copies; the fold engine degrades
// gracefully to treating every path as unrelated to any other.
func (b *Backend) PathCopies(_ context.Context, _, _ vcs.Commit) (map[string]string, error) {
	return map[string]string{}, nil
}
