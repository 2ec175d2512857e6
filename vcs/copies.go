package vcs

import "context"

// Copies resolves rename/copy provenance between two commits, used by the
// fold engine to carry copy records forward when squashing a run of commits
// into one (spec §4.5 "pathcopies closure").
type Copies interface {
	// PathCopies returns a map of destination path -> source path for
	// copies/renames that occurred going from a to b.
	PathCopies(ctx context.Context, a, b Commit) (map[string]string, error)
}
