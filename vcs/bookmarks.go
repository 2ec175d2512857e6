package vcs

import "context"

// Bookmarks is the movable-name collaborator the orchestrator reconciles
// after rewriting history (spec §4.7 "bookmark migration").
type Bookmarks interface {
	// All returns every bookmark and the commit it currently points at.
	All(ctx context.Context) (map[string]CommitID, error)

	// Move repoints name at to. Implementations must tolerate to == NullID
	// to mean "delete", matching hg's bookmark deletion semantics when a
	// bookmarked commit has no surviving successor.
	Move(ctx context.Context, name string, to CommitID) error

	// Write persists pending bookmark changes made via Move.
	Write(ctx context.Context) error
}
