package vcs

import "context"

// Editor invokes an interactive text editor pre-populated with text and
// returns what the user saved. Used both for plan editing (spec §4.7
// default-plan prompt) and for the "mess" action's commit-message edit.
type Editor interface {
	Edit(ctx context.Context, text string) (string, error)
}
