package vcs

import "context"

// PatchOverlay stands in for an external patch-queue-style overlay system
// (out of scope to implement here). Orchestrator.Start consults Applied to
// reject starting a histedit while such an overlay is active (spec §7
// MQApplied).
type PatchOverlay interface {
	Applied(ctx context.Context) (bool, error)
}
