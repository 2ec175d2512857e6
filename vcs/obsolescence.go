package vcs

import "context"

// MarkerPair records that Precursor was replaced by Successors (zero
// successors means Precursor was pruned with no replacement, e.g. drop).
type MarkerPair struct {
	Precursor  CommitID
	Successors []CommitID
}

// Obsolescence is the non-destructive alternative to Repair: when enabled,
// the orchestrator's end-of-run cleanup writes markers instead of stripping
// (spec §4.7, §9).
type Obsolescence interface {
	// Enabled reports whether this repository is configured to record
	// obsolescence markers at all.
	Enabled() bool

	// CreateMarkers records the given precursor/successor relationships.
	CreateMarkers(ctx context.Context, markers []MarkerPair) error
}
