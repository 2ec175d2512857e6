// Package store persists the in-progress edit state (spec §4.3) to a
// single file under the repo's metadata directory, using a deterministic
// tag+length-prefixed binary encoding rather than JSON so that commit-ids
// round-trip as raw bytes.
package store

import (
	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/vcs"
)

// Replacement is one precursor -> successors entry of the replacement
// graph, as accumulated during a run (spec §4.6).
type Replacement struct {
	Precursor  vcs.CommitID
	Successors []vcs.CommitID
}

// State is the durable Edit State of spec §3: the commit the next action
// builds atop, the plan entries not yet executed, whether --keep was
// requested, the range's original topmost commit, and the replacement
// graph accumulated so far.
type State struct {
	ParentNode   vcs.CommitID
	Plan         plan.Plan
	Keep         bool
	Topmost      vcs.CommitID
	Replacements []Replacement
}
