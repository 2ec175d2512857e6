package plan

import (
	"strings"

	"github.com/tidecore/histedit/vcs"
)

// Entry is one line of an edit plan: an action and the commit it targets.
type Entry struct {
	Action Action
	Target vcs.CommitID
}

// Plan is the ordered edit script the orchestrator consumes front to back.
type Plan []Entry

// Pop removes and returns the first entry. It panics on an empty plan —
// callers must check Plan's length first, matching the orchestrator's own
// "while plan" loop invariant.
func (p Plan) Pop() (Entry, Plan) {
	return p[0], p[1:]
}

// Parse reads plan text in the format of spec §4.2:
//
//	<action> <commit-id> [<revnum> <summary>]
//
// Blank lines and lines whose first non-space character is '#' are
// skipped. resolve maps a commit-id's string form to its CommitID and
// reports whether it is known at all; known-but-not-in-range detection is
// left to Verify, which has the full range available.
func Parse(text string, resolve func(string) (vcs.CommitID, bool)) (Plan, error) {
	var out Plan
	for i, rawLine := range strings.Split(text, "\n") {
		lineno := i + 1
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, errNoSpace(lineno, rawLine)
		}
		action, ok := ParseAction(fields[0])
		if !ok {
			return nil, errUnknownAction(lineno, fields[0])
		}
		id, ok := resolve(fields[1])
		if !ok {
			return nil, errUnknownChangeset(lineno, fields[1])
		}
		out = append(out, Entry{Action: action, Target: id})
	}
	return out, nil
}

// DefaultPlan builds the identity plan — one pick per commit in range, in
// ancestor-to-descendant order. Render turns it into text, cutting each
// line to 80 characters, matching the original's makedesc.
func DefaultPlan(rangeCommits []vcs.Commit) Plan {
	out := make(Plan, len(rangeCommits))
	for i, c := range rangeCommits {
		out[i] = Entry{Action: Pick, Target: c.ID}
	}
	return out
}

// Render renders a plan back to text, one informational line per entry,
// for presenting to an editor or writing the last-edit backup file. Each
// line is cut to 80 characters.
func Render(p Plan, summary func(vcs.CommitID) string) string {
	var b strings.Builder
	for _, e := range p {
		line := e.Action.String() + " " + e.Target.Short()
		if summary != nil {
			line += " " + summary(e.Target)
		}
		if len(line) > 80 {
			line = line[:80]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// RangeInfo describes the commit range a plan is being verified against,
// supplied by the orchestrator which alone knows the repo's DAG shape.
type RangeInfo struct {
	// Range lists every commit-id in [root, topmost], ancestor-first.
	Range []vcs.CommitID
	// Mutable reports each range commit's phase.
	Mutable map[vcs.CommitID]bool
	// HasExternalChildren reports, for a range commit, whether it has a
	// child outside the range (would be orphaned by the rewrite).
	HasExternalChildren map[vcs.CommitID]bool
}

// Verify enforces the Plan Entry invariants of spec §3:
//   - exactly one entry per commit in range,
//   - every entry references a commit in range,
//   - the first entry is not fold,
//   - every commit in range is mutable,
//   - unless keep, no range commit has children outside the range.
func Verify(p Plan, info RangeInfo, keep bool) error {
	if len(p) > 0 && p[0].Action == Fold {
		return errFoldFirst()
	}

	inRange := make(map[vcs.CommitID]bool, len(info.Range))
	for _, id := range info.Range {
		inRange[id] = true
	}

	seen := make(map[vcs.CommitID]bool, len(p))
	for _, e := range p {
		if !inRange[e.Target] {
			return errNotInRange(0, e.Target.String())
		}
		if seen[e.Target] {
			return errDuplicate(e.Target.String())
		}
		seen[e.Target] = true
	}

	if missing := len(info.Range) - len(seen); missing != 0 {
		return errIncomplete(missing)
	}

	for _, id := range info.Range {
		if !info.Mutable[id] {
			return errImmutable(id.String())
		}
		if !keep && info.HasExternalChildren[id] {
			return errOrphans(id.String())
		}
	}
	return nil
}
