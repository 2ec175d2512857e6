package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/tidecore/histedit/lock/reslock"
	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/utils"
	"github.com/tidecore/histedit/vcs"
)

// lastEditFileName is where the most recently edited plan text is backed
// up before parsing, for manual recovery if parsing or the run itself
// fails (spec §6 "Persisted files").
const lastEditFileName = "histedit-last-edit.txt"

// Orchestrator drives the histedit state machine: start, continue and
// abort, sharing one action loop (spec §4.7 C7).
type Orchestrator struct {
	Deps         Deps
	Bookmarks    vcs.Bookmarks
	Repair       vcs.Repair
	Obsolescence vcs.Obsolescence
	Discovery    vcs.Discovery
	Overlay      vcs.PatchOverlay

	Store *store.Store

	// WCLock and StoreLock are distinct resources, always acquired
	// working-copy-first (spec §5). The orchestrator run holds WCLock for
	// its whole duration; individual mutations additionally take
	// StoreLock for their duration.
	WCLock    *reslock.Lock
	StoreLock *reslock.Lock
}

// StartOptions configures a new histedit run (spec §6 CLI flags).
type StartOptions struct {
	// Parent is the user-resolved commit to rewrite history above. Empty
	// (NullID) when Outgoing is set instead.
	Parent vcs.CommitID
	// Outgoing resolves Parent from peer discovery instead.
	Outgoing bool
	Peer     string
	Force    bool

	Keep bool

	// RulesText is plan text read from --commands FILE. Empty means
	// prompt interactively with a default plan via Editor.
	RulesText string

	// ResolveCommit maps a plan line's commit-id token to a CommitID,
	// used while parsing RulesText.
	ResolveCommit func(string) (vcs.CommitID, bool)
}

var logStart = log.WithFunc("engine.Orchestrator.Start")

// Start begins a new histedit run.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) error {
	if o.Overlay != nil {
		applied, err := o.Overlay.Applied(ctx)
		if err != nil {
			return fmt.Errorf("check overlay: %w", err)
		}
		if applied {
			return ErrMQApplied
		}
	}

	dirty, err := o.workingCopyDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return ErrDirty
	}

	if o.Store.Exists() {
		return ErrAlreadyInProgress
	}

	if err := o.WCLock.Acquire(ctx, -1); err != nil {
		return fmt.Errorf("acquire working-copy lock: %w", err)
	}
	defer o.WCLock.Release(ctx) //nolint:errcheck

	parent := opts.Parent
	if opts.Outgoing {
		missing, err := o.Discovery.FindCommonOutgoing(ctx, opts.Peer)
		if err != nil {
			return fmt.Errorf("find common outgoing: %w", err)
		}
		if len(missing) == 0 {
			if !opts.Force {
				return fmt.Errorf("%w: no outgoing changes against %s", ErrNothingToEdit, opts.Peer)
			}
		} else {
			first, err := o.Deps.Repo.Get(ctx, missing[0])
			if err != nil {
				return fmt.Errorf("load first outgoing commit: %w", err)
			}
			parent = first.Parent1
		}
	}

	rangeCommits, err := o.Deps.Repo.Set(ctx, "range", parent)
	if err != nil {
		return fmt.Errorf("resolve range: %w", err)
	}
	if len(rangeCommits) == 0 {
		return ErrNothingToEdit
	}
	topmost := rangeCommits[len(rangeCommits)-1].ID

	info, err := o.buildRangeInfo(ctx, rangeCommits)
	if err != nil {
		return err
	}

	var p plan.Plan
	if opts.RulesText != "" {
		p, err = plan.Parse(opts.RulesText, opts.ResolveCommit)
	} else {
		p = plan.DefaultPlan(rangeCommits)
		text := plan.Render(p, func(id vcs.CommitID) string {
			c, gerr := o.Deps.Repo.Get(ctx, id)
			if gerr != nil {
				return ""
			}
			return c.Description
		})
		edited, eerr := o.Deps.Editor.Edit(ctx, text)
		if eerr != nil {
			return fmt.Errorf("edit plan: %w", eerr)
		}

		if werr := utils.AtomicWriteFile(o.Deps.Repo.SJoin(lastEditFileName), []byte(edited), 0o640); werr != nil {
			// The backup is for manual recovery only; losing it never
			// blocks the edit the user is actually waiting on.
			logStart.Warnf(ctx, "write %s: %s", lastEditFileName, werr)
		}

		p, err = plan.Parse(edited, opts.ResolveCommit)
	}
	if err != nil {
		return err
	}

	if err := plan.Verify(p, info, opts.Keep); err != nil {
		return err
	}

	logStart.Infof(ctx, "starting histedit: %d entries, parent %s, topmost %s", len(p), parent.Short(), topmost.Short())

	state := store.State{
		ParentNode: parent,
		Plan:       p,
		Keep:       opts.Keep,
		Topmost:    topmost,
	}
	return o.runLoop(ctx, state, NewGraph())
}

func (o *Orchestrator) buildRangeInfo(ctx context.Context, rangeCommits []vcs.Commit) (plan.RangeInfo, error) {
	ids := make([]vcs.CommitID, len(rangeCommits))
	inRange := make(map[vcs.CommitID]bool, len(rangeCommits))
	for i, c := range rangeCommits {
		ids[i] = c.ID
		inRange[c.ID] = true
	}

	mutable := make(map[vcs.CommitID]bool, len(rangeCommits))
	hasExternal := make(map[vcs.CommitID]bool, len(rangeCommits))
	for _, c := range rangeCommits {
		phase, err := o.Deps.Repo.Phase(ctx, c.ID)
		if err != nil {
			return plan.RangeInfo{}, fmt.Errorf("phase of %s: %w", c.ID.Short(), err)
		}
		mutable[c.ID] = phase == vcs.PhaseMutable

		children, err := o.Deps.Repo.Children(ctx, c.ID)
		if err != nil {
			return plan.RangeInfo{}, fmt.Errorf("children of %s: %w", c.ID.Short(), err)
		}
		for _, child := range children {
			if !inRange[child] {
				hasExternal[c.ID] = true
				break
			}
		}
	}

	return plan.RangeInfo{Range: ids, Mutable: mutable, HasExternalChildren: hasExternal}, nil
}

func (o *Orchestrator) workingCopyDirty(ctx context.Context) (bool, error) {
	type dirtyChecker interface {
		Dirty(ctx context.Context) (bool, error)
	}
	if dc, ok := o.Deps.Repo.(dirtyChecker); ok {
		return dc.Dirty(ctx)
	}
	return false, nil
}

// runLoop is the shared action loop of spec §4.7, executed by Start after
// building the initial state and by Continue after resolving the
// suspended entry.
func (o *Orchestrator) runLoop(ctx context.Context, state store.State, graph *Graph) error {
	actions := map[plan.Action]func(context.Context, Deps, vcs.CommitID, vcs.Commit) (Result, error){
		plan.Pick: Pick,
		plan.Edit: Edit,
		plan.Fold: Fold,
		plan.Drop: Drop,
		plan.Mess: Mess,
	}

	for len(state.Plan) > 0 {
		state.Replacements = graph.Raw()
		if err := o.Store.Write(state); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}

		entry, rest := state.Plan.Pop()
		target, err := o.Deps.Repo.Get(ctx, entry.Target)
		if err != nil {
			return fmt.Errorf("load target %s: %w", entry.Target.Short(), err)
		}

		fn, ok := actions[entry.Action]
		if !ok {
			return fmt.Errorf("%w: unknown action %v", ErrNeedsContinue, entry.Action)
		}

		if err := o.withStoreLock(ctx, func(ctx context.Context) error {
			result, actErr := fn(ctx, o.Deps, state.ParentNode, target)
			if actErr != nil {
				return actErr
			}
			state.ParentNode = result.Parent
			graph.Append(result.Replacements...)
			return nil
		}); err != nil {
			if errors.Is(err, ErrNeedsContinue) {
				state.Plan = append(plan.Plan{entry}, rest...)
				state.Replacements = graph.Raw()
				if werr := o.Store.Write(state); werr != nil {
					return fmt.Errorf("persist suspended state: %w", werr)
				}
				return err
			}
			return err
		}

		state.Plan = rest
	}

	return o.finish(ctx, state, graph)
}

func (o *Orchestrator) withStoreLock(ctx context.Context, fn func(context.Context) error) error {
	if err := o.StoreLock.Acquire(ctx, -1); err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer o.StoreLock.Release(ctx) //nolint:errcheck
	return fn(ctx)
}

// finish updates the working copy to the final parent, reduces the
// replacement graph, migrates bookmarks, strips or obsoletes superseded
// commits, and removes the state file (spec §4.7 loop tail).
func (o *Orchestrator) finish(ctx context.Context, state store.State, graph *Graph) error {
	if _, err := o.Deps.Merge.Update(ctx, o.Deps.Repo, state.ParentNode, false, true, vcs.NullID); err != nil {
		return fmt.Errorf("update to final parent: %w", err)
	}

	reduced, err := graph.Reduce(ctx, o.Deps.Repo.ChangelogRev)
	if err != nil {
		return fmt.Errorf("reduce replacement graph: %w", err)
	}

	if !state.Keep {
		if err := o.migrateBookmarks(ctx, state.Topmost, reduced); err != nil {
			return fmt.Errorf("migrate bookmarks: %w", err)
		}
		if err := o.cleanup(ctx, reduced); err != nil {
			return err
		}
	}

	return o.Store.Remove()
}

// migrateBookmarks moves every bookmark sitting on the old topmost, or on
// any remapped precursor, to that precursor's last successor — walking
// through ancestors for dropped commits, and special-casing the active
// topmost bookmark even when its new target isn't itself a final
// successor key (spec §4.7, supplemented from the original's
// movebookmarks).
func (o *Orchestrator) migrateBookmarks(ctx context.Context, oldTopmost vcs.CommitID, r Reduced) error {
	if o.Bookmarks == nil {
		return nil
	}
	all, err := o.Bookmarks.All(ctx)
	if err != nil {
		return fmt.Errorf("list bookmarks: %w", err)
	}

	newTopmost, haveNewTopmost, err := NewTopmost(ctx, o.Deps.Repo, r, o.Deps.Repo.ChangelogRev)
	if err != nil {
		return fmt.Errorf("compute new topmost: %w", err)
	}

	for name, target := range all {
		moved := false

		if target == oldTopmost && haveNewTopmost {
			if err := o.Bookmarks.Move(ctx, name, newTopmost); err != nil {
				return fmt.Errorf("move bookmark %s: %w", name, err)
			}
			moved = true
		}

		if !moved {
			if succs, ok := r.Final[target]; ok {
				last, err := o.lastSuccessor(ctx, target, succs, r)
				if err != nil {
					return err
				}
				if err := o.Bookmarks.Move(ctx, name, last); err != nil {
					return fmt.Errorf("move bookmark %s: %w", name, err)
				}
			}
		}
	}
	return o.Bookmarks.Write(ctx)
}

// lastSuccessor resolves a bookmark target's final location: the last
// surviving successor if any, or for a fully-dropped chain, the nearest
// surviving ancestor, walked parent1-by-parent1 until a commit that is
// not itself a dropped precursor in r (spec §4.7 supplemented
// dropped-commit-parent walk).
func (o *Orchestrator) lastSuccessor(ctx context.Context, target vcs.CommitID, succs []vcs.CommitID, r Reduced) (vcs.CommitID, error) {
	if len(succs) > 0 {
		return succs[len(succs)-1], nil
	}
	base := target
	for {
		c, err := o.Deps.Repo.Get(ctx, base)
		if err != nil {
			return vcs.CommitID{}, fmt.Errorf("walk dropped ancestor of %s: %w", target.Short(), err)
		}
		base = c.Parent1
		if base.IsNull() {
			return base, nil
		}
		if baseSuccs, isPrecursor := r.Final[base]; !isPrecursor || len(baseSuccs) > 0 {
			return base, nil
		}
	}
}
