// Package core holds shared plumbing for the histedit command: config
// access, command context, and wiring the engine's collaborators against
// the in-memory reference repository (spec.md §6 treats the real DAG
// store as an external collaborator this module never implements).
package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tidecore/histedit/config"
	"github.com/tidecore/histedit/engine"
	"github.com/tidecore/histedit/lock/reslock"
	"github.com/tidecore/histedit/memrepo"
	"github.com/tidecore/histedit/store"
	"github.com/tidecore/histedit/utils"
	"github.com/tidecore/histedit/vcs"
)

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// TerminalEditor wraps os.Stdin/os.Stdout as a vcs.Editor: it writes text
// to a temp file, shells out to conf.Editor, and reads the result back.
// If stdin isn't a terminal (piped input, CI), it falls back to returning
// text unchanged, matching hg's noninteractive-editor behavior.
type TerminalEditor struct {
	Editor string
}

func (e TerminalEditor) Edit(_ context.Context, text string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return text, nil
	}

	f, err := os.CreateTemp("", "histedit-edit-*.txt")
	if err != nil {
		return "", fmt.Errorf("create edit buffer: %w", err)
	}
	path := f.Name()
	defer os.Remove(path) //nolint:errcheck

	if _, err := f.WriteString(text); err != nil {
		f.Close() //nolint:errcheck
		return "", fmt.Errorf("write edit buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close edit buffer: %w", err)
	}

	editor := e.Editor
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, path) //nolint:gosec // editor path comes from trusted config/$EDITOR
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run editor %q: %w", editor, err)
	}

	edited, err := os.ReadFile(path) //nolint:gosec // path is our own temp file
	if err != nil {
		return "", fmt.Errorf("read edited buffer: %w", err)
	}
	return string(edited), nil
}

// Prompt asks a yes/no question on stdin and reports whether the answer was
// yes.
func Prompt(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question) //nolint:errcheck
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}

// Backend bundles the orchestrator and the collaborators it was built
// from, so commands can reach the reference repo directly (e.g. to resolve
// a --rev string to a commit-id before calling Start).
type Backend struct {
	Repo         *memrepo.Backend
	Orchestrator *engine.Orchestrator
}

// NewBackend wires an engine.Orchestrator against a fresh in-memory
// reference repository rooted at conf.RepoPath, with lock files under the
// repo's own metadata directory (spec.md §6 sjoin).
func NewBackend(conf *config.Config) *Backend {
	repo := memrepo.New(conf.RepoPath)

	metaDir := repo.SJoin("")
	if err := utils.EnsureDirs(metaDir); err != nil {
		// The lock and store below fail loudly on first use if this
		// didn't work, so a swallowed error here just delays the report.
		log.WithFunc("core.NewBackend").Warnf(context.Background(), "ensure metadata dir %s: %s", metaDir, err)
	}

	wcLock := reslock.New(metaDir, "wlock")
	storeLock := reslock.New(metaDir, "histedit-lock")

	orch := &engine.Orchestrator{
		Deps: engine.Deps{
			Repo:        repo,
			Merge:       repo,
			Copies:      repo,
			Editor:      TerminalEditor{Editor: conf.Editor},
			CurrentUser: func() string { return conf.User },
		},
		Bookmarks:    repo,
		Repair:       repo,
		Obsolescence: configuredObsolescence{repo: repo, enabled: conf.Obsolescence},
		Discovery:    repo,
		Overlay:      nil,
		Store:        store.New(metaDir),
		WCLock:       wcLock,
		StoreLock:    storeLock,
	}

	return &Backend{Repo: repo, Orchestrator: orch}
}

// configuredObsolescence lets the CLI's --obsolescence-style config toggle
// override the reference repo's own Enabled() knob without the repo having
// to know about config at all.
type configuredObsolescence struct {
	repo    *memrepo.Backend
	enabled bool
}

func (c configuredObsolescence) Enabled() bool { return c.enabled || c.repo.Enabled() }

func (c configuredObsolescence) CreateMarkers(ctx context.Context, markers []vcs.MarkerPair) error {
	return c.repo.CreateMarkers(ctx, markers)
}
