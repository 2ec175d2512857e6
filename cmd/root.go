// Package cmd wires the histedit cobra command: flag parsing, config
// bootstrapping and dispatch to engine.Orchestrator's Start/Continue/Abort.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/tidecore/histedit/cmd/core"
	"github.com/tidecore/histedit/config"
	"github.com/tidecore/histedit/engine"
	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/vcs"
)

var (
	cfgFile string
	conf    *config.Config

	optCommands string
	optContinue bool
	optAbort    bool
	optKeep     bool
	optOutgoing bool
	optForce    bool
	optRev      string
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "histedit [PARENT]",
		Short:        "Interactively rewrite a range of commit history",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmdcore.CommandContext(cmd))
		},
		RunE: runHistedit,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "repository root directory")

	cmd.Flags().StringVar(&optCommands, "commands", "", "read plan from FILE (non-interactive)")
	cmd.Flags().BoolVarP(&optContinue, "continue", "c", false, "resume a suspended edit")
	cmd.Flags().BoolVar(&optAbort, "abort", false, "discard a suspended edit")
	cmd.Flags().BoolVarP(&optKeep, "keep", "k", false, "retain old commits (skip strip/obsolete)")
	cmd.Flags().BoolVarP(&optOutgoing, "outgoing", "o", false, "use first commit missing from push target")
	cmd.Flags().BoolVarP(&optForce, "force", "f", false, "with --outgoing, allow unrelated peer")
	cmd.Flags().StringVarP(&optRev, "rev", "r", "", "synonym for positional PARENT")

	_ = viper.BindPFlag("repo_path", cmd.PersistentFlags().Lookup("root-dir"))

	viper.SetEnvPrefix("HISTEDIT")
	viper.AutomaticEnv()

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var err error
	conf, err = config.EnsureDirs(conf)
	if err != nil {
		return fmt.Errorf("ensure dirs: %w", err)
	}

	return log.SetupLog(ctx, conf.Log, "")
}

func runHistedit(cmd *cobra.Command, args []string) error {
	ctx := cmdcore.CommandContext(cmd)
	runID := uuid.New().String()
	logger := log.WithFunc("cmd.runHistedit")

	base := cmdcore.NewBackend(conf)
	orch := base.Orchestrator

	switch {
	case optAbort:
		logger.Infof(ctx, "run %s: aborting suspended edit", runID)
		if err := orch.Abort(ctx); err != nil {
			if errors.Is(err, engine.ErrNoSuspendedEdit) {
				return fmt.Errorf("nothing to abort: %w", err)
			}
			return err
		}
		fmt.Println("abort complete")
		return nil

	case optContinue:
		logger.Infof(ctx, "run %s: continuing suspended edit", runID)
		if err := orch.Continue(ctx); err != nil {
			if errors.Is(err, engine.ErrNoSuspendedEdit) {
				return fmt.Errorf("nothing to continue: %w", err)
			}
			if errors.Is(err, engine.ErrNeedsContinue) {
				fmt.Println("unresolved conflicts remain, resolve then run --continue again")
				return err
			}
			return err
		}
		fmt.Println("histedit complete")
		return nil
	}

	parentToken := optRev
	if parentToken == "" && len(args) == 1 {
		parentToken = args[0]
	}

	resolve := func(token string) (vcs.CommitID, bool) {
		id, err := vcs.ParseCommitID(token)
		if err != nil {
			return vcs.CommitID{}, false
		}
		if _, gerr := base.Repo.Get(ctx, id); gerr != nil {
			return vcs.CommitID{}, false
		}
		return id, true
	}

	var parent vcs.CommitID
	if !optOutgoing {
		if parentToken == "" {
			return fmt.Errorf("%w: PARENT, --rev, or --outgoing is required", plan.ErrMalformed)
		}
		id, ok := resolve(parentToken)
		if !ok {
			return fmt.Errorf("unknown revision %q", parentToken)
		}
		parent = id
	}

	var rulesText string
	if optCommands != "" {
		data, err := os.ReadFile(optCommands) //nolint:gosec // path from CLI flag
		if err != nil {
			return fmt.Errorf("read --commands file: %w", err)
		}
		rulesText = string(data)
	}

	logger.Infof(ctx, "run %s: starting histedit, parent=%s outgoing=%v", runID, parentToken, optOutgoing)

	keep := conf.Keep
	if cmd.Flags().Changed("keep") {
		keep = optKeep
	}

	err := orch.Start(ctx, engine.StartOptions{
		Parent:        parent,
		Outgoing:      optOutgoing,
		Force:         optForce,
		Keep:          keep,
		RulesText:     rulesText,
		ResolveCommit: resolve,
	})
	if err != nil {
		if errors.Is(err, engine.ErrNothingToEdit) {
			fmt.Fprintln(os.Stderr, "nothing to edit") //nolint:errcheck
			os.Exit(1)
		}
		if errors.Is(err, engine.ErrNeedsContinue) {
			fmt.Println("unresolved conflicts, resolve then run --continue")
			return err
		}
		return err
	}

	fmt.Println("histedit complete")
	return nil
}
