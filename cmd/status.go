package cmd

import (
	"errors"
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	cmdcore "github.com/tidecore/histedit/cmd/core"
	"github.com/tidecore/histedit/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether an edit is suspended and how large its state is",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmdcore.CommandContext(cmd)
	if err := initConfig(ctx); err != nil {
		return err
	}

	base := cmdcore.NewBackend(conf)
	st := base.Orchestrator.Store

	if !st.Exists() {
		fmt.Println("no histedit in progress")
		return nil
	}

	state, err := st.Read()
	if err != nil && !errors.Is(err, store.ErrNoState) {
		return fmt.Errorf("read state: %w", err)
	}

	size := "unknown"
	if info, serr := os.Stat(st.Path()); serr == nil {
		size = units.HumanSize(float64(info.Size()))
	}

	fmt.Printf("histedit in progress: %d entries remaining, state file %s (%s)\n", len(state.Plan), st.Path(), size)
	return nil
}
