package projectcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/dotdir"
)

const clearLongDesc string = `Clear the active project.

Removes the active project state from the .loom/ directory. Commands that
need a project will fail until "loom project use" selects another one.

Examples:
  loom project clear`

const clearShortDesc string = "Clear the active project"

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: clearShortDesc,
		Long:  clearLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runClear(configDir)
		},
	}

	return cmd
}

func runClear(configDir string) error {
	dotdirManager := dotdir.NewManager()
	if err := dotdirManager.ClearActive(configDir); err != nil {
		return fmt.Errorf("clearing active project state: %w", err)
	}

	fmt.Printf("\n  %s Cleared active project\n\n", cliui.SuccessMark)
	return nil
}
