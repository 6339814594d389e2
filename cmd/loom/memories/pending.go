package memoriescmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
)

const pendingLongDesc string = `List the active project's unresolved foreshadowing.

Planted foreshadows are surfaced in the context of every generated chapter
until a later chapter pays them off, either automatically during generation
or manually with "loom memories resolve".

Examples:
  loom memories pending`

const pendingShortDesc string = "List unresolved foreshadowing"

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: pendingShortDesc,
		Long:  pendingLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runPending(configDir, debug)
		},
	}

	return cmd
}

func runPending(configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	s, err := stack.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.ActiveProject(ctx)
	if err != nil {
		return err
	}

	pending, err := s.Store.PendingForeshadows(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("listing pending foreshadows: %w", err)
	}

	if len(pending) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No unresolved foreshadowing."))
		return nil
	}

	fmt.Printf("\n  %s\n\n", cliui.KeyStyle.Render(fmt.Sprintf("%d unresolved foreshadows:", len(pending))))
	for _, m := range pending {
		printMemory(m)
	}
	fmt.Println()

	return nil
}
