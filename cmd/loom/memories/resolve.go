package memoriescmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
)

const resolveLongDesc string = `Mark a planted foreshadow as paid off by a chapter.

Only planted foreshadows can be resolved; resolving an already resolved
foreshadow is a no-op.

Examples:
  loom memories resolve <memory-id> <chapter-id>`

const resolveShortDesc string = "Mark a foreshadow paid off"

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <memory-id> <chapter-id>",
		Short: resolveShortDesc,
		Long:  resolveLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runResolve(args[0], args[1], configDir, debug)
		},
	}

	return cmd
}

func runResolve(memoryID, chapterID, configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	s, err := stack.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.NewResolver().Resolve(ctx, memoryID, chapterID); err != nil {
		return fmt.Errorf("resolving foreshadow: %w", err)
	}

	fmt.Printf("\n  %s Resolved %s at chapter %s\n\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(memoryID),
		cliui.IDStyle.Render(chapterID),
	)
	return nil
}
