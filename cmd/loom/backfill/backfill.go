// Package backfillcmder provides the backfill command for repairing the
// vector mirror of the active project's memories.
package backfillcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/backfill"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
)

const backfillLongDesc string = `Repair the vector mirror for the active project's memories.

Memories are saved relationally first; if the embedding or vector upsert
fails (embedder down, vector store unreachable), the row is kept without a
vector id and retrieval falls back to importance ordering. Backfill
re-embeds and upserts those rows.

Use --dry-run to see what would be mirrored without writing.

Examples:
  loom backfill
  loom backfill --dry-run --verbose`

const backfillShortDesc string = "Repair the memory vector mirror"

func NewBackfillCmd() *cobra.Command {
	var (
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runBackfill(configDir, debug, backfill.Options{
				DryRun:  dryRun,
				Verbose: verbose,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be mirrored without writing")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each mirrored memory")

	return cmd
}

func runBackfill(configDir string, debug bool, opts backfill.Options) error {
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

	b := backfill.NewBackfiller(s.Store, s.NewMemoryService(), opts, log)
	result, err := b.Run(ctx, project)
	if err != nil {
		return fmt.Errorf("backfilling memories: %w", err)
	}

	fmt.Printf("\n  %s %s\n\n", cliui.SuccessMark, result.Summary(opts.DryRun))
	return nil
}
