package memoriescmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
)

const statsLongDesc string = `Show memory statistics for the active project.

Reports total memory counts broken down by type, foreshadow state, and
how many chapters have produced at least one memory.

Examples:
  loom memories stats`

const statsShortDesc string = "Memory statistics"

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runStats(configDir, debug)
		},
	}

	return cmd
}

func runStats(configDir string, debug bool) error {
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

	stats, err := s.Store.MemoryStatistics(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("loading memory statistics: %w", err)
	}

	fmt.Printf("\n  %s %s\n\n", cliui.KeyStyle.Render("Project:"), cliui.NameStyle.Render(project.Title))
	fmt.Printf("  %s  %d\n", cliui.KeyStyle.Render("Total memories:     "), stats.Total)
	fmt.Printf("  %s  %d\n", cliui.KeyStyle.Render("Pending foreshadows:"), stats.PendingForeshadows)
	fmt.Printf("  %s  %d\n", cliui.KeyStyle.Render("Resolved foreshadows:"), stats.ResolvedForeshadows)
	fmt.Printf("  %s  %d\n\n", cliui.KeyStyle.Render("Chapters covered:   "), stats.CoveredChapters)

	if len(stats.ByType) > 0 {
		fmt.Printf("  %s\n", cliui.KeyStyle.Render("By type:"))
		for memType, count := range stats.ByType {
			fmt.Printf("    %-16s %d\n", memType, count)
		}
		fmt.Println()
	}

	return nil
}
