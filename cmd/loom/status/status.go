// Package statuscmder provides the status command showing the active
// project and its progress.
package statuscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/config"
	"github.com/storyloom/loom/pkg/dotdir"
	"github.com/storyloom/loom/pkg/logger"
)

const statusLongDesc string = `Show the active project and its progress.

Displays the active project, its chapter and word counts, memory coverage,
and unresolved foreshadowing.

Examples:
  loom status`

const statusShortDesc string = "Show the active project and its progress"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runStatus(configDir, debug)
		},
	}

	return cmd
}

func runStatus(configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if target := cfger.GetTarget(); target != "" {
		fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
	}

	dotdirManager := dotdir.NewManager()
	state, err := dotdirManager.LoadActiveState(configDir)
	if err != nil {
		return fmt.Errorf("loading active project state: %w", err)
	}
	if state == nil {
		fmt.Printf("\n  %s No active project. Select one with \"loom project use\".\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	ctx := context.Background()
	s, err := stack.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.Store.ProjectByID(ctx, state.ProjectID)
	if err != nil {
		return fmt.Errorf("loading active project %s: %w", state.ProjectID, err)
	}

	fmt.Printf("\n  %s  %s %s\n",
		cliui.KeyStyle.Render("Project: "),
		cliui.NameStyle.Render(project.Title),
		cliui.DimStyle.Render(project.ID),
	)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Status:  "), cliui.ValueStyle.Render(string(project.Status)))
	fmt.Printf("  %s  %d chapters, %d words\n",
		cliui.KeyStyle.Render("Progress:"),
		project.ChapterCount,
		project.TotalWordCount,
	)

	stats, err := s.Store.MemoryStatistics(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("loading memory statistics: %w", err)
	}

	fmt.Printf("  %s  %d facts across %d chapters, %d foreshadows pending\n\n",
		cliui.KeyStyle.Render("Memories:"),
		stats.Total,
		stats.CoveredChapters,
		stats.PendingForeshadows,
	)

	return nil
}
