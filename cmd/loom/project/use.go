package projectcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/dotdir"
	"github.com/storyloom/loom/pkg/logger"
)

const useLongDesc string = `Make an existing project the active project.

Subsequent commands (generate, memories, status) operate on the active
project. The project must already exist in storage.

Examples:
  loom project use 4f680e62-90f1-4d39-b7ab-91a0e2a82b32
  loom project use 4f680e62-90f1-4d39-b7ab-91a0e2a82b32 --user alice`

const useShortDesc string = "Make an existing project active"

func newUseCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "use <project-id>",
		Short: useShortDesc,
		Long:  useLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runUse(args[0], userID, configDir, debug)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id (default: keep current, or the project's owner)")

	return cmd
}

func runUse(projectID, userID, configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	s, err := stack.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.Store.ProjectByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("loading project %s: %w", projectID, err)
	}

	if userID == "" {
		userID = project.UserID
	}

	dotdirManager := dotdir.NewManager()
	if err := dotdirManager.SaveActive(&dotdir.ActiveState{
		UserID:    userID,
		ProjectID: project.ID,
	}, configDir); err != nil {
		return fmt.Errorf("saving active project state: %w", err)
	}

	fmt.Printf("\n  %s Active project: %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(project.Title),
		cliui.DimStyle.Render(project.ID),
	)
	return nil
}
