package memoriescmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/novel"
)

const reextractLongDesc string = `Re-run memory extraction for a chapter.

Deletes the chapter's existing memories (relational rows and vector
mirrors) and extracts a fresh set from its current content. Useful after
editing a chapter's prose by hand.

Examples:
  loom memories reextract 7c2a1f4e-01bd-49e3-97ab-3340cf5d21aa`

const reextractShortDesc string = "Re-run extraction for a chapter"

func newReextractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reextract <chapter-id>",
		Short: reextractShortDesc,
		Long:  reextractLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runReextract(args[0], configDir, debug)
		},
	}

	return cmd
}

func runReextract(chapterID, configDir string, debug bool) error {
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

	var memories []*novel.Memory
	err = cliui.Step(os.Stdout, fmt.Sprintf("Re-extracting memories for chapter %s", chapterID), func() error {
		var stepErr error
		memories, stepErr = s.NewMemoryService().ReExtract(ctx, project, chapterID)
		return stepErr
	})
	if err != nil {
		return fmt.Errorf("re-extracting memories: %w", err)
	}

	fmt.Printf("\n  %s Extracted %d memories\n\n", cliui.SuccessMark, len(memories))
	for _, m := range memories {
		printMemory(m)
	}
	if len(memories) > 0 {
		fmt.Println()
	}

	return nil
}
