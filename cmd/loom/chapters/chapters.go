// Package chapterscmder provides the chapters command for listing the
// active project's generated chapters.
package chapterscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/utils"
)

const chaptersLongDesc string = `List the active project's chapters.

Shows every chapter version ordered by chapter number, with its generation
status, word count, and a summary preview. Regenerated chapters appear as
separate versions of the same number.

Examples:
  loom chapters
  loom chapters --full`

const chaptersShortDesc string = "List the active project's chapters"

func NewChaptersCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "chapters",
		Short: chaptersShortDesc,
		Long:  chaptersLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runChapters(configDir, debug, full)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print full chapter content instead of summaries")

	return cmd
}

func runChapters(configDir string, debug, full bool) error {
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

	chapters, err := s.Store.ChaptersByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("listing chapters: %w", err)
	}

	if len(chapters) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No chapters yet. Generate one with \"loom generate\"."))
		return nil
	}

	fmt.Printf("\n  %s %s %s\n\n",
		cliui.KeyStyle.Render("Project:"),
		cliui.NameStyle.Render(project.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d chapters, %d words)", project.ChapterCount, project.TotalWordCount)),
	)

	for _, ch := range chapters {
		printChapter(ch, full)
	}

	return nil
}

func printChapter(ch *novel.Chapter, full bool) {
	mark := cliui.SuccessMark
	if ch.GenerationStatus != novel.GenerationCompleted {
		mark = cliui.DimStyle.Render("●")
	}
	if ch.GenerationStatus == novel.GenerationFailed {
		mark = cliui.FailMark
	}

	version := ""
	if ch.Version > 1 {
		version = fmt.Sprintf(" v%d", ch.Version)
	}

	fmt.Printf("  %s %s %s %s\n",
		mark,
		cliui.KeyStyle.Render(fmt.Sprintf("Chapter %d%s", ch.Number, version)),
		cliui.NameStyle.Render(ch.Title),
		cliui.DimStyle.Render(fmt.Sprintf("[%s, %d words] %s", ch.GenerationStatus, ch.WordCount, ch.ID)),
	)

	if full {
		if ch.Content != "" {
			// RenderMarkdown falls back to the raw content on error.
			rendered, _ := cliui.RenderMarkdown(ch.Content)
			fmt.Printf("\n%s\n", rendered)
		}
		return
	}

	digest := ch.Digest()
	if digest.Summary != "" {
		fmt.Printf("    %s\n", cliui.DimStyle.Render(utils.Truncate(digest.Summary, 96)))
	}
	fmt.Println()
}
