// Package outlinecmder provides the outline command for adding plot
// outlines to the active project.
package outlinecmder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/novel"
)

type addCommander struct {
	title      string
	content    string
	orderIndex int

	configDir string
	debug     bool
}

const outlineLongDesc string = `Manage the active project's plot outlines.

An outline is one planned beat of the story. "loom generate" turns an
outline into a chapter; the chapter's global number is allocated at
generation time, so outlines can be authored in any order.

Examples:
  loom outline add "The ferry sinks" --content "Mira loses the map..." --order 3
  loom outline expand 4f1c... --count 4 --apply`

const outlineShortDesc string = "Manage plot outlines"

func NewOutlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline",
		Short: outlineShortDesc,
		Long:  outlineLongDesc,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newExpandCmd())

	return cmd
}

const addLongDesc string = `Add a plot outline to the active project.

Prints the outline id, which "loom generate" takes as its argument.

Examples:
  loom outline add "The ferry sinks" --content "Mira loses the map in the wreck."`

const addShortDesc string = "Add a plot outline"

func newAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.title = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.content, "content", "c", "", "Outline content: what happens in this beat")
	cmd.Flags().IntVarP(&cmder.orderIndex, "order", "o", 0, "Authored position of the outline")

	return cmd
}

func (c *addCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	s, err := stack.Open(ctx, c.configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.ActiveProject(ctx)
	if err != nil {
		return err
	}

	outline := &novel.Outline{
		ID:         uuid.NewString(),
		ProjectID:  project.ID,
		Title:      c.title,
		Content:    c.content,
		OrderIndex: c.orderIndex,
	}

	if err := s.Store.InsertOutline(ctx, outline); err != nil {
		return fmt.Errorf("adding outline: %w", err)
	}

	fmt.Printf("\n  %s Added outline %s\n", cliui.SuccessMark, cliui.NameStyle.Render(outline.Title))
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("ID:"), cliui.IDStyle.Render(outline.ID))
	return nil
}
