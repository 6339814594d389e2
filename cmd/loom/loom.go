// Package loomcmder provides the root loom cobra command.
package loomcmder

import (
	"github.com/spf13/cobra"

	versioncmder "github.com/storyloom/loom/cmd/version"

	backfillcmder "github.com/storyloom/loom/cmd/loom/backfill"
	charactercmder "github.com/storyloom/loom/cmd/loom/character"
	chapterscmder "github.com/storyloom/loom/cmd/loom/chapters"
	configcmder "github.com/storyloom/loom/cmd/loom/config"
	generatecmder "github.com/storyloom/loom/cmd/loom/generate"
	initcmder "github.com/storyloom/loom/cmd/loom/init"
	memoriescmder "github.com/storyloom/loom/cmd/loom/memories"
	outlinecmder "github.com/storyloom/loom/cmd/loom/outline"
	projectcmder "github.com/storyloom/loom/cmd/loom/project"
	servecmder "github.com/storyloom/loom/cmd/loom/serve"
	statuscmder "github.com/storyloom/loom/cmd/loom/status"
)

const loomLongDesc string = `Loom is a narrative memory and context engine for long-form fiction.

Set up a project, add its characters and outlines, then generate chapters:
  loom project create    Create a project and make it active
  loom outline add       Add a plot outline to the active project
  loom generate          Generate the next chapter from an outline

Loom extracts durable story facts from every generated chapter and folds
the relevant ones back into the context of later chapters.`

const loomShortDesc string = "Loom - Narrative Memory Engine"

func NewLoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom",
		Short: loomShortDesc,
		Long:  loomLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .loom/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(projectcmder.NewProjectCmd())
	cmd.AddCommand(charactercmder.NewCharacterCmd())
	cmd.AddCommand(outlinecmder.NewOutlineCmd())
	cmd.AddCommand(chapterscmder.NewChaptersCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(generatecmder.NewRegenerateCmd())
	cmd.AddCommand(memoriescmder.NewMemoriesCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
