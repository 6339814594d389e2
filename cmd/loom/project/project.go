// Package projectcmder provides the project command for creating and
// selecting novel projects.
package projectcmder

import (
	"github.com/spf13/cobra"
)

const projectLongDesc string = `Manage novel projects.

A project is one novel: its world setting, character roster, outlines, and
generated chapters. Most loom commands operate on the active project, set
with "loom project use".

Use subcommands to create or select projects:
  loom project create    Create a new project and make it active
  loom project use       Make an existing project active
  loom project clear     Clear the active project

Examples:
  loom project create --title "The Glass Orchard" --genre fantasy
  loom project use 4f680e62-90f1-4d39-b7ab-91a0e2a82b32
  loom project clear`

const projectShortDesc string = "Manage novel projects"

func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: projectShortDesc,
		Long:  projectLongDesc,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUseCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}
