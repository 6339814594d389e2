// Package charactercmder provides the character command for managing the
// active project's roster.
package charactercmder

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
	name         string
	role         string
	personality  string
	background   string
	organization bool

	configDir string
	debug     bool
}

const characterLongDesc string = `Manage the active project's character roster.

Characters appear in the context of every generated chapter, ordered by
role (protagonist, antagonist, supporting). Organizations (guilds,
factions) stay in the roster for memory extraction but are excluded from
the character section of the generation context.

Examples:
  loom character add "Mira Voss" --role protagonist --personality "wry, stubborn"
  loom character add "The Ice Court" --organization`

const characterShortDesc string = "Manage the character roster"

func NewCharacterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "character",
		Short: characterShortDesc,
		Long:  characterLongDesc,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

const addLongDesc string = `Add a character to the active project's roster.

Examples:
  loom character add "Mira Voss" --role protagonist
  loom character add "Lord Veyl" --role antagonist --background "exiled cartographer"`

const addShortDesc string = "Add a character to the roster"

func newAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.name = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.role, "role", "r", string(novel.RoleSupporting), "Role: protagonist, antagonist, or supporting")
	cmd.Flags().StringVar(&cmder.personality, "personality", "", "Personality notes")
	cmd.Flags().StringVar(&cmder.background, "background", "", "Background notes")
	cmd.Flags().BoolVar(&cmder.organization, "organization", false, "Mark as a collective entity (guild, faction)")

	return cmd
}

func (c *addCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	role := novel.CharacterRole(c.role)
	switch role {
	case novel.RoleProtagonist, novel.RoleAntagonist, novel.RoleSupporting:
	default:
		return fmt.Errorf("unknown role %q; valid roles: protagonist, antagonist, supporting", c.role)
	}

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

	character := &novel.Character{
		ID:           uuid.NewString(),
		ProjectID:    project.ID,
		Name:         c.name,
		Role:         role,
		Organization: c.organization,
		Personality:  c.personality,
		Background:   c.background,
	}

	if err := s.Store.InsertCharacter(ctx, character); err != nil {
		return fmt.Errorf("adding character: %w", err)
	}

	fmt.Printf("\n  %s Added %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(character.Name),
		cliui.DimStyle.Render(fmt.Sprintf("(%s)", character.Role)),
	)
	return nil
}

const listCharsLongDesc string = `List the active project's character roster.

Examples:
  loom character list`

const listCharsShortDesc string = "List the character roster"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listCharsShortDesc,
		Long:  listCharsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runList(configDir, debug)
		},
	}

	return cmd
}

func runList(configDir string, debug bool) error {
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

	characters, err := s.Store.CharactersByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("listing characters: %w", err)
	}

	if len(characters) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No characters yet. Add one with \"loom character add\"."))
		return nil
	}

	fmt.Println()
	for _, ch := range characters {
		kind := string(ch.Role)
		if ch.Organization {
			kind = "organization"
		}
		fmt.Printf("  %s %s %s\n",
			cliui.NameStyle.Render(ch.Name),
			cliui.DimStyle.Render(fmt.Sprintf("(%s)", kind)),
			cliui.DimStyle.Render(ch.ID),
		)
	}
	fmt.Println()
	return nil
}
