package projectcmder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/compose"
	"github.com/storyloom/loom/pkg/dotdir"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/novel"
)

type createCommander struct {
	userID       string
	title        string
	genre        string
	theme        string
	timePeriod   string
	location     string
	socialSystem string
	worldRules   string
	style        string

	configDir string
	debug     bool
}

const createLongDesc string = `Create a new novel project.

Creates the project record and makes it the active project for subsequent
commands. World-setting fields (time period, location, social system, world
rules) are folded into the context of every generated chapter.

The --style flag selects a preset writing style directive. Available styles:
classical, modern, minimalist, lyrical, hardboiled.

Examples:
  loom project create --title "The Glass Orchard"
  loom project create --title "Red Static" --genre "noir" --style hardboiled`

const createShortDesc string = "Create a new novel project"

func newCreateCmd() *cobra.Command {
	cmder := &createCommander{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: createShortDesc,
		Long:  createLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Project title (required)")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "local", "Owning user id")
	cmd.Flags().StringVar(&cmder.genre, "genre", "", "Genre (e.g. fantasy, noir)")
	cmd.Flags().StringVar(&cmder.theme, "theme", "", "Central theme")
	cmd.Flags().StringVar(&cmder.timePeriod, "time-period", "", "World setting: time period")
	cmd.Flags().StringVar(&cmder.location, "location", "", "World setting: primary location")
	cmd.Flags().StringVar(&cmder.socialSystem, "social-system", "", "World setting: social system")
	cmd.Flags().StringVar(&cmder.worldRules, "world-rules", "", "World setting: special rules (magic, tech)")
	cmd.Flags().StringVar(&cmder.style, "style", "", "Writing style preset code")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func (c *createCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	if c.style != "" && compose.StyleByCode(c.style) == nil {
		codes := make([]string, 0, len(compose.Styles()))
		for _, s := range compose.Styles() {
			codes = append(codes, s.Code)
		}
		return fmt.Errorf("unknown style %q; available: %s", c.style, strings.Join(codes, ", "))
	}

	ctx := context.Background()
	s, err := stack.Open(ctx, c.configDir, log)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now().UTC()
	project := &novel.Project{
		ID:           uuid.NewString(),
		UserID:       c.userID,
		Title:        c.title,
		Genre:        c.genre,
		Theme:        c.theme,
		TimePeriod:   c.timePeriod,
		Location:     c.location,
		SocialSystem: c.socialSystem,
		WorldRules:   c.worldRules,
		StyleCode:    c.style,
		Status:       novel.ProjectPlanning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.InsertProject(ctx, project); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}

	dotdirManager := dotdir.NewManager()
	if err := dotdirManager.SaveActive(&dotdir.ActiveState{
		UserID:    c.userID,
		ProjectID: project.ID,
	}, c.configDir); err != nil {
		return fmt.Errorf("saving active project state: %w", err)
	}

	fmt.Printf("\n  %s Created project %s\n", cliui.SuccessMark, cliui.NameStyle.Render(project.Title))
	fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("ID:"), cliui.IDStyle.Render(project.ID))
	return nil
}
