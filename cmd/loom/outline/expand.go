package outlinecmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/generate"
	"github.com/storyloom/loom/pkg/logger"
)

type expandCommander struct {
	outlineID    string
	count        int
	strategy     string
	scenes       bool
	requirements string
	apply        bool
	force        bool

	configDir string
	debug     bool
}

const expandLongDesc string = `Expand an outline into sub-chapter plans.

The model splits one outline into several planned sub-chapters, each with
a plot summary, key events, and a narrative goal. By default the plans are
only printed; pass --apply to create the pending chapter rows, which
"loom generate" then fills one slot at a time.

Strategies: balanced (even pacing), climax (payoff concentrated late),
detail (every scene drawn out).

Examples:
  loom outline expand 4f1c... --count 4
  loom outline expand 4f1c... --count 4 --strategy climax --apply
  loom outline expand 4f1c... --apply --force`

const expandShortDesc string = "Expand an outline into sub-chapter plans"

func newExpandCmd() *cobra.Command {
	cmder := &expandCommander{}

	cmd := &cobra.Command{
		Use:   "expand <outline-id>",
		Short: expandShortDesc,
		Long:  expandLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.outlineID = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().IntVarP(&cmder.count, "count", "n", generate.DefaultExpandCount, "Target sub-chapter count (2-10)")
	cmd.Flags().StringVar(&cmder.strategy, "strategy", string(generate.StrategyBalanced), "Expansion strategy: balanced, climax, or detail")
	cmd.Flags().BoolVar(&cmder.scenes, "scenes", false, "Ask for a per-scene breakdown in each plan")
	cmd.Flags().StringVar(&cmder.requirements, "requirements", "", "Extra guidance folded into the expansion prompt")
	cmd.Flags().BoolVar(&cmder.apply, "apply", false, "Create pending chapter rows from the plans")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Replace chapters the outline already has")

	return cmd
}

func (c *expandCommander) run() error {
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

	expander := s.NewExpander()

	var plans []generate.ChapterPlan
	err = cliui.Step(os.Stdout, "Planning sub-chapters", func() error {
		var stepErr error
		plans, stepErr = expander.Preview(ctx, project, c.outlineID, generate.ExpandOptions{
			Count:        c.count,
			Strategy:     generate.ExpandStrategy(c.strategy),
			SceneDetail:  c.scenes,
			Requirements: c.requirements,
		})
		return stepErr
	})
	if err != nil {
		return err
	}

	fmt.Println()
	for _, plan := range plans {
		printPlan(plan)
	}

	if !c.apply {
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Preview only. Re-run with --apply to create these chapters."))
		return nil
	}

	created, err := expander.Apply(ctx, project, c.outlineID, plans, c.force)
	if err != nil {
		return err
	}

	fmt.Printf("  %s Created %d pending chapters\n", cliui.SuccessMark, len(created))
	for _, ch := range created {
		fmt.Printf("    %s chapter %d (slot %d) %s\n",
			cliui.KeyStyle.Render(ch.Title),
			ch.Number, ch.SubIndex,
			cliui.DimStyle.Render(ch.ID))
	}
	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("Generate them with \"loom generate %s --sub-index <slot>\".", c.outlineID)))
	return nil
}

func printPlan(plan generate.ChapterPlan) {
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render(fmt.Sprintf("%d.", plan.SubIndex)),
		cliui.NameStyle.Render(plan.Title))
	fmt.Printf("     %s\n", plan.PlotSummary)
	if len(plan.KeyEvents) > 0 {
		fmt.Printf("     %s %s\n", cliui.DimStyle.Render("Events:"), strings.Join(plan.KeyEvents, "; "))
	}
	if plan.NarrativeGoal != "" {
		fmt.Printf("     %s %s\n", cliui.DimStyle.Render("Goal:"), plan.NarrativeGoal)
	}
	if plan.EstimatedWords > 0 {
		fmt.Printf("     %s\n", cliui.DimStyle.Render(fmt.Sprintf("~%d words", plan.EstimatedWords)))
	}
	for _, scene := range plan.Scenes {
		fmt.Printf("     %s %s (%s): %s\n",
			cliui.DimStyle.Render("Scene:"),
			scene.Location, strings.Join(scene.Characters, ", "), scene.Purpose)
	}
	fmt.Println()
}
