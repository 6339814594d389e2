package memoriescmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/config"
	"github.com/storyloom/loom/pkg/logger"
)

const searchLongDesc string = `Semantic search over the active project's story facts.

Embeds the query and searches the project's vector collection, falling back
to the most important memories when nothing clears the similarity floor.

Examples:
  loom memories search "the lost ring"
  loom memories search "Mira's debt to the Ice Court" --top 15`

const searchShortDesc string = "Semantic search over story facts"

func newSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("top") {
				topK = cfg.Retrieval.TopK
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")

			return runSearch(args[0], topK, configDir, debug)
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&topK, "top", "k", defaults.Retrieval.TopK, "Number of results to return")

	return cmd
}

func runSearch(query string, topK int, configDir string, debug bool) error {
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

	memories, err := s.NewRetriever().Search(ctx, project, query, topK)
	if err != nil {
		return fmt.Errorf("searching memories: %w", err)
	}

	if len(memories) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No story facts found."))
		return nil
	}

	fmt.Printf("\n  %s %s\n\n",
		cliui.KeyStyle.Render("Story facts for:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%q", query)),
	)
	for _, m := range memories {
		printMemory(m)
	}
	fmt.Println()

	return nil
}
