package generatecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/config"
	"github.com/storyloom/loom/pkg/logger"
)

const regenerateLongDesc string = `Regenerate an existing chapter.

Produces a new version of the chapter with the same number and sub-index,
chained to the previous version. The previous version is kept untouched.

Examples:
  loom regenerate 7c2a1f4e-01bd-49e3-97ab-3340cf5d21aa
  loom regenerate 7c2a1f4e-01bd-49e3-97ab-3340cf5d21aa --temperature 1.0`

const regenerateShortDesc string = "Regenerate an existing chapter"

func NewRegenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "regenerate <chapter-id>",
		Short: regenerateShortDesc,
		Long:  regenerateLongDesc,
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

			if !cmd.Flags().Changed("model") {
				cmder.model = cfg.LLM.Model
			}
			if !cmd.Flags().Changed("temperature") {
				cmder.temperature = cfg.Generation.Temperature
			}
			if !cmd.Flags().Changed("top-p") {
				cmder.topP = cfg.Generation.TopP
			}
			if !cmd.Flags().Changed("words") {
				cmder.targetWordCount = cfg.Generation.TargetWordCount
			}
			if !cmd.Flags().Changed("memory-top-k") {
				cmder.memoryTopK = cfg.Retrieval.TopK
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			chapterID := args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.runRegenerate(chapterID)
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.LLM.Model, "Model name")
	cmd.Flags().Float64Var(&cmder.temperature, "temperature", defaults.Generation.Temperature, "Sampling temperature")
	cmd.Flags().Float64Var(&cmder.topP, "top-p", defaults.Generation.TopP, "Nucleus sampling cutoff")
	cmd.Flags().IntVarP(&cmder.targetWordCount, "words", "w", defaults.Generation.TargetWordCount, "Target word count")
	cmd.Flags().IntVarP(&cmder.memoryTopK, "memory-top-k", "k", defaults.Retrieval.TopK, "Number of story facts to retrieve")
	cmd.Flags().BoolVar(&cmder.noMemories, "no-memories", false, "Skip memory retrieval for this chapter")

	return cmd
}

func (c *generateCommander) runRegenerate(chapterID string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := stack.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	coordinator, pool, err := s.NewCoordinator()
	if err != nil {
		return err
	}

	out, err := coordinator.Regenerate(ctx, chapterID, c.options())
	if err != nil {
		pool.Close()
		return err
	}

	return streamOut(out, pool)
}
