// Package generatecmder provides the generate and regenerate commands for
// streaming chapter generation.
package generatecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storyloom/loom/cmd/loom/stack"
	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/config"
	"github.com/storyloom/loom/pkg/generate"
	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/worker"
)

type generateCommander struct {
	outlineID string
	subIndex  int

	model           string
	temperature     float64
	topP            float64
	targetWordCount int
	memoryTopK      int
	noMemories      bool

	configDir string
	debug     bool

	logger *zap.Logger
}

const generateLongDesc string = `Generate a chapter from an outline.

Streams the chapter prose to stdout as it is generated. The generation
context folds in the project's world setting, character roster, sampled
chapter history, and the story facts most relevant to the outline.

After the chapter completes, memory extraction and summarization run in
the background; the command waits for them before exiting.

Use --sub-index for expansion mode, where one outline becomes several
chapters (sub-index 1..N). The default sub-index 0 is one-to-one mode.

Examples:
  loom generate 4f680e62-90f1-4d39-b7ab-91a0e2a82b32
  loom generate 4f680e62-90f1-4d39-b7ab-91a0e2a82b32 --sub-index 2
  loom generate 4f680e62-90f1-4d39-b7ab-91a0e2a82b32 --model llama3.1 --temperature 0.9`

const generateShortDesc string = "Generate a chapter from an outline"

func NewGenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "generate <outline-id>",
		Short: generateShortDesc,
		Long:  generateLongDesc,
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

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVar(&cmder.subIndex, "sub-index", 0, "Sub-chapter index for expansion mode (0 = one-to-one)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.LLM.Model, "Model name")
	cmd.Flags().Float64Var(&cmder.temperature, "temperature", defaults.Generation.Temperature, "Sampling temperature")
	cmd.Flags().Float64Var(&cmder.topP, "top-p", defaults.Generation.TopP, "Nucleus sampling cutoff")
	cmd.Flags().IntVarP(&cmder.targetWordCount, "words", "w", defaults.Generation.TargetWordCount, "Target word count")
	cmd.Flags().IntVarP(&cmder.memoryTopK, "memory-top-k", "k", defaults.Retrieval.TopK, "Number of story facts to retrieve")
	cmd.Flags().BoolVar(&cmder.noMemories, "no-memories", false, "Skip memory retrieval for this chapter")

	return cmd
}

func (c *generateCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := stack.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.ActiveProject(ctx)
	if err != nil {
		return err
	}

	coordinator, pool, err := s.NewCoordinator()
	if err != nil {
		return err
	}

	out, err := coordinator.Generate(ctx, project, c.outlineID, c.subIndex, c.options())
	if err != nil {
		pool.Close()
		return err
	}

	return streamOut(out, pool)
}

func (c *generateCommander) options() generate.Options {
	return generate.Options{
		Model:           c.model,
		Temperature:     c.temperature,
		TopP:            c.topP,
		TargetWordCount: c.targetWordCount,
		MemoryTopK:      c.memoryTopK,
		SkipMemories:    c.noMemories,
	}
}

// streamOut prints the chapter prose as it streams, then waits for
// background extraction and summarization to drain.
func streamOut(out <-chan llm.Chunk, pool *worker.Pool) error {
	var streamErr error
	for chunk := range out {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Text != "" {
			fmt.Print(chunk.Text)
		}
	}
	fmt.Println()

	if streamErr != nil {
		pool.Close()
		return fmt.Errorf("generation failed: %w", streamErr)
	}

	fmt.Println()
	return cliui.Step(os.Stdout, "Extracting story memories", func() error {
		pool.Close()
		return nil
	})
}
