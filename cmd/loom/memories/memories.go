// Package memoriescmder provides the memories command for inspecting and
// managing the active project's extracted story facts.
package memoriescmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyloom/loom/pkg/cliui"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/utils"
)

const memoriesLongDesc string = `Inspect and manage the active project's story memories.

Memories are durable narrative facts extracted from generated chapters:
plot points, character events, location events, hooks, and foreshadowing.
They are retrieved by semantic similarity when assembling the context for
later chapters.

Use subcommands to search, list, or resolve memories:
  loom memories search <query>             Semantic search over story facts
  loom memories pending                    List unresolved foreshadowing
  loom memories resolve <memory> <chapter> Mark a foreshadow paid off
  loom memories stats                      Memory statistics
  loom memories reextract <chapter-id>     Re-run extraction for a chapter

Examples:
  loom memories search "the lost ring"
  loom memories pending
  loom memories stats`

const memoriesShortDesc string = "Inspect and manage story memories"

func NewMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: memoriesShortDesc,
		Long:  memoriesLongDesc,
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newReextractCmd())

	return cmd
}

func printMemory(m *novel.Memory) {
	badge := string(m.Type)
	if m.Foreshadow == novel.ForeshadowPlanted {
		badge += ", planted"
	}
	if m.Foreshadow == novel.ForeshadowResolved {
		badge += ", resolved"
	}

	fmt.Printf("  %s %s %s\n",
		cliui.NameStyle.Render(m.Title),
		cliui.DimStyle.Render(fmt.Sprintf("[%s, importance %.2f, ch %d]", badge, m.Importance, m.StoryTimeline)),
		cliui.DimStyle.Render(m.ID),
	)
	if m.Content != "" {
		fmt.Printf("    %s\n", utils.Truncate(m.Content, 96))
	}
}
