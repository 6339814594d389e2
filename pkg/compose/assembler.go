// Package compose assembles the generation context for one chapter: world
// facts, character roster, outline, sampled history, retrieved memories,
// open foreshadows, style directive, and any stored expansion plan, plus
// the prompt rendering that turns the context into model input.
package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/history"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// maxContextCharacters caps the roster section of the context.
const maxContextCharacters = 5

// defaultMemoryTopK is the retrieval depth when the caller does not set
// one.
const defaultMemoryTopK = 10

// Options tune one Build call.
type Options struct {
	// SubIndex selects the slot whose pre-created expansion plan is
	// folded in, when one exists.
	SubIndex int

	// MemoryTopK caps retrieved memories. Defaults to 10 when <= 0.
	MemoryTopK int

	// SkipMemories drops retrieval and foreshadows entirely, for cheap
	// preview calls.
	SkipMemories bool
}

// GenerationContext is everything the model needs to write one chapter.
type GenerationContext struct {
	Project       *novel.Project
	ChapterNumber int

	// Characters is the roster cut for prompting: organizations
	// excluded, protagonists before antagonists before supporting, at
	// most five.
	Characters []*novel.Character

	Outline *novel.Outline

	Recent   []novel.ChapterDigest
	Skeleton []novel.ChapterDigest

	Memories           []*novel.Memory
	PendingForeshadows []*novel.Memory

	Style *novel.WritingStyle
	Plan  *novel.ExpansionPlan
}

// Assembler builds generation contexts.
type Assembler struct {
	store     storage.Store
	sampler   *history.Sampler
	retriever *memory.Retriever
	logger    *zap.Logger
}

// NewAssembler creates a context assembler.
func NewAssembler(store storage.Store, sampler *history.Sampler, retriever *memory.Retriever, logger *zap.Logger) *Assembler {
	return &Assembler{
		store:     store,
		sampler:   sampler,
		retriever: retriever,
		logger:    logger,
	}
}

// Build assembles the context for generating chapterNumber against the
// given outline. Memory retrieval degrades silently inside the retriever;
// roster, history, and chapter lookups are load-bearing and propagate
// their errors.
func (a *Assembler) Build(ctx context.Context, project *novel.Project, outline *novel.Outline, chapterNumber int, opts Options) (*GenerationContext, error) {
	roster, err := a.store.CharactersByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}

	recent, skeleton, err := a.sampler.Sample(ctx, project.ID, chapterNumber)
	if err != nil {
		return nil, fmt.Errorf("sampling history: %w", err)
	}

	gctx := &GenerationContext{
		Project:       project,
		ChapterNumber: chapterNumber,
		Characters:    mainCharacters(roster),
		Outline:       outline,
		Recent:        recent,
		Skeleton:      skeleton,
		Style:         StyleByCode(project.StyleCode),
	}

	if !opts.SkipMemories {
		topK := opts.MemoryTopK
		if topK <= 0 {
			topK = defaultMemoryTopK
		}

		query := outline.Title + "\n" + outline.Content
		memories, err := a.retriever.Search(ctx, project, query, topK)
		if err != nil {
			return nil, fmt.Errorf("retrieving memories: %w", err)
		}
		gctx.Memories = memories

		pending, err := a.retriever.PendingForeshadows(ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("listing foreshadows: %w", err)
		}
		gctx.PendingForeshadows = pending
	}

	chapter, err := a.store.ChapterBySlot(ctx, project.ID, outline.ID, opts.SubIndex)
	switch {
	case err == nil:
		gctx.Plan = chapter.Plan
	case storage.IsNotFound(err):
		// Fresh slot, nothing pre-created.
	default:
		return nil, fmt.Errorf("loading slot chapter: %w", err)
	}

	return gctx, nil
}

// mainCharacters cuts the roster down to the prompt section: organizations
// out, protagonist then antagonist then supporting, capped.
func mainCharacters(roster []*novel.Character) []*novel.Character {
	var people []*novel.Character
	for _, c := range roster {
		if c.Organization {
			continue
		}
		people = append(people, c)
	}

	sort.SliceStable(people, func(i, j int) bool {
		return people[i].Role.Rank() < people[j].Role.Rank()
	})

	if len(people) > maxContextCharacters {
		people = people[:maxContextCharacters]
	}

	return people
}

// RenderSystem formats the context's standing instructions: identity,
// world, roster, and style.
func RenderSystem(gctx *GenerationContext) string {
	var b strings.Builder

	b.WriteString("You are a novelist continuing a long-form work.\n\n")

	p := gctx.Project
	fmt.Fprintf(&b, "Novel: %s\n", p.Title)
	if p.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", p.Genre)
	}
	if p.Theme != "" {
		fmt.Fprintf(&b, "Theme: %s\n", p.Theme)
	}

	var world []string
	if p.TimePeriod != "" {
		world = append(world, "Time period: "+p.TimePeriod)
	}
	if p.Location != "" {
		world = append(world, "Location: "+p.Location)
	}
	if p.SocialSystem != "" {
		world = append(world, "Social system: "+p.SocialSystem)
	}
	if p.WorldRules != "" {
		world = append(world, "World rules: "+p.WorldRules)
	}
	if len(world) > 0 {
		b.WriteString("\nWorld:\n")
		for _, line := range world {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if len(gctx.Characters) > 0 {
		b.WriteString("\nMain characters:\n")
		for _, c := range gctx.Characters {
			fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Role)
			if c.Personality != "" {
				fmt.Fprintf(&b, ": %s", c.Personality)
			}
			b.WriteString("\n")
		}
	}

	if gctx.Style != nil {
		fmt.Fprintf(&b, "\nStyle: %s\n", gctx.Style.Directive)
	}

	b.WriteString("\nWrite the chapter as continuous prose. Do not include headings, notes, or commentary.")

	return b.String()
}

// RenderUser formats the per-chapter material: history, memories, open
// foreshadows, the outline, and the expansion plan.
func RenderUser(gctx *GenerationContext) string {
	var b strings.Builder

	if len(gctx.Skeleton) > 0 {
		b.WriteString("Earlier arc (sampled):\n")
		for _, d := range gctx.Skeleton {
			fmt.Fprintf(&b, "- Chapter %d, %s: %s\n", d.Number, d.Title, d.Summary)
		}
		b.WriteString("\n")
	}

	if len(gctx.Recent) > 0 {
		b.WriteString("Recent chapters:\n")
		for _, d := range gctx.Recent {
			fmt.Fprintf(&b, "- Chapter %d, %s: %s\n", d.Number, d.Title, d.Summary)
		}
		b.WriteString("\n")
	}

	if len(gctx.Memories) > 0 {
		b.WriteString("Established story facts:\n")
		for _, m := range gctx.Memories {
			fmt.Fprintf(&b, "- %s: %s\n", m.Title, m.Content)
		}
		b.WriteString("\n")
	}

	if len(gctx.PendingForeshadows) > 0 {
		b.WriteString("Unresolved foreshadowing (pay off where natural, do not force):\n")
		for _, m := range gctx.PendingForeshadows {
			fmt.Fprintf(&b, "- %s: %s\n", m.Title, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Now write chapter %d.\n", gctx.ChapterNumber)
	fmt.Fprintf(&b, "Outline: %s\n%s\n", gctx.Outline.Title, gctx.Outline.Content)

	if plan := gctx.Plan; plan != nil {
		b.WriteString("\nChapter plan:\n")
		if plan.PlotSummary != "" {
			fmt.Fprintf(&b, "Plot: %s\n", plan.PlotSummary)
		}
		if len(plan.KeyEvents) > 0 {
			fmt.Fprintf(&b, "Key events: %s\n", strings.Join(plan.KeyEvents, "; "))
		}
		if len(plan.CharacterFocus) > 0 {
			fmt.Fprintf(&b, "Focus characters: %s\n", strings.Join(plan.CharacterFocus, ", "))
		}
		if plan.EmotionalTone != "" {
			fmt.Fprintf(&b, "Emotional tone: %s\n", plan.EmotionalTone)
		}
		if plan.NarrativeGoal != "" {
			fmt.Fprintf(&b, "Narrative goal: %s\n", plan.NarrativeGoal)
		}
		if plan.ConflictType != "" {
			fmt.Fprintf(&b, "Conflict: %s\n", plan.ConflictType)
		}
		for _, scene := range plan.Scenes {
			fmt.Fprintf(&b, "Scene at %s (%s): %s\n", scene.Location, strings.Join(scene.Characters, ", "), scene.Purpose)
		}
	}

	return b.String()
}
