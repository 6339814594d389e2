package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// ErrOutlineExpanded is returned when an outline already has chapter rows
// and the caller did not ask to replace them.
var ErrOutlineExpanded = errors.New("outline already has chapters, pass force to replace them")

const (
	// DefaultExpandCount is the sub-chapter count when the caller does
	// not pick one.
	DefaultExpandCount = 3

	minExpandCount = 2
	maxExpandCount = 10
)

// ExpandStrategy shapes how dramatic weight is distributed across the
// planned sub-chapters.
type ExpandStrategy string

const (
	StrategyBalanced ExpandStrategy = "balanced"
	StrategyClimax   ExpandStrategy = "climax"
	StrategyDetail   ExpandStrategy = "detail"
)

// ExpandOptions tune one expansion request.
type ExpandOptions struct {
	// Count is the target sub-chapter count, clamped to [2, 10].
	Count int

	Strategy ExpandStrategy

	// SceneDetail asks the model for a per-scene breakdown inside each
	// plan.
	SceneDetail bool

	// Requirements is freeform extra guidance folded into the prompt.
	Requirements string
}

// ChapterPlan is one planned sub-chapter from an expansion preview.
type ChapterPlan struct {
	SubIndex int    `json:"sub_index"`
	Title    string `json:"title"`

	novel.ExpansionPlan
}

const expansionSystemPrompt = `You are a story planner. Expand the outline you are given into detailed sub-chapter plans.

Respond with a JSON array only, one object per sub-chapter, in this shape:
[{"sub_index": 1, "title": "...", "plot_summary": "...", "key_events": ["..."], "character_focus": ["..."], "emotional_tone": "...", "narrative_goal": "...", "conflict_type": "...", "estimated_words": 3000}]

Rules:
- sub_index starts at 1 and increases by one
- plot_summary is two or three sentences covering the sub-chapter's events
- key_events lists the beats that must happen on the page
- character_focus names the characters the sub-chapter follows
- conflict_type names the driving conflict (external, internal, mystery)
- estimated_words is between 3000 and 5000`

const sceneDetailRule = `- scenes lists each scene as {"location": "...", "characters": ["..."], "purpose": "..."}`

// Expander turns one outline into a set of sub-chapter plans, and an
// accepted plan set into pending chapter rows the slot generator picks up.
type Expander struct {
	store  storage.Store
	client llm.Client
	logger *zap.Logger
}

// NewExpander creates an outline expander.
func NewExpander(store storage.Store, client llm.Client, logger *zap.Logger) *Expander {
	return &Expander{
		store:  store,
		client: client,
		logger: logger,
	}
}

// Preview prompts the model to split the outline into sub-chapter plans.
// Nothing is persisted; the caller inspects the plans and applies them
// separately.
func (e *Expander) Preview(ctx context.Context, project *novel.Project, outlineID string, opts ExpandOptions) ([]ChapterPlan, error) {
	outline, err := e.store.OutlineByID(ctx, outlineID)
	if err != nil {
		return nil, err
	}
	if outline.ProjectID != project.ID {
		return nil, fmt.Errorf("outline %s does not belong to project %s", outlineID, project.ID)
	}

	roster, err := e.store.CharactersByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}

	system := expansionSystemPrompt
	if opts.SceneDetail {
		system += "\n" + sceneDetailRule
	}

	raw, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: expansionUserPrompt(project, outline, roster, opts)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("expansion model call: %w", err)
	}

	plans, err := parseExpansionResponse(raw)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("outline expansion previewed",
		zap.String("outline_id", outlineID),
		zap.Int("plans", len(plans)))

	return plans, nil
}

// Apply turns a plan set into pending chapter rows, one per sub-chapter,
// numbered from the project's next free chapter number. An outline that
// already has chapters is rejected unless force is set, in which case the
// existing rows and their memories are removed first.
func (e *Expander) Apply(ctx context.Context, project *novel.Project, outlineID string, plans []ChapterPlan, force bool) ([]*novel.Chapter, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("no chapter plans to apply")
	}

	outline, err := e.store.OutlineByID(ctx, outlineID)
	if err != nil {
		return nil, err
	}
	if outline.ProjectID != project.ID {
		return nil, fmt.Errorf("outline %s does not belong to project %s", outlineID, project.ID)
	}

	existing, err := e.expandedChapters(ctx, project.ID, outlineID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if !force {
			return nil, ErrOutlineExpanded
		}
		for _, ch := range existing {
			if err := e.store.DeleteMemoriesByChapter(ctx, ch.ID); err != nil {
				return nil, fmt.Errorf("clearing memories of chapter %s: %w", ch.ID, err)
			}
			if err := e.store.DeleteChapter(ctx, ch.ID); err != nil {
				return nil, fmt.Errorf("deleting chapter %s: %w", ch.ID, err)
			}
		}
	}

	number, err := e.store.NextChapterNumber(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("allocating chapter number: %w", err)
	}

	now := time.Now().UTC()
	created := make([]*novel.Chapter, 0, len(plans))
	for i, plan := range plans {
		subIndex := plan.SubIndex
		if subIndex <= 0 {
			subIndex = i + 1
		}

		p := plan.ExpansionPlan
		chapter := &novel.Chapter{
			ID:               uuid.NewString(),
			ProjectID:        project.ID,
			OutlineID:        outline.ID,
			Number:           number + i,
			SubIndex:         subIndex,
			Title:            plan.Title,
			Summary:          plan.PlotSummary,
			Status:           novel.ChapterDraft,
			GenerationStatus: novel.GenerationPending,
			Version:          1,
			Plan:             &p,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.store.InsertChapter(ctx, chapter); err != nil {
			return nil, fmt.Errorf("inserting planned chapter: %w", err)
		}
		created = append(created, chapter)
	}

	e.logger.Info("outline expansion applied",
		zap.String("outline_id", outlineID),
		zap.Int("chapters", len(created)))

	return created, nil
}

// expandedChapters returns the outline's existing chapter rows, every
// version included.
func (e *Expander) expandedChapters(ctx context.Context, projectID, outlineID string) ([]*novel.Chapter, error) {
	chapters, err := e.store.ChaptersByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}

	var out []*novel.Chapter
	for _, ch := range chapters {
		if ch.OutlineID == outlineID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func expansionUserPrompt(project *novel.Project, outline *novel.Outline, roster []*novel.Character, opts ExpandOptions) string {
	count := opts.Count
	if count == 0 {
		count = DefaultExpandCount
	}
	if count < minExpandCount {
		count = minExpandCount
	}
	if count > maxExpandCount {
		count = maxExpandCount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Novel: %s\n", project.Title)
	if project.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", project.Genre)
	}
	if project.Theme != "" {
		fmt.Fprintf(&b, "Theme: %s\n", project.Theme)
	}

	if project.TimePeriod != "" || project.Location != "" || project.WorldRules != "" {
		b.WriteString("\nWorld:\n")
		if project.TimePeriod != "" {
			fmt.Fprintf(&b, "Time period: %s\n", project.TimePeriod)
		}
		if project.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", project.Location)
		}
		if project.WorldRules != "" {
			fmt.Fprintf(&b, "Rules: %s\n", project.WorldRules)
		}
	}

	var named int
	for _, c := range roster {
		if c.Organization {
			continue
		}
		if named == 0 {
			b.WriteString("\nCharacters:\n")
		}
		named++
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Role)
		if c.Personality != "" {
			fmt.Fprintf(&b, ": %s", c.Personality)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nOutline to expand: %s\n%s\n", outline.Title, outline.Content)

	b.WriteString("\nStrategy: ")
	switch opts.Strategy {
	case StrategyClimax:
		b.WriteString("build up in the early sub-chapters and concentrate the dramatic payoff in the later ones.\n")
	case StrategyDetail:
		b.WriteString("expand every scene fully, dwelling on description and atmosphere.\n")
	default:
		b.WriteString("pace the plot evenly; each sub-chapter carries similar dramatic weight.\n")
	}

	if strings.TrimSpace(opts.Requirements) != "" {
		fmt.Fprintf(&b, "\nAdditional requirements: %s\n", opts.Requirements)
	}

	fmt.Fprintf(&b, "\nProduce exactly %d sub-chapter plans.\n", count)

	return b.String()
}

// parseExpansionResponse pulls the JSON array out of the model response.
// Models wrap JSON in prose and code fences; everything outside the first
// '[' and the last ']' is discarded.
func parseExpansionResponse(raw string) ([]ChapterPlan, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var plans []ChapterPlan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plans); err != nil {
		return nil, fmt.Errorf("unmarshaling expansion response: %w", err)
	}

	valid := plans[:0]
	for _, p := range plans {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.PlotSummary) == "" {
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no usable chapter plans in response")
	}

	return valid, nil
}
