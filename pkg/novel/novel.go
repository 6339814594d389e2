// Package novel defines the domain model for the loom system.
//
// The core records are [Memory], a durable narrative fact distilled from
// chapter prose, and [Chapter], one generated unit of the story. Supporting
// types (Project, Character, Outline, WritingStyle) describe the works the
// authoring surfaces maintain; loom consumes them read-mostly when assembling
// generation context.
//
// State fields use closed enums with validated transitions. Callers go
// through CanTransition rather than assigning states directly so that
// terminal states stay terminal.
package novel

import "time"

// Memory represents a distilled, durable narrative fact extracted from a
// chapter. Memories are the output of extraction — not raw prose, but
// persistent story knowledge that stays relevant across chapters.
type Memory struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	// ChapterID is the chapter the memory was extracted from.
	ChapterID string `json:"chapter_id"`

	Type MemoryType `json:"type"`

	// Title is a short label for the fact; Content is the fact itself.
	// FullContext optionally preserves the surrounding prose.
	Title       string `json:"title"`
	Content     string `json:"content"`
	FullContext string `json:"full_context,omitempty"`

	// RelatedCharacters and RelatedLocations hold resolved ids, in the
	// order the extractor reported them.
	RelatedCharacters []string `json:"related_characters,omitempty"`
	RelatedLocations  []string `json:"related_locations,omitempty"`

	// Importance is in [0,1]; values outside are clamped on the way in.
	Importance float64 `json:"importance"`

	// StoryTimeline is the chapter number the memory originates from.
	StoryTimeline int `json:"story_timeline"`

	Foreshadow ForeshadowState `json:"foreshadow"`

	// ResolvedAtChapter is the id of the chapter that paid off a planted
	// foreshadow. Set iff Foreshadow is resolved.
	ResolvedAtChapter string `json:"resolved_at_chapter,omitempty"`

	// VectorID and EmbeddingModel are empty until the embedding upsert
	// succeeds. VectorID is write-once; re-embedding means a new record.
	VectorID       string `json:"vector_id,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingText is the text embedded for the memory: title and content
// joined by a newline.
func (m Memory) EmbeddingText() string {
	return m.Title + "\n" + m.Content
}

// Chapter is one generated unit of a project's story.
type Chapter struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	OutlineID string `json:"outline_id"`

	// Number is the global chapter number, strictly increasing per
	// project across both generation modes.
	Number int `json:"number"`

	// SubIndex is 0 in one-to-one mode and 1..N in expansion mode, where
	// one outline expands into N chapters.
	SubIndex int `json:"sub_index"`

	Title   string `json:"title"`
	Content string `json:"content"`

	// Summary is a short digest of the content, produced off the
	// generation critical path.
	Summary   string `json:"summary,omitempty"`
	WordCount int    `json:"word_count"`

	// Status and GenerationStatus are independent axes: editorial
	// lifecycle versus the generation state machine.
	Status           ChapterStatus    `json:"status"`
	GenerationStatus GenerationStatus `json:"generation_status"`

	// Version starts at 1; regeneration chains rows via
	// PreviousVersionID.
	Version           int    `json:"version"`
	PreviousVersionID string `json:"previous_version_id,omitempty"`

	// Model identifies the model that generated the content.
	Model  string           `json:"model,omitempty"`
	Params GenerationParams `json:"params"`

	// Plan is the structured sub-plan for expansion-mode chapters.
	Plan *ExpansionPlan `json:"plan,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerationParams are the sampling knobs recorded per chapter version.
type GenerationParams struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	TargetWordCount int     `json:"target_word_count"`
}

// ExpansionPlan is the structured plan for one sub-chapter when an outline
// is expanded into multiple chapters.
type ExpansionPlan struct {
	PlotSummary    string      `json:"plot_summary"`
	KeyEvents      []string    `json:"key_events,omitempty"`
	CharacterFocus []string    `json:"character_focus,omitempty"`
	EmotionalTone  string      `json:"emotional_tone,omitempty"`
	NarrativeGoal  string      `json:"narrative_goal,omitempty"`
	ConflictType   string      `json:"conflict_type,omitempty"`
	EstimatedWords int         `json:"estimated_words,omitempty"`
	Scenes         []PlanScene `json:"scenes,omitempty"`
}

// PlanScene is one scene within an expansion plan.
type PlanScene struct {
	Location   string   `json:"location,omitempty"`
	Characters []string `json:"characters,omitempty"`
	Purpose    string   `json:"purpose,omitempty"`
}

// ChapterDigest is the compact view of a chapter used in sampled history.
type ChapterDigest struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	SubIndex  int    `json:"sub_index"`
	Title     string `json:"title"`
	WordCount int    `json:"word_count"`
	Summary   string `json:"summary"`
}

// digestRunes is the length of the content fallback used when a chapter has
// no stored summary.
const digestRunes = 200

// Digest builds the ChapterDigest for a chapter, falling back to the first
// 200 characters of content when no summary has been generated yet.
func (c Chapter) Digest() ChapterDigest {
	summary := c.Summary
	if summary == "" {
		summary = Summarize(c.Content)
	}
	return ChapterDigest{
		ID:        c.ID,
		Number:    c.Number,
		SubIndex:  c.SubIndex,
		Title:     c.Title,
		WordCount: c.WordCount,
		Summary:   summary,
	}
}

// Summarize produces the fallback digest text: the first 200 characters of
// content with an ellipsis when truncated.
func Summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= digestRunes {
		return content
	}
	return string(runes[:digestRunes]) + "…"
}
