package novel

import "time"

// Project is the novel a user is writing. Loom consumes it read-mostly;
// the authoring surfaces own creation and editing.
type Project struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Title string `json:"title"`
	Genre string `json:"genre,omitempty"`
	Theme string `json:"theme,omitempty"`

	// World-setting fields folded into every generation context.
	TimePeriod   string `json:"time_period,omitempty"`
	Location     string `json:"location,omitempty"`
	SocialSystem string `json:"social_system,omitempty"`
	WorldRules   string `json:"world_rules,omitempty"`

	// StyleCode selects a preset writing style directive.
	StyleCode string `json:"style_code,omitempty"`

	Status ProjectStatus `json:"status"`

	// Aggregate statistics refreshed after each completed generation.
	ChapterCount   int `json:"chapter_count"`
	TotalWordCount int `json:"total_word_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Character is a member of a project's roster.
type Character struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	Name string        `json:"name"`
	Role CharacterRole `json:"role"`

	// Organization marks collective entities (guilds, factions). They
	// stay in the roster for name resolution but are excluded from the
	// character section of generation context.
	Organization bool `json:"organization"`

	Personality string `json:"personality,omitempty"`
	Background  string `json:"background,omitempty"`
}

// Outline is one planned beat of the story, in authored order.
type Outline struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	Title   string `json:"title"`
	Content string `json:"content"`

	// OrderIndex is the authored position of the outline.
	OrderIndex int `json:"order_index"`
}

// WritingStyle is a preset prose directive selectable per project.
type WritingStyle struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Directive string `json:"directive"`
}
