package compose

import "github.com/storyloom/loom/pkg/novel"

// presetStyles are the writing style directives selectable per project.
var presetStyles = []novel.WritingStyle{
	{
		Code:      "classical",
		Name:      "Classical",
		Directive: "Write in measured, formal prose. Favor long descriptive passages, restrained dialogue, and an omniscient narrator.",
	},
	{
		Code:      "modern",
		Name:      "Modern",
		Directive: "Write in clear contemporary prose. Keep sentences direct, scenes grounded in concrete sensory detail, and dialogue natural.",
	},
	{
		Code:      "minimalist",
		Name:      "Minimalist",
		Directive: "Write in spare, economical prose. Short sentences. Leave emotion implied by action rather than stated.",
	},
	{
		Code:      "lyrical",
		Name:      "Lyrical",
		Directive: "Write in rich, rhythmic prose with strong imagery. Let the narration linger on atmosphere and interiority.",
	},
	{
		Code:      "hardboiled",
		Name:      "Hardboiled",
		Directive: "Write in terse, cynical first-person-adjacent prose. Sharp dialogue, fast scenes, no sentimentality.",
	},
}

// StyleByCode resolves a preset writing style. Returns nil for an unknown
// or empty code; the caller renders no style directive in that case.
func StyleByCode(code string) *novel.WritingStyle {
	for i := range presetStyles {
		if presetStyles[i].Code == code {
			return &presetStyles[i]
		}
	}
	return nil
}

// Styles returns the preset styles, for listing surfaces.
func Styles() []novel.WritingStyle {
	out := make([]novel.WritingStyle, len(presetStyles))
	copy(out, presetStyles)
	return out
}
