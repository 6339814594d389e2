// Package eventstream defines transport-neutral events emitted when loom
// finishes generating a chapter, plus the Publisher interface backends
// implement. Publishing is off the generation critical path and best
// effort; a dead broker never fails a chapter.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/storyloom/loom/pkg/novel"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChapterGenerated is emitted after a chapter generation
	// commits.
	EventTypeChapterGenerated = "loom.chapter.generated"
)

// ChapterGeneratedEvent is a transport-neutral event payload for a
// committed chapter generation.
type ChapterGeneratedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Chapter       ChapterMeta `json:"chapter"`
}

// EventSource identifies the project the chapter belongs to.
type EventSource struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ChapterMeta captures the committed chapter's identity and size.
type ChapterMeta struct {
	ChapterID string `json:"chapter_id"`
	OutlineID string `json:"outline_id"`
	Number    int    `json:"number"`
	SubIndex  int    `json:"sub_index"`
	Version   int    `json:"version"`
	Title     string `json:"title,omitempty"`
	WordCount int    `json:"word_count"`
}

// NewChapterGeneratedEvent builds the event for a committed chapter.
func NewChapterGeneratedEvent(project *novel.Project, chapter *novel.Chapter) *ChapterGeneratedEvent {
	return &ChapterGeneratedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeChapterGenerated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			ProjectID: project.ID,
			UserID:    project.UserID,
			Model:     chapter.Model,
		},
		Chapter: ChapterMeta{
			ChapterID: chapter.ID,
			OutlineID: chapter.OutlineID,
			Number:    chapter.Number,
			SubIndex:  chapter.SubIndex,
			Version:   chapter.Version,
			Title:     chapter.Title,
			WordCount: chapter.WordCount,
		},
	}
}
