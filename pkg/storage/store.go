// Package storage defines the relational store for the loom system.
//
// The Store is the source of truth for memories, chapters, and the project
// records loom consumes. Vector mirrors live behind pkg/vector and may drift;
// readers fall back to the Store when they do.
package storage

import (
	"context"

	"github.com/storyloom/loom/pkg/novel"
)

// Store persists and retrieves loom's relational records.
type Store interface {
	// InsertMemory stores a new memory row.
	InsertMemory(ctx context.Context, m *novel.Memory) error

	// SetMemoryVector records the vector id and embedding model after a
	// successful upsert. Write-once: a memory that already has a vector
	// id keeps it.
	SetMemoryVector(ctx context.Context, memoryID, vectorID, model string) error

	// MemoryByID retrieves a memory by id.
	MemoryByID(ctx context.Context, id string) (*novel.Memory, error)

	// MemoriesByIDs retrieves memories in the order of ids, skipping
	// ids that no longer exist.
	MemoriesByIDs(ctx context.Context, ids []string) ([]*novel.Memory, error)

	// ImportantMemories returns up to limit memories with importance at
	// or above floor, most important first.
	ImportantMemories(ctx context.Context, projectID string, floor float64, limit int) ([]*novel.Memory, error)

	// PendingForeshadows returns planted foreshadows for the project,
	// newest story timeline first.
	PendingForeshadows(ctx context.Context, projectID string) ([]*novel.Memory, error)

	// ResolveForeshadow marks a planted foreshadow resolved by the given
	// chapter. Callers validate the transition first.
	ResolveForeshadow(ctx context.Context, memoryID, chapterID string) error

	// MemoriesByChapter returns memories extracted from a chapter.
	MemoriesByChapter(ctx context.Context, chapterID string) ([]*novel.Memory, error)

	// MemoriesByTimelineRange returns memories whose story timeline falls
	// in [from, to], oldest first.
	MemoriesByTimelineRange(ctx context.Context, projectID string, from, to int) ([]*novel.Memory, error)

	// DeleteMemoriesByChapter removes all memories for a chapter.
	DeleteMemoriesByChapter(ctx context.Context, chapterID string) error

	// DeleteMemoriesByProject removes all memories for a project.
	DeleteMemoriesByProject(ctx context.Context, projectID string) error

	// MemoryStatistics aggregates memory counts for a project.
	MemoryStatistics(ctx context.Context, projectID string) (*MemoryStats, error)

	// InsertChapter stores a new chapter row.
	InsertChapter(ctx context.Context, c *novel.Chapter) error

	// UpdateChapter persists changes to an existing chapter row.
	UpdateChapter(ctx context.Context, c *novel.Chapter) error

	// DeleteChapter removes a chapter row.
	DeleteChapter(ctx context.Context, id string) error

	// ChapterByID retrieves a chapter by id.
	ChapterByID(ctx context.Context, id string) (*novel.Chapter, error)

	// ChapterBySlot returns the latest version for an (outline, sub index)
	// slot, or ErrNotFound when the slot has no row.
	ChapterBySlot(ctx context.Context, projectID, outlineID string, subIndex int) (*novel.Chapter, error)

	// NextChapterNumber allocates the next global chapter number for the
	// project: one past the current maximum, starting at 1.
	NextChapterNumber(ctx context.Context, projectID string) (int, error)

	// ChaptersByProject returns the project's chapters ordered by number,
	// then sub index.
	ChaptersByProject(ctx context.Context, projectID string) ([]*novel.Chapter, error)

	// ProjectByID retrieves a project by id.
	ProjectByID(ctx context.Context, id string) (*novel.Project, error)

	// InsertProject stores a new project row.
	InsertProject(ctx context.Context, p *novel.Project) error

	// UpdateProject persists project changes (statistics, status).
	UpdateProject(ctx context.Context, p *novel.Project) error

	// InsertCharacter stores a roster member.
	InsertCharacter(ctx context.Context, c *novel.Character) error

	// CharactersByProject returns the project roster.
	CharactersByProject(ctx context.Context, projectID string) ([]*novel.Character, error)

	// CharactersByName batch-resolves roster members by exact name.
	// Unknown names are simply absent from the result.
	CharactersByName(ctx context.Context, projectID string, names []string) ([]*novel.Character, error)

	// InsertOutline stores an outline row.
	InsertOutline(ctx context.Context, o *novel.Outline) error

	// OutlineByID retrieves an outline by id.
	OutlineByID(ctx context.Context, id string) (*novel.Outline, error)

	// Close releases store resources.
	Close() error
}

// MemoryStats aggregates a project's memory records.
type MemoryStats struct {
	Total               int                      `json:"total"`
	ByType              map[novel.MemoryType]int `json:"by_type"`
	PendingForeshadows  int                      `json:"pending_foreshadows"`
	ResolvedForeshadows int                      `json:"resolved_foreshadows"`

	// CoveredChapters is the number of distinct chapters that produced
	// at least one memory.
	CoveredChapters int `json:"covered_chapters"`
}
