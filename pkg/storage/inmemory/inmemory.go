// Package inmemory provides an in-memory storage store for tests and
// ephemeral runs. Data is lost when the process exits.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// Store implements storage.Store with mutex-guarded maps.
type Store struct {
	mu sync.RWMutex

	memories   map[string]*novel.Memory
	chapters   map[string]*novel.Chapter
	projects   map[string]*novel.Project
	characters map[string]*novel.Character
	outlines   map[string]*novel.Outline
}

var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		memories:   make(map[string]*novel.Memory),
		chapters:   make(map[string]*novel.Chapter),
		projects:   make(map[string]*novel.Project),
		characters: make(map[string]*novel.Character),
		outlines:   make(map[string]*novel.Outline),
	}
}

func (s *Store) InsertMemory(_ context.Context, m *novel.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	cp := cloneMemory(m)
	s.memories[m.ID] = cp

	return nil
}

func (s *Store) SetMemoryVector(_ context.Context, memoryID, vectorID, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return storage.ErrNotFound{Kind: "memory", ID: memoryID}
	}
	if m.VectorID != "" {
		return nil
	}

	m.VectorID = vectorID
	m.EmbeddingModel = model

	return nil
}

func (s *Store) MemoryByID(_ context.Context, id string) (*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[id]
	if !ok {
		return nil, storage.ErrNotFound{Kind: "memory", ID: id}
	}

	return cloneMemory(m), nil
}

func (s *Store) MemoriesByIDs(_ context.Context, ids []string) ([]*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Memory
	for _, id := range ids {
		if m, ok := s.memories[id]; ok {
			out = append(out, cloneMemory(m))
		}
	}

	return out, nil
}

func (s *Store) ImportantMemories(_ context.Context, projectID string, floor float64, limit int) ([]*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Memory
	for _, m := range s.memories {
		if m.ProjectID == projectID && m.Importance >= floor {
			out = append(out, cloneMemory(m))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].StoryTimeline > out[j].StoryTimeline
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *Store) PendingForeshadows(_ context.Context, projectID string) ([]*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Memory
	for _, m := range s.memories {
		if m.ProjectID == projectID && m.Foreshadow == novel.ForeshadowPlanted {
			out = append(out, cloneMemory(m))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StoryTimeline != out[j].StoryTimeline {
			return out[i].StoryTimeline > out[j].StoryTimeline
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (s *Store) ResolveForeshadow(_ context.Context, memoryID, chapterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return storage.ErrNotFound{Kind: "memory", ID: memoryID}
	}

	// Only a planted row is updated; a resolve that lost the race is a
	// no-op so resolved_at_chapter never flips.
	if m.Foreshadow != novel.ForeshadowPlanted {
		return nil
	}

	m.Foreshadow = novel.ForeshadowResolved
	m.ResolvedAtChapter = chapterID

	return nil
}

func (s *Store) MemoriesByChapter(_ context.Context, chapterID string) ([]*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Memory
	for _, m := range s.memories {
		if m.ChapterID == chapterID {
			out = append(out, cloneMemory(m))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (s *Store) MemoriesByTimelineRange(_ context.Context, projectID string, from, to int) ([]*novel.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Memory
	for _, m := range s.memories {
		if m.ProjectID == projectID && m.StoryTimeline >= from && m.StoryTimeline <= to {
			out = append(out, cloneMemory(m))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StoryTimeline != out[j].StoryTimeline {
			return out[i].StoryTimeline < out[j].StoryTimeline
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (s *Store) DeleteMemoriesByChapter(_ context.Context, chapterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.memories {
		if m.ChapterID == chapterID {
			delete(s.memories, id)
		}
	}

	return nil
}

func (s *Store) DeleteMemoriesByProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.memories {
		if m.ProjectID == projectID {
			delete(s.memories, id)
		}
	}

	return nil
}

func (s *Store) MemoryStatistics(_ context.Context, projectID string) (*storage.MemoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.MemoryStats{ByType: make(map[novel.MemoryType]int)}
	chapters := make(map[string]struct{})

	for _, m := range s.memories {
		if m.ProjectID != projectID {
			continue
		}
		stats.Total++
		stats.ByType[m.Type]++
		chapters[m.ChapterID] = struct{}{}
		switch m.Foreshadow {
		case novel.ForeshadowPlanted:
			stats.PendingForeshadows++
		case novel.ForeshadowResolved:
			stats.ResolvedForeshadows++
		}
	}

	stats.CoveredChapters = len(chapters)

	return stats, nil
}

func (s *Store) InsertChapter(_ context.Context, c *novel.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.chapters[c.ID] = cloneChapter(c)

	return nil
}

func (s *Store) UpdateChapter(_ context.Context, c *novel.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chapters[c.ID]; !ok {
		return storage.ErrNotFound{Kind: "chapter", ID: c.ID}
	}

	c.UpdatedAt = time.Now().UTC()
	s.chapters[c.ID] = cloneChapter(c)

	return nil
}

func (s *Store) DeleteChapter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chapters, id)

	return nil
}

func (s *Store) ChapterByID(_ context.Context, id string) (*novel.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chapters[id]
	if !ok {
		return nil, storage.ErrNotFound{Kind: "chapter", ID: id}
	}

	return cloneChapter(c), nil
}

func (s *Store) ChapterBySlot(_ context.Context, projectID, outlineID string, subIndex int) (*novel.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *novel.Chapter
	for _, c := range s.chapters {
		if c.ProjectID != projectID || c.OutlineID != outlineID || c.SubIndex != subIndex {
			continue
		}
		if latest == nil || c.Version > latest.Version {
			latest = c
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound{Kind: "chapter"}
	}

	return cloneChapter(latest), nil
}

func (s *Store) NextChapterNumber(_ context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, c := range s.chapters {
		if c.ProjectID == projectID && c.Number > max {
			max = c.Number
		}
	}

	return max + 1, nil
}

func (s *Store) ChaptersByProject(_ context.Context, projectID string) ([]*novel.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Chapter
	for _, c := range s.chapters {
		if c.ProjectID == projectID {
			out = append(out, cloneChapter(c))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		if out[i].SubIndex != out[j].SubIndex {
			return out[i].SubIndex < out[j].SubIndex
		}
		return out[i].Version < out[j].Version
	})

	return out, nil
}

func (s *Store) ProjectByID(_ context.Context, id string) (*novel.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, storage.ErrNotFound{Kind: "project", ID: id}
	}

	cp := *p
	return &cp, nil
}

func (s *Store) InsertProject(_ context.Context, p *novel.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	cp := *p
	s.projects[p.ID] = &cp

	return nil
}

func (s *Store) UpdateProject(_ context.Context, p *novel.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; !ok {
		return storage.ErrNotFound{Kind: "project", ID: p.ID}
	}

	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.projects[p.ID] = &cp

	return nil
}

func (s *Store) InsertCharacter(_ context.Context, c *novel.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.characters[c.ID] = &cp

	return nil
}

func (s *Store) CharactersByProject(_ context.Context, projectID string) ([]*novel.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*novel.Character
	for _, c := range s.characters {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (s *Store) CharactersByName(_ context.Context, projectID string, names []string) ([]*novel.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	var out []*novel.Character
	for _, c := range s.characters {
		if c.ProjectID != projectID {
			continue
		}
		if _, ok := wanted[c.Name]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (s *Store) InsertOutline(_ context.Context, o *novel.Outline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.outlines[o.ID] = &cp

	return nil
}

func (s *Store) OutlineByID(_ context.Context, id string) (*novel.Outline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outlines[id]
	if !ok {
		return nil, storage.ErrNotFound{Kind: "outline", ID: id}
	}

	cp := *o
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneMemory(m *novel.Memory) *novel.Memory {
	cp := *m
	cp.RelatedCharacters = append([]string(nil), m.RelatedCharacters...)
	cp.RelatedLocations = append([]string(nil), m.RelatedLocations...)
	return &cp
}

func cloneChapter(c *novel.Chapter) *novel.Chapter {
	cp := *c
	if c.Plan != nil {
		plan := *c.Plan
		plan.KeyEvents = append([]string(nil), c.Plan.KeyEvents...)
		plan.CharacterFocus = append([]string(nil), c.Plan.CharacterFocus...)
		plan.Scenes = append([]novel.PlanScene(nil), c.Plan.Scenes...)
		cp.Plan = &plan
	}
	return &cp
}
