package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

const memoryColumns = `id, project_id, chapter_id, type, title, content, full_context,
	related_characters, related_locations, importance, story_timeline,
	foreshadow, resolved_at_chapter, vector_id, embedding_model, created_at`

// InsertMemory stores a new memory row.
func (s *Store) InsertMemory(ctx context.Context, m *novel.Memory) error {
	if m == nil {
		return fmt.Errorf("cannot store nil memory")
	}

	chars, err := marshalStrings(m.RelatedCharacters)
	if err != nil {
		return fmt.Errorf("failed to marshal related characters: %w", err)
	}
	locs, err := marshalStrings(m.RelatedLocations)
	if err != nil {
		return fmt.Errorf("failed to marshal related locations: %w", err)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		m.CreatedAt = createdAt
	}

	query := `INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, s.q(query),
		m.ID, m.ProjectID, m.ChapterID, string(m.Type), m.Title, m.Content,
		m.FullContext, chars, locs, m.Importance, m.StoryTimeline,
		string(m.Foreshadow), m.ResolvedAtChapter, m.VectorID,
		m.EmbeddingModel, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	return nil
}

// SetMemoryVector records the vector id and embedding model. The guard on an
// empty vector_id keeps the field write-once.
func (s *Store) SetMemoryVector(ctx context.Context, memoryID, vectorID, model string) error {
	query := `UPDATE memories SET vector_id = ?, embedding_model = ? WHERE id = ? AND vector_id = ''`

	_, err := s.db.ExecContext(ctx, s.q(query), vectorID, model, memoryID)
	if err != nil {
		return fmt.Errorf("failed to set vector id: %w", err)
	}

	return nil
}

// MemoryByID retrieves a memory by id.
func (s *Store) MemoryByID(ctx context.Context, id string) (*novel.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ?`

	m, err := scanMemory(s.db.QueryRowContext(ctx, s.q(query), id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Kind: "memory", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory: %w", err)
	}

	return m, nil
}

// MemoriesByIDs retrieves memories in the order of ids, skipping missing ids.
func (s *Store) MemoriesByIDs(ctx context.Context, ids []string) ([]*novel.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id IN (` + placeholders(len(ids)) + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	found, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*novel.Memory, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}

	ordered := make([]*novel.Memory, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}

	return ordered, nil
}

// ImportantMemories returns up to limit memories at or above floor, most
// important first.
func (s *Store) ImportantMemories(ctx context.Context, projectID string, floor float64, limit int) ([]*novel.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE project_id = ? AND importance >= ?
		ORDER BY importance DESC, story_timeline DESC LIMIT ?`

	return s.queryMemories(ctx, query, projectID, floor, limit)
}

// PendingForeshadows returns planted foreshadows, newest timeline first.
func (s *Store) PendingForeshadows(ctx context.Context, projectID string) ([]*novel.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE project_id = ? AND foreshadow = ?
		ORDER BY story_timeline DESC, created_at DESC`

	return s.queryMemories(ctx, query, projectID, string(novel.ForeshadowPlanted))
}

// ResolveForeshadow marks a planted foreshadow resolved by chapterID.
// The planted guard lives in the WHERE clause: a concurrent resolve that
// got there first leaves this a no-op, so resolved_at_chapter never flips
// to a later chapter.
func (s *Store) ResolveForeshadow(ctx context.Context, memoryID, chapterID string) error {
	query := `UPDATE memories SET foreshadow = ?, resolved_at_chapter = ?
		WHERE id = ? AND foreshadow = ?`

	res, err := s.db.ExecContext(ctx, s.q(query),
		string(novel.ForeshadowResolved), chapterID, memoryID,
		string(novel.ForeshadowPlanted))
	if err != nil {
		return fmt.Errorf("failed to resolve foreshadow: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil || affected > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM memories WHERE id = ?`), memoryID).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound{Kind: "memory", ID: memoryID}
	}
	if err != nil {
		return fmt.Errorf("failed to resolve foreshadow: %w", err)
	}

	return nil
}

// MemoriesByChapter returns memories extracted from a chapter.
func (s *Store) MemoriesByChapter(ctx context.Context, chapterID string) ([]*novel.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE chapter_id = ? ORDER BY created_at`

	return s.queryMemories(ctx, query, chapterID)
}

// MemoriesByTimelineRange returns memories in [from, to], oldest first.
func (s *Store) MemoriesByTimelineRange(ctx context.Context, projectID string, from, to int) ([]*novel.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE project_id = ? AND story_timeline >= ? AND story_timeline <= ?
		ORDER BY story_timeline, created_at`

	return s.queryMemories(ctx, query, projectID, from, to)
}

// DeleteMemoriesByChapter removes all memories for a chapter.
func (s *Store) DeleteMemoriesByChapter(ctx context.Context, chapterID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memories WHERE chapter_id = ?`), chapterID)
	if err != nil {
		return fmt.Errorf("failed to delete chapter memories: %w", err)
	}

	return nil
}

// DeleteMemoriesByProject removes all memories for a project.
func (s *Store) DeleteMemoriesByProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memories WHERE project_id = ?`), projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project memories: %w", err)
	}

	return nil
}

// MemoryStatistics aggregates memory counts for a project.
func (s *Store) MemoryStatistics(ctx context.Context, projectID string) (*storage.MemoryStats, error) {
	stats := &storage.MemoryStats{ByType: make(map[novel.MemoryType]int)}

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT type, COUNT(*) FROM memories WHERE project_id = ? GROUP BY type`), projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count memories by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[novel.MemoryType(t)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate type counts: %w", err)
	}

	query := `SELECT
		COUNT(CASE WHEN foreshadow = ? THEN 1 END),
		COUNT(CASE WHEN foreshadow = ? THEN 1 END),
		COUNT(DISTINCT chapter_id)
		FROM memories WHERE project_id = ?`

	err = s.db.QueryRowContext(ctx, s.q(query),
		string(novel.ForeshadowPlanted), string(novel.ForeshadowResolved), projectID,
	).Scan(&stats.PendingForeshadows, &stats.ResolvedForeshadows, &stats.CoveredChapters)
	if err != nil {
		return nil, fmt.Errorf("failed to count foreshadows: %w", err)
	}

	return stats, nil
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]*novel.Memory, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []*novel.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}

	return memories, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*novel.Memory, error) {
	var m novel.Memory
	var memType, foreshadow, chars, locs string

	err := row.Scan(
		&m.ID, &m.ProjectID, &m.ChapterID, &memType, &m.Title, &m.Content,
		&m.FullContext, &chars, &locs, &m.Importance, &m.StoryTimeline,
		&foreshadow, &m.ResolvedAtChapter, &m.VectorID, &m.EmbeddingModel,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = novel.MemoryType(memType)
	m.Foreshadow = novel.ForeshadowState(foreshadow)

	if m.RelatedCharacters, err = unmarshalStrings(chars); err != nil {
		return nil, fmt.Errorf("failed to unmarshal related characters: %w", err)
	}
	if m.RelatedLocations, err = unmarshalStrings(locs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal related locations: %w", err)
	}

	return &m, nil
}

func marshalStrings(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}

	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}

	return v, nil
}
