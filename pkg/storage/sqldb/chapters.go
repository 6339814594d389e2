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

const chapterColumns = `id, project_id, outline_id, number, sub_index, title, content,
	summary, word_count, status, generation_status, version,
	previous_version_id, model, params, plan, created_at, updated_at`

// InsertChapter stores a new chapter row.
func (s *Store) InsertChapter(ctx context.Context, c *novel.Chapter) error {
	if c == nil {
		return fmt.Errorf("cannot store nil chapter")
	}

	params, plan, err := marshalChapterBlobs(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `INSERT INTO chapters (` + chapterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, s.q(query),
		c.ID, c.ProjectID, c.OutlineID, c.Number, c.SubIndex, c.Title,
		c.Content, c.Summary, c.WordCount, string(c.Status),
		string(c.GenerationStatus), c.Version, c.PreviousVersionID, c.Model,
		params, plan, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chapter: %w", err)
	}

	return nil
}

// UpdateChapter persists changes to an existing chapter row.
func (s *Store) UpdateChapter(ctx context.Context, c *novel.Chapter) error {
	if c == nil {
		return fmt.Errorf("cannot update nil chapter")
	}

	params, plan, err := marshalChapterBlobs(c)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `UPDATE chapters SET
		title = ?, content = ?, summary = ?, word_count = ?, status = ?,
		generation_status = ?, model = ?, params = ?, plan = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, s.q(query),
		c.Title, c.Content, c.Summary, c.WordCount, string(c.Status),
		string(c.GenerationStatus), c.Model, params, plan, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chapter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrNotFound{Kind: "chapter", ID: c.ID}
	}

	return nil
}

// DeleteChapter removes a chapter row.
func (s *Store) DeleteChapter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM chapters WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete chapter: %w", err)
	}

	return nil
}

// ChapterByID retrieves a chapter by id.
func (s *Store) ChapterByID(ctx context.Context, id string) (*novel.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE id = ?`

	c, err := scanChapter(s.db.QueryRowContext(ctx, s.q(query), id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Kind: "chapter", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chapter: %w", err)
	}

	return c, nil
}

// ChapterBySlot returns the latest version for an (outline, sub index) slot.
func (s *Store) ChapterBySlot(ctx context.Context, projectID, outlineID string, subIndex int) (*novel.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters
		WHERE project_id = ? AND outline_id = ? AND sub_index = ?
		ORDER BY version DESC LIMIT 1`

	c, err := scanChapter(s.db.QueryRowContext(ctx, s.q(query), projectID, outlineID, subIndex))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Kind: "chapter"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chapter: %w", err)
	}

	return c, nil
}

// NextChapterNumber allocates one past the current maximum, starting at 1.
func (s *Store) NextChapterNumber(ctx context.Context, projectID string) (int, error) {
	query := `SELECT COALESCE(MAX(number), 0) + 1 FROM chapters WHERE project_id = ?`

	var next int
	err := s.db.QueryRowContext(ctx, s.q(query), projectID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate chapter number: %w", err)
	}

	return next, nil
}

// ChaptersByProject returns the project's chapters ordered by number, then
// sub index.
func (s *Store) ChaptersByProject(ctx context.Context, projectID string) ([]*novel.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters
		WHERE project_id = ? ORDER BY number, sub_index, version`

	rows, err := s.db.QueryContext(ctx, s.q(query), projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*novel.Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chapters: %w", err)
	}

	return chapters, nil
}

func marshalChapterBlobs(c *novel.Chapter) (params string, plan sql.NullString, err error) {
	b, err := json.Marshal(c.Params)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	params = string(b)

	if c.Plan != nil {
		pb, err := json.Marshal(c.Plan)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("failed to marshal plan: %w", err)
		}
		plan = sql.NullString{String: string(pb), Valid: true}
	}

	return params, plan, nil
}

func scanChapter(row scanner) (*novel.Chapter, error) {
	var c novel.Chapter
	var status, genStatus, params string
	var plan sql.NullString

	err := row.Scan(
		&c.ID, &c.ProjectID, &c.OutlineID, &c.Number, &c.SubIndex, &c.Title,
		&c.Content, &c.Summary, &c.WordCount, &status, &genStatus, &c.Version,
		&c.PreviousVersionID, &c.Model, &params, &plan, &c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = novel.ChapterStatus(status)
	c.GenerationStatus = novel.GenerationStatus(genStatus)

	if err := json.Unmarshal([]byte(params), &c.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	if plan.Valid {
		var p novel.ExpansionPlan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		c.Plan = &p
	}

	return &c, nil
}
