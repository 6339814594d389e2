package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

const projectColumns = `id, user_id, title, genre, theme, time_period, location,
	social_system, world_rules, style_code, status, chapter_count,
	total_word_count, created_at, updated_at`

// InsertProject stores a new project row.
func (s *Store) InsertProject(ctx context.Context, p *novel.Project) error {
	if p == nil {
		return fmt.Errorf("cannot store nil project")
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.q(query),
		p.ID, p.UserID, p.Title, p.Genre, p.Theme, p.TimePeriod, p.Location,
		p.SocialSystem, p.WorldRules, p.StyleCode, string(p.Status),
		p.ChapterCount, p.TotalWordCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	return nil
}

// ProjectByID retrieves a project by id.
func (s *Store) ProjectByID(ctx context.Context, id string) (*novel.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	var p novel.Project
	var status string
	err := s.db.QueryRowContext(ctx, s.q(query), id).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Genre, &p.Theme, &p.TimePeriod,
		&p.Location, &p.SocialSystem, &p.WorldRules, &p.StyleCode, &status,
		&p.ChapterCount, &p.TotalWordCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Kind: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	p.Status = novel.ProjectStatus(status)

	return &p, nil
}

// UpdateProject persists project changes.
func (s *Store) UpdateProject(ctx context.Context, p *novel.Project) error {
	if p == nil {
		return fmt.Errorf("cannot update nil project")
	}

	p.UpdatedAt = time.Now().UTC()

	query := `UPDATE projects SET
		title = ?, genre = ?, theme = ?, time_period = ?, location = ?,
		social_system = ?, world_rules = ?, style_code = ?, status = ?,
		chapter_count = ?, total_word_count = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, s.q(query),
		p.Title, p.Genre, p.Theme, p.TimePeriod, p.Location, p.SocialSystem,
		p.WorldRules, p.StyleCode, string(p.Status), p.ChapterCount,
		p.TotalWordCount, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrNotFound{Kind: "project", ID: p.ID}
	}

	return nil
}

// InsertCharacter stores a roster member.
func (s *Store) InsertCharacter(ctx context.Context, c *novel.Character) error {
	if c == nil {
		return fmt.Errorf("cannot store nil character")
	}

	query := `INSERT INTO characters (id, project_id, name, role, organization, personality, background)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.q(query),
		c.ID, c.ProjectID, c.Name, string(c.Role), c.Organization,
		c.Personality, c.Background,
	)
	if err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}

	return nil
}

// CharactersByProject returns the project roster.
func (s *Store) CharactersByProject(ctx context.Context, projectID string) ([]*novel.Character, error) {
	query := `SELECT id, project_id, name, role, organization, personality, background
		FROM characters WHERE project_id = ? ORDER BY name`

	return s.queryCharacters(ctx, query, projectID)
}

// CharactersByName batch-resolves roster members by exact name.
func (s *Store) CharactersByName(ctx context.Context, projectID string, names []string) ([]*novel.Character, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := `SELECT id, project_id, name, role, organization, personality, background
		FROM characters WHERE project_id = ? AND name IN (` + placeholders(len(names)) + `)`

	args := make([]any, 0, len(names)+1)
	args = append(args, projectID)
	for _, n := range names {
		args = append(args, n)
	}

	return s.queryCharacters(ctx, query, args...)
}

func (s *Store) queryCharacters(ctx context.Context, query string, args ...any) ([]*novel.Character, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	var characters []*novel.Character
	for rows.Next() {
		var c novel.Character
		var role string
		err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &role, &c.Organization,
			&c.Personality, &c.Background)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		c.Role = novel.CharacterRole(role)
		characters = append(characters, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate characters: %w", err)
	}

	return characters, nil
}

// InsertOutline stores an outline row.
func (s *Store) InsertOutline(ctx context.Context, o *novel.Outline) error {
	if o == nil {
		return fmt.Errorf("cannot store nil outline")
	}

	query := `INSERT INTO outlines (id, project_id, title, content, order_index)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.q(query),
		o.ID, o.ProjectID, o.Title, o.Content, o.OrderIndex)
	if err != nil {
		return fmt.Errorf("failed to insert outline: %w", err)
	}

	return nil
}

// OutlineByID retrieves an outline by id.
func (s *Store) OutlineByID(ctx context.Context, id string) (*novel.Outline, error) {
	query := `SELECT id, project_id, title, content, order_index FROM outlines WHERE id = ?`

	var o novel.Outline
	err := s.db.QueryRowContext(ctx, s.q(query), id).Scan(
		&o.ID, &o.ProjectID, &o.Title, &o.Content, &o.OrderIndex)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Kind: "outline", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outline: %w", err)
	}

	return &o, nil
}
