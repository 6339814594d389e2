package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	activeFile = "active.json"
)

// ActiveState represents the persisted active-project selection. CLI
// commands that take no explicit project flag operate on this project.
type ActiveState struct {
	// UserID is the acting user the project belongs to.
	UserID string `json:"user_id"`

	// ProjectID is the project subsequent commands operate on.
	ProjectID string `json:"project_id"`
}

// LoadActiveState loads the active-project state from a target
// .loom/active.json. Returns nil, nil if no state exists.
// If overrideDir is non-empty, it is used instead of the default ~/.loom/
// location.
func (m *Manager) LoadActiveState(overrideDir string) (*ActiveState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, activeFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading active state: %w", err)
	}

	state := &ActiveState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing active state: %w", err)
	}

	return state, nil
}

// SaveActive persists the active-project state to a target
// .loom/active.json.
func (m *Manager) SaveActive(state *ActiveState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil active state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling active state: %w", err)
	}

	path := filepath.Join(dir, activeFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing active state: %w", err)
	}

	return nil
}

// ClearActive removes the active-project state file. Returns nil if the
// file doesn't exist (already cleared).
func (m *Manager) ClearActive(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, activeFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing active state: %w", err)
	}

	return nil
}
