package generate

import (
	"errors"
	"sync"
)

// ErrGenerationInFlight is returned when a generation is already running
// for the requested (project, outline, sub-index) slot.
var ErrGenerationInFlight = errors.New("generation already in flight for this chapter")

// ErrAlreadyGenerating is returned when regeneration targets a chapter
// version that is itself mid-generation.
var ErrAlreadyGenerating = errors.New("chapter is currently generating")

// LockKey identifies one generation slot.
type LockKey struct {
	ProjectID string
	OutlineID string
	SubIndex  int
}

// LockTable serializes generation per slot. Acquire-or-fail, no queuing: a
// second request for a held key fails immediately rather than waiting.
type LockTable struct {
	mu   sync.Mutex
	held map[LockKey]struct{}
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		held: make(map[LockKey]struct{}),
	}
}

// TryAcquire takes the key or returns ErrGenerationInFlight. The returned
// release func is idempotent; callers defer it on every exit path.
func (t *LockTable) TryAcquire(key LockKey) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.held[key]; ok {
		return nil, ErrGenerationInFlight
	}
	t.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.held, key)
		})
	}

	return release, nil
}

// Held reports whether the key is currently locked.
func (t *LockTable) Held(key LockKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.held[key]
	return ok
}
