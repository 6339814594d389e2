package novel

import "fmt"

// ErrInvalidTransition is wrapped by all transition validation failures.
var ErrInvalidTransition = fmt.Errorf("invalid state transition")

// MemoryType classifies an extracted memory.
type MemoryType string

const (
	MemoryPlotPoint      MemoryType = "plot_point"
	MemoryHook           MemoryType = "hook"
	MemoryForeshadow     MemoryType = "foreshadow"
	MemoryCharacterEvent MemoryType = "character_event"
	MemoryLocationEvent  MemoryType = "location_event"
)

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryPlotPoint, MemoryHook, MemoryForeshadow, MemoryCharacterEvent, MemoryLocationEvent:
		return true
	}
	return false
}

// ForeshadowState tracks the payoff lifecycle of a memory.
type ForeshadowState string

const (
	// ForeshadowNone marks memories with no payoff obligation.
	ForeshadowNone ForeshadowState = "normal"

	// ForeshadowPlanted marks a setup awaiting payoff.
	ForeshadowPlanted ForeshadowState = "planted"

	// ForeshadowResolved marks a paid-off setup. Terminal.
	ForeshadowResolved ForeshadowState = "resolved"
)

// CanTransition reports whether the state may move to next. The only legal
// move is planted to resolved.
func (s ForeshadowState) CanTransition(next ForeshadowState) bool {
	return s == ForeshadowPlanted && next == ForeshadowResolved
}

// GenerationStatus is the chapter generation state machine.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationInProgress GenerationStatus = "generating"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// CanTransition reports whether the status may move to next. Pending rows
// start generating; generating rows finish exactly once, completed or
// failed.
func (s GenerationStatus) CanTransition(next GenerationStatus) bool {
	switch s {
	case GenerationPending:
		return next == GenerationInProgress
	case GenerationInProgress:
		return next == GenerationCompleted || next == GenerationFailed
	}
	return false
}

// ChapterStatus is the editorial lifecycle, independent of generation.
type ChapterStatus string

const (
	ChapterDraft     ChapterStatus = "draft"
	ChapterPublished ChapterStatus = "published"
	ChapterArchived  ChapterStatus = "archived"
)

// ProjectStatus tracks where a project is in its life.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectWriting   ProjectStatus = "writing"
	ProjectCompleted ProjectStatus = "completed"
)

// CharacterRole orders characters when assembling context.
type CharacterRole string

const (
	RoleProtagonist CharacterRole = "protagonist"
	RoleAntagonist  CharacterRole = "antagonist"
	RoleSupporting  CharacterRole = "supporting"
)

// Rank returns the sort weight for context assembly. Lower ranks first.
func (r CharacterRole) Rank() int {
	switch r {
	case RoleProtagonist:
		return 0
	case RoleAntagonist:
		return 1
	default:
		return 2
	}
}
