// Package history reduces a project's chapter history to a bounded sample
// for generation prompts.
//
// Two tiers: a recent window of full digests for direct narrative
// continuity, and a periodic skeleton sample over the whole history that
// gives the model a compressed sense of long-range arc. Prompt size stays
// O(W + N/S) instead of O(N), which is what keeps hundred-plus-chapter
// novels tractable.
package history

import (
	"context"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

const (
	// DefaultWindow is the number of recent chapters included in full.
	DefaultWindow = 3

	// DefaultSkeletonInterval samples one older chapter out of every
	// interval once the story grows past it.
	DefaultSkeletonInterval = 50
)

// Sampler produces the two-tier chapter history sample.
type Sampler struct {
	store            storage.Store
	window           int
	skeletonInterval int
}

// NewSampler creates a sampler. Non-positive window or interval select the
// defaults.
func NewSampler(store storage.Store, window, skeletonInterval int) *Sampler {
	if window <= 0 {
		window = DefaultWindow
	}
	if skeletonInterval <= 0 {
		skeletonInterval = DefaultSkeletonInterval
	}
	return &Sampler{
		store:            store,
		window:           window,
		skeletonInterval: skeletonInterval,
	}
}

// Sample returns the recent window and the skeleton sample for the chapter
// about to be generated. The first chapter has no history; both slices are
// empty. Recent holds the last window chapters, latest content-bearing
// version of each, in chronological order. The skeleton kicks in once
// upcoming exceeds the interval and holds every interval-th chapter oldest
// first.
func (s *Sampler) Sample(ctx context.Context, projectID string, upcoming int) (recent, skeleton []novel.ChapterDigest, err error) {
	if upcoming <= 1 {
		return nil, nil, nil
	}

	chapters, err := s.store.ChaptersByProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	// Regeneration leaves every completed version in the chain; only the
	// latest one per chapter number belongs in the prompt.
	latest := make(map[int]*novel.Chapter, len(chapters))
	for _, c := range chapters {
		if c.Content == "" {
			continue
		}
		if prev, ok := latest[c.Number]; !ok || c.Version > prev.Version {
			latest[c.Number] = c
		}
	}

	bearing := make([]*novel.Chapter, 0, len(latest))
	for _, c := range chapters {
		if latest[c.Number] == c {
			bearing = append(bearing, c)
		}
	}

	start := len(bearing) - s.window
	if start < 0 {
		start = 0
	}
	for _, c := range bearing[start:] {
		recent = append(recent, c.Digest())
	}

	if upcoming > s.skeletonInterval {
		for i, c := range bearing {
			if (i+1)%s.skeletonInterval != 0 {
				continue
			}
			skeleton = append(skeleton, c.Digest())
		}
	}

	return recent, skeleton, nil
}
