package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/storyloom/loom/pkg/vector"
)

// CollectionName derives the vector collection for a (user, project) pair.
// Both ids are hashed so the name stays short and stable regardless of id
// length, and the same pair always maps to the same collection.
func CollectionName(userID, projectID string) string {
	u := sha256.Sum256([]byte(userID))
	p := sha256.Sum256([]byte(projectID))
	return fmt.Sprintf("m_%s_%s", hex.EncodeToString(u[:])[:8], hex.EncodeToString(p[:])[:8])
}

// collections lazily creates vector collections and remembers which ones
// exist so repeated saves skip the ensure round-trip.
type collections struct {
	driver     vector.Driver
	dimensions uint

	mu    sync.Mutex
	ready map[string]struct{}
}

func newCollections(driver vector.Driver, dimensions uint) *collections {
	return &collections{
		driver:     driver,
		dimensions: dimensions,
		ready:      make(map[string]struct{}),
	}
}

// ensure creates the collection for the pair if this process has not seen
// it yet and returns its name.
func (c *collections) ensure(ctx context.Context, userID, projectID string) (string, error) {
	name := CollectionName(userID, projectID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ready[name]; ok {
		return name, nil
	}

	if err := c.driver.EnsureCollection(ctx, name, c.dimensions); err != nil {
		return "", fmt.Errorf("ensuring collection %s: %w", name, err)
	}

	c.ready[name] = struct{}{}

	return name, nil
}

// forget drops the cache entry so a later save re-creates the collection.
// Called after a whole-collection delete.
func (c *collections) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.ready, name)
}
