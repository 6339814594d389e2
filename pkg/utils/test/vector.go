package testutils

import (
	"context"
	"fmt"

	"github.com/storyloom/loom/pkg/vector"
)

// MockVectorDriver is a test vector driver that records calls and returns
// configurable results.
type MockVectorDriver struct {
	// Collections accumulates EnsureCollection calls.
	Collections []string

	// Upserted accumulates documents by collection.
	Upserted map[string][]vector.Document

	// Deleted accumulates deleted ids by collection.
	Deleted map[string][]string

	// Dropped accumulates DropCollection calls.
	Dropped []string

	// Results is returned by Query, filtered by the query's Filter and
	// Floor so tests exercise the same narrowing the real drivers do.
	Results []vector.QueryResult

	// FailUpsert causes Upsert to return an error.
	FailUpsert bool

	// FailQuery causes Query to return an error.
	FailQuery bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Upserted: make(map[string][]vector.Document),
		Deleted:  make(map[string][]string),
	}
}

func (m *MockVectorDriver) EnsureCollection(_ context.Context, name string, _ uint) error {
	m.Collections = append(m.Collections, name)
	return nil
}

func (m *MockVectorDriver) Upsert(_ context.Context, collection string, docs []vector.Document) error {
	if m.FailUpsert {
		return fmt.Errorf("mock upsert failure")
	}
	m.Upserted[collection] = append(m.Upserted[collection], docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, q vector.Query) ([]vector.QueryResult, error) {
	if m.FailQuery {
		return nil, fmt.Errorf("mock query failure")
	}

	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	var results []vector.QueryResult
	for _, r := range m.Results {
		if q.Floor > 0 && r.Score < q.Floor {
			continue
		}
		if !payloadMatches(r.Payload, q.Filter) {
			continue
		}
		results = append(results, r)
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

func payloadMatches(payload map[string]any, filter vector.Filter) bool {
	for key, want := range filter {
		got, ok := payload[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (m *MockVectorDriver) Delete(_ context.Context, collection string, ids []string) error {
	m.Deleted[collection] = append(m.Deleted[collection], ids...)
	return nil
}

func (m *MockVectorDriver) DropCollection(_ context.Context, name string) error {
	m.Dropped = append(m.Dropped, name)
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
