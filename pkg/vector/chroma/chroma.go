// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/vector"
)

const apiBase = "/api/v2/tenants/default_tenant/databases/default_database"

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// mu guards the collection name -> id cache.
	mu          sync.Mutex
	collections map[string]string
}

var _ vector.Driver = (*Driver)(nil)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string
}

// NewDriver creates a new Chroma vector driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	logger.Info("chroma vector driver initialized",
		zap.String("url", c.URL),
	)

	return &Driver{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:      logger,
		collections: make(map[string]string),
	}, nil
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureCollection gets or creates the collection and caches its id.
func (d *Driver) EnsureCollection(ctx context.Context, name string, _ uint) error {
	_, err := d.collectionID(ctx, name)
	return err
}

// collectionID resolves a collection name to its Chroma id, creating the
// collection on first use.
func (d *Driver) collectionID(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	if id, ok := d.collections[name]; ok {
		d.mu.Unlock()
		return id, nil
	}
	d.mu.Unlock()

	// Try to get existing collection first
	url := fmt.Sprintf("%s%s/collections/%s", d.baseURL, apiBase, name)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		d.cache(name, collection.ID)
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	createURL := fmt.Sprintf("%s%s/collections", d.baseURL, apiBase)
	createBody := map[string]any{"name": name, "get_or_create": true}
	jsonBody, err := json.Marshal(createBody)
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, "POST", createURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	d.cache(name, collection.ID)

	return collection.ID, nil
}

func (d *Driver) cache(name, id string) {
	d.mu.Lock()
	d.collections[name] = id
	d.mu.Unlock()
}

type chromaUpsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
}

// Upsert stores documents with their embeddings and payloads.
func (d *Driver) Upsert(ctx context.Context, collection string, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	collectionID, err := d.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	reqBody := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}
	for i, doc := range docs {
		reqBody.IDs[i] = doc.ID
		reqBody.Embeddings[i] = doc.Embedding
		reqBody.Metadatas[i] = doc.Payload
	}

	url := fmt.Sprintf("%s%s/collections/%s/upsert", d.baseURL, apiBase, collectionID)
	if err := d.post(ctx, url, reqBody, nil); err != nil {
		return fmt.Errorf("upserting documents: %w", err)
	}

	d.logger.Debug("upserted documents to chroma",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)

	return nil
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Query finds the most similar documents. The payload filter is pushed down
// via Chroma's where clause; the floor is applied to the converted score.
func (d *Driver) Query(ctx context.Context, q vector.Query) ([]vector.QueryResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	collectionID, err := d.collectionID(ctx, q.Collection)
	if err != nil {
		return nil, err
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{q.Embedding},
		NResults:        topK,
		Where:           whereClause(q.Filter),
		Include:         []string{"metadatas", "distances"},
	}

	var queryResp chromaQueryResponse
	url := fmt.Sprintf("%s%s/collections/%s/query", d.baseURL, apiBase, collectionID)
	if err := d.post(ctx, url, reqBody, &queryResp); err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	var results []vector.QueryResult

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	for i, id := range ids {
		result := vector.QueryResult{
			Document: vector.Document{ID: id},
		}

		if i < len(metadatas) {
			result.Payload = metadatas[i]
		}

		// Convert distance to similarity score
		// Lower distance = higher similarity
		if i < len(distances) {
			result.Score = 1.0 / (1.0 + distances[i])
		}

		if q.Floor > 0 && result.Score < q.Floor {
			continue
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma",
		zap.String("collection", q.Collection),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// whereClause builds Chroma's where document from an equality filter.
func whereClause(filter vector.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}

	if len(filter) == 1 {
		for key, value := range filter {
			return map[string]any{key: map[string]any{"$eq": value}}
		}
	}

	var and []map[string]any
	for key, value := range filter {
		and = append(and, map[string]any{key: map[string]any{"$eq": value}})
	}

	return map[string]any{"$and": and}
}

type chromaDeleteRequest struct {
	IDs []string `json:"ids"`
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	collectionID, err := d.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s/collections/%s/delete", d.baseURL, apiBase, collectionID)
	if err := d.post(ctx, url, chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// DropCollection removes a collection and everything in it.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s%s/collections/%s", d.baseURL, apiBase, name)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to drop collection: status %d: %s", resp.StatusCode, string(body))
	}

	d.mu.Lock()
	delete(d.collections, name)
	d.mu.Unlock()

	return nil
}

// post sends a JSON request and decodes the response into out when non-nil.
func (d *Driver) post(ctx context.Context, url string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}
