// Package qdrant provides a Qdrant-backed vector driver over gRPC.
package qdrant

import (
	"context"
	"fmt"

	qd "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/vector"
)

// Driver implements vector.Driver using a Qdrant server. Collections map
// one-to-one onto Qdrant collections; payload filters and score thresholds
// are pushed down to the server.
type Driver struct {
	client *qd.Client
	logger *zap.Logger
}

var _ vector.Driver = (*Driver)(nil)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant host (e.g. "localhost").
	Host string

	// Port is the gRPC port. Defaults to 6334 if zero.
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
}

// NewDriver creates a new Qdrant vector driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", vector.ErrConnection)
	}

	logger.Info("connected to Qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
	)

	return &Driver{
		client: client,
		logger: logger,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (d *Driver) EnsureCollection(ctx context.Context, name string, dimensions uint) error {
	exists, err := d.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", name, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: name,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(dimensions),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}

	d.logger.Info("created qdrant collection",
		zap.String("collection", name),
		zap.Uint("dimensions", dimensions),
	)

	return nil
}

// Upsert stores documents with their embeddings and payloads.
func (d *Driver) Upsert(ctx context.Context, collection string, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qd.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qd.PointStruct{
			Id:      qd.NewID(doc.ID),
			Vectors: qd.NewVectors(doc.Embedding...),
			Payload: qd.NewValueMap(doc.Payload),
		}
	}

	_, err := d.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("upserted documents to qdrant",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query runs a similarity search with the filter and floor pushed down.
func (d *Driver) Query(ctx context.Context, q vector.Query) ([]vector.QueryResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	query := &qd.QueryPoints{
		CollectionName: q.Collection,
		Query:          qd.NewQuery(q.Embedding...),
		Limit:          qd.PtrOf(uint64(topK)),
		WithPayload:    qd.NewWithPayload(true),
	}

	if q.Floor > 0 {
		query.ScoreThreshold = qd.PtrOf(q.Floor)
	}

	if len(q.Filter) > 0 {
		must := make([]*qd.Condition, 0, len(q.Filter))
		for key, value := range q.Filter {
			must = append(must, qd.NewMatch(key, value))
		}
		query.Filter = &qd.Filter{Must: must}
	}

	points, err := d.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:      p.GetId().GetUuid(),
				Payload: fromValueMap(p.GetPayload()),
			},
			Score: p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.String("collection", q.Collection),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qd.NewID(id)
	}

	_, err := d.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: collection,
		Points:         qd.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// DropCollection removes a collection and everything in it.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if err := d.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}

	return nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

// fromValueMap converts qdrant payload values back to plain Go values.
func fromValueMap(payload map[string]*qd.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}

	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.GetKind().(type) {
		case *qd.Value_StringValue:
			out[key] = v.StringValue
		case *qd.Value_IntegerValue:
			out[key] = v.IntegerValue
		case *qd.Value_DoubleValue:
			out[key] = v.DoubleValue
		case *qd.Value_BoolValue:
			out[key] = v.BoolValue
		}
	}

	return out
}
