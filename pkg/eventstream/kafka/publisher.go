// Package kafka publishes chapter events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/eventstream"
)

// Config is the configuration options for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic chapter events are written to.
	Topic string
}

// Publisher writes chapter events to Kafka. Messages are keyed by project
// id so one project's events stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if c.Topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.Brokers...),
		Topic:    c.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishChapter writes one chapter event.
func (p *Publisher) PublishChapter(ctx context.Context, event *eventstream.ChapterGeneratedEvent) error {
	if event == nil {
		return eventstream.ErrNilChapterEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling chapter event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Source.ProjectID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing chapter event: %w", err)
	}

	p.logger.Debug("published chapter event",
		zap.String("event_id", event.EventID),
		zap.String("chapter_id", event.Chapter.ChapterID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
