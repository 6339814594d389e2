package nop

import (
	"context"

	"github.com/storyloom/loom/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishChapter validates input and otherwise does nothing.
func (p *Publisher) PublishChapter(_ context.Context, event *eventstream.ChapterGeneratedEvent) error {
	if event == nil {
		return eventstream.ErrNilChapterEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
