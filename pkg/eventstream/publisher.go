package eventstream

import "context"

// Publisher publishes chapter events to an event stream backend.
type Publisher interface {
	PublishChapter(ctx context.Context, event *ChapterGeneratedEvent) error
	Close() error
}
