// Package llm defines the chat completion client used by loom's extraction,
// summarization, and generation paths.
//
// Clients are pluggable per provider (ollama, openai). Generation streams
// chunks over a channel; extraction and summaries use Complete.
package llm

import (
	"context"
	"errors"
)

// ErrNoContent is returned when a provider responds without any text.
var ErrNoContent = errors.New("no content in response")

// Message is one turn of a chat conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	Content string `json:"content"`
}

// Request describes one chat completion call.
type Request struct {
	// Model overrides the client's default model when non-empty.
	Model string

	Messages []Message

	Temperature float64
	TopP        float64

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Chunk is one streamed piece of a completion.
type Chunk struct {
	// Text is the incremental content delta.
	Text string

	// Done marks the final chunk of a successful stream.
	Done bool

	// Err reports a mid-stream failure. Terminal when set.
	Err error
}

// Client is a chat completion provider.
type Client interface {
	// Complete runs a full completion and returns the response text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream runs a streaming completion. The returned channel yields
	// content chunks and closes after a Done or Err chunk. An error is
	// returned only when the stream cannot be started.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Model returns the client's default model identifier.
	Model() string

	// Close releases client resources.
	Close() error
}
