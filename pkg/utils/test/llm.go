package testutils

import (
	"context"
	"fmt"

	"github.com/storyloom/loom/pkg/llm"
)

// MockLLM is a test llm client that replays scripted responses and
// records every request it receives.
type MockLLM struct {
	// CompleteResponse is returned by Complete when CompleteFunc is nil.
	CompleteResponse string

	// CompleteFunc, when set, computes Complete responses per request.
	CompleteFunc func(req llm.Request) (string, error)

	// StreamChunks is replayed by Stream. When empty, Stream emits a
	// single chunk carrying CompleteResponse followed by a done chunk.
	StreamChunks []llm.Chunk

	// FailComplete causes Complete to return an error.
	FailComplete bool

	// FailStream causes Stream to fail before any chunk is emitted.
	FailStream bool

	// Requests accumulates every request passed to Complete or Stream.
	Requests []llm.Request
}

func (m *MockLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.FailComplete {
		return "", fmt.Errorf("mock completion failure")
	}
	if m.CompleteFunc != nil {
		return m.CompleteFunc(req)
	}
	return m.CompleteResponse, nil
}

func (m *MockLLM) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	m.Requests = append(m.Requests, req)
	if m.FailStream {
		return nil, fmt.Errorf("mock stream failure")
	}

	chunks := m.StreamChunks
	if len(chunks) == 0 {
		chunks = []llm.Chunk{
			{Text: m.CompleteResponse},
			{Done: true},
		}
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if c.Done || c.Err != nil {
				return
			}
		}
	}()

	return out, nil
}

func (m *MockLLM) Model() string {
	return "mock-llm"
}

func (m *MockLLM) Close() error {
	return nil
}
