// Package openai implements pkg/llm's Client against OpenAI-compatible chat
// completion APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/sse"
)

const (
	// DefaultModel is the default chat model.
	DefaultModel = "gpt-4o-mini"

	// DefaultBaseURL is the default OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Client wraps an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ llm.Client = (*Client)(nil)

// Config holds configuration for the OpenAI client.
type Config struct {
	// BaseURL is the API URL. Defaults to DefaultBaseURL if empty.
	// Point it at any OpenAI-compatible server.
	BaseURL string

	// APIKey authenticates requests. Optional for local servers.
	APIKey string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string
}

// NewClient creates a new OpenAI chat client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) send(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// Complete runs a full completion and returns the response text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", llm.ErrNoContent
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Stream runs a streaming completion over SSE.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	resp, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.Chunk, 1)

	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		// Terminal sends included: an abandoned consumer must never pin
		// this goroutine.
		send := func(chunk llm.Chunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := sse.NewReader(resp.Body)
		for {
			event, err := reader.Next()
			if err != nil {
				send(llm.Chunk{Err: fmt.Errorf("reading stream: %w", err)})
				return
			}
			if event == nil || event.Data == "[DONE]" {
				send(llm.Chunk{Done: true})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				send(llm.Chunk{Err: fmt.Errorf("decoding stream chunk: %w", err)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !send(llm.Chunk{Text: text}) {
					send(llm.Chunk{Err: ctx.Err()})
					return
				}
			}

			if chunk.Choices[0].FinishReason != nil {
				send(llm.Chunk{Done: true})
				return
			}
		}
	}()

	c.logger.Debug("started openai stream",
		zap.String("model", c.model),
	)

	return chunks, nil
}

// Model returns the client's default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}
