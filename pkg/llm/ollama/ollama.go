// Package ollama implements pkg/llm's Client against Ollama's chat API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
)

const (
	// DefaultModel is the default chat model.
	DefaultModel = "llama3.1"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

// Client wraps Ollama's chat API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ llm.Client = (*Client)(nil)

// Config holds configuration for the Ollama client.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string
}

// NewClient creates a new Ollama chat client.
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
		model:   model,
		httpClient: &http.Client{
			// Long-form chapter generation can run for minutes.
			Timeout: 30 * time.Minute,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []llm.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (c *Client) buildRequest(req llm.Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	options := make(map[string]any)
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return chatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  options,
	}
}

func (c *Client) send(ctx context.Context, body chatRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// Complete runs a full completion and returns the response text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.send(ctx, c.buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if chatResp.Message.Content == "" {
		return "", llm.ErrNoContent
	}

	return chatResp.Message.Content, nil
}

// Stream runs a streaming completion. Ollama streams newline-delimited JSON
// objects, one per chunk.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	resp, err := c.send(ctx, c.buildRequest(req, true))
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

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chatResp chatResponse
			if err := json.Unmarshal(line, &chatResp); err != nil {
				send(llm.Chunk{Err: fmt.Errorf("decoding stream chunk: %w", err)})
				return
			}

			if chatResp.Message.Content != "" {
				if !send(llm.Chunk{Text: chatResp.Message.Content}) {
					send(llm.Chunk{Err: ctx.Err()})
					return
				}
			}

			if chatResp.Done {
				send(llm.Chunk{Done: true})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(llm.Chunk{Err: fmt.Errorf("reading stream: %w", err)})
			return
		}

		// Stream ended without a done marker.
		send(llm.Chunk{Done: true})
	}()

	c.logger.Debug("started ollama stream",
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
