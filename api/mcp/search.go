package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/novel"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search a project's extracted story memories using semantic search. Returns the most relevant memories for the query text: characters, plot points, settings, and foreshadows with their importance and chapter of origin."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	ProjectID string `json:"project_id" jsonschema:"the id of the project whose memories to search"`
	Query     string `json:"query" jsonschema:"the search query text to find relevant memories"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 10)"`
}

// MemoryResult represents a single memory in tool output.
type MemoryResult struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Importance    float64 `json:"importance"`
	StoryTimeline int     `json:"story_timeline"`
	Foreshadow    string  `json:"foreshadow,omitempty"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []MemoryResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a memory search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	if input.ProjectID == "" {
		return toolError("project_id is required"), SearchOutput{}, nil
	}
	if input.Query == "" {
		return toolError("query is required"), SearchOutput{}, nil
	}

	topK := input.TopK
	if topK <= 0 {
		topK = 10
	}

	logger.Debug("MCP memory search request",
		zap.String("project_id", input.ProjectID),
		zap.String("query", input.Query),
		zap.Int("topK", topK),
	)

	project, err := s.config.Store.ProjectByID(ctx, input.ProjectID)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to load project: %v", err)), SearchOutput{}, nil
	}

	memories, err := s.config.Retriever.Search(ctx, project, input.Query, topK)
	if err != nil {
		logger.Error("failed to search memories", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to search memories: %v", err)), SearchOutput{}, nil
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: buildMemoryResults(memories),
		Count:   len(memories),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// buildMemoryResults converts memories into tool output records.
func buildMemoryResults(memories []*novel.Memory) []MemoryResult {
	results := make([]MemoryResult, len(memories))
	for i, m := range memories {
		results[i] = MemoryResult{
			ID:            m.ID,
			Type:          string(m.Type),
			Title:         m.Title,
			Content:       m.Content,
			Importance:    m.Importance,
			StoryTimeline: m.StoryTimeline,
			Foreshadow:    string(m.Foreshadow),
		}
	}
	return results
}

// toolError builds an error CallToolResult with the given message.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
