package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	foreshadowToolName    = "pending_foreshadows"
	foreshadowDescription = "List a project's planted, unresolved foreshadows. Each entry is a setup awaiting payoff, newest first. Use this to find open narrative threads before writing a payoff chapter."
)

// ForeshadowInput represents the input arguments for the MCP
// pending_foreshadows tool.
type ForeshadowInput struct {
	ProjectID string `json:"project_id" jsonschema:"the id of the project whose open foreshadows to list"`
}

// ForeshadowOutput represents the structured output of a foreshadow listing.
type ForeshadowOutput struct {
	Foreshadows []MemoryResult `json:"foreshadows"`
	Count       int            `json:"count"`
}

// handlePendingForeshadows processes a foreshadow listing request via MCP.
func (s *Server) handlePendingForeshadows(ctx context.Context, _ *mcp.CallToolRequest, input ForeshadowInput) (*mcp.CallToolResult, ForeshadowOutput, error) {
	if input.ProjectID == "" {
		return toolError("project_id is required"), ForeshadowOutput{}, nil
	}

	foreshadows, err := s.config.Store.PendingForeshadows(ctx, input.ProjectID)
	if err != nil {
		return toolError(fmt.Sprintf("Foreshadow listing failed: %v", err)), ForeshadowOutput{}, nil
	}

	output := ForeshadowOutput{
		Foreshadows: buildMemoryResults(foreshadows),
		Count:       len(foreshadows),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), ForeshadowOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
