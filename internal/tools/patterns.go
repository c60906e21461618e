package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/templates"
)

// ListPatternsTool handles the blueprint_list_patterns MCP tool.
type ListPatternsTool struct {
	bench    Workbench
	renderer templates.Renderer
}

// NewListPatternsTool creates a ListPatternsTool.
func NewListPatternsTool(bench Workbench, renderer templates.Renderer) *ListPatternsTool {
	return &ListPatternsTool{bench: bench, renderer: renderer}
}

// Definition returns the MCP tool definition for registration.
func (t *ListPatternsTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_list_patterns",
		mcp.WithDescription("List the pattern catalogue with each pattern's current (decayed and grounded) confidence."),
		mcp.WithString("category",
			mcp.Description("Only list patterns of this category"),
		),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.DefaultString(formatMarkdown),
			mcp.Enum(formatMarkdown, formatJSON),
		),
	)
}

// Handle processes the blueprint_list_patterns tool call.
func (t *ListPatternsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")

	var selected []session.PatternSummary
	data := templates.PatternsData{}
	for _, p := range t.bench.Patterns() {
		if category != "" && p.Category != category {
			continue
		}
		selected = append(selected, p)
		data.Patterns = append(data.Patterns, templates.PatternRow(p))
	}

	if req.GetString("format", formatMarkdown) == formatJSON {
		return jsonResult(selected)
	}

	doc, err := t.renderer.Render(templates.Patterns, data)
	if err != nil {
		return nil, fmt.Errorf("rendering patterns: %w", err)
	}
	return mcp.NewToolResultText(doc), nil
}
