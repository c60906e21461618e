package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/patterns"
)

// GroundPatternTool handles the blueprint_ground_pattern MCP tool.
type GroundPatternTool struct {
	bench Workbench
}

// NewGroundPatternTool creates a GroundPatternTool.
func NewGroundPatternTool(bench Workbench) *GroundPatternTool {
	return &GroundPatternTool{bench: bench}
}

// Definition returns the MCP tool definition for registration.
func (t *GroundPatternTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_ground_pattern",
		mcp.WithDescription(
			"Record that a pattern was used in production. success=true resets its confidence decay "+
				"and adds a grounding boost; success=false changes nothing.",
		),
		mcp.WithString("pattern_id",
			mcp.Required(),
			mcp.Description("Pattern that was used"),
		),
		mcp.WithBoolean("success",
			mcp.Description("Whether the use succeeded. Defaults to true."),
			mcp.DefaultBool(true),
		),
	)
}

// Handle processes the blueprint_ground_pattern tool call.
func (t *GroundPatternTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patternID := strings.TrimSpace(req.GetString("pattern_id", ""))
	if patternID == "" {
		return mcp.NewToolResultError("'pattern_id' is required"), nil
	}
	success := req.GetBool("success", true)

	c, err := t.bench.Ground(ctx, patternID, success)
	if errors.Is(err, patterns.ErrPatternNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("grounding pattern: %w", err)
	}

	current := patterns.MaxConfidence
	for _, p := range t.bench.Patterns() {
		if p.ID == patternID {
			current = p.Confidence
			break
		}
	}

	if !success {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Pattern `%s` not grounded (success=false leaves confidence untouched). Current confidence: %.2f\n",
			patternID, current)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"# Pattern Grounded\n\n- **Pattern:** `%s`\n- **Groundings:** %d\n- **Base:** %.2f\n- **Decay/day:** %.3f\n- **Current confidence:** %.2f\n",
		patternID, c.GroundingCount, c.Base, c.DecayRate, current,
	)), nil
}
