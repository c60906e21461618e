package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/tenant"
)

// RecordOutcomeTool handles the blueprint_record_outcome MCP tool.
// It is the direct affinity path, for verdicts that did not go through a
// session.
type RecordOutcomeTool struct {
	bench Workbench
}

// NewRecordOutcomeTool creates a RecordOutcomeTool.
func NewRecordOutcomeTool(bench Workbench) *RecordOutcomeTool {
	return &RecordOutcomeTool{bench: bench}
}

// Definition returns the MCP tool definition for registration.
func (t *RecordOutcomeTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_record_outcome",
		mcp.WithDescription(
			"Apply an accept/reject verdict directly to a pattern's learned affinity "+
				"(+0.1 accepted, -0.1 rejected, 0 modified). With a company the update is biased "+
				"towards that tenant's domain.",
		),
		mcp.WithString("pattern_id",
			mcp.Required(),
			mcp.Description("Pattern the verdict is about"),
		),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("accepted, rejected or modified"),
			mcp.Enum("accepted", "rejected", "modified"),
		),
		mcp.WithString("company",
			mcp.Description("Tenant company"),
		),
		mcp.WithString("project",
			mcp.Description("Tenant project within the company"),
		),
	)
}

// Handle processes the blueprint_record_outcome tool call.
func (t *RecordOutcomeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patternID := strings.TrimSpace(req.GetString("pattern_id", ""))
	if patternID == "" {
		return mcp.NewToolResultError("'pattern_id' is required"), nil
	}
	outcome, err := outcomeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ev, err := t.bench.RecordOutcome(ctx, patternID, tenant.TenantID(authFrom(req)), outcome)
	if errors.Is(err, patterns.ErrPatternNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("recording outcome: %w", err)
	}

	status := "recorded, not applied (vector index unavailable or pattern not indexed)"
	if ev.Applied {
		status = "applied"
	}
	if ev.Delta == 0 {
		status = "recorded, no affinity change for this outcome"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"# Outcome Recorded\n\n- **Pattern:** `%s`\n- **Outcome:** %s\n- **Delta:** %+.1f\n- **Status:** %s\n",
		ev.PatternID, ev.Outcome, ev.Delta, status,
	)), nil
}
