package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/templates"
)

// RefineTool handles the blueprint_refine MCP tool.
type RefineTool struct {
	bench    Workbench
	renderer templates.Renderer
}

// NewRefineTool creates a RefineTool with its dependencies.
func NewRefineTool(bench Workbench, renderer templates.Renderer) *RefineTool {
	return &RefineTool{bench: bench, renderer: renderer}
}

// Definition returns the MCP tool definition for registration.
func (t *RefineTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_refine",
		mcp.WithDescription(
			"Apply a plain-language edit to a predicted structure, e.g. 'add field supervisor name', "+
				"'remove section controls', 'rename step notify team to notify site', 'make location optional', "+
				"'move risk rating to top', 'change location field to number'. "+
				"The edit is recorded for the session's feedback.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session returned by blueprint_predict"),
		),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("The edit to apply"),
		),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.DefaultString(formatMarkdown),
			mcp.Enum(formatMarkdown, formatJSON),
		),
	)
}

// Handle processes the blueprint_refine tool call.
func (t *RefineTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	instruction := req.GetString("instruction", "")

	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	out, err := t.bench.Refine(ctx, sessionID, instruction)
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		return mcp.NewToolResultError("'instruction' is required"), nil
	case errors.Is(err, session.ErrSessionNotFound):
		return mcp.NewToolResultError(fmt.Sprintf(
			"session %q not found or expired. Run blueprint_predict again.", sessionID)), nil
	case err != nil:
		return nil, fmt.Errorf("refining: %w", err)
	}

	if req.GetString("format", formatMarkdown) == formatJSON {
		return jsonResult(out)
	}

	mod := out.Modification
	note := fmt.Sprintf("Applied: %s %s", mod.Action, mod.Target)
	if mod.Subject != "" {
		note += fmt.Sprintf(" \"%s\"", mod.Subject)
	}
	if mod.NewName != "" {
		note += fmt.Sprintf(" to \"%s\"", mod.NewName)
	}

	doc, err := t.renderer.Render(templates.Prediction, templates.PredictionData{
		Title:        "Refined structure",
		Prediction:   out.Session.Prediction,
		Modification: note,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering prediction: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(doc)
	if v := out.Validation; v != nil {
		if v.Valid {
			sb.WriteString(fmt.Sprintf("\n**Validation:** valid (score %.2f)\n", v.Score))
		} else {
			sb.WriteString(fmt.Sprintf("\n**Validation:** %d error(s): %s\n", len(v.Errors), strings.Join(v.Codes(), ", ")))
		}
	}
	sb.WriteString(fmt.Sprintf("\n**Session:** `%s` (%d modification(s))\n", sessionID, out.Session.Modifications))
	return mcp.NewToolResultText(sb.String()), nil
}
