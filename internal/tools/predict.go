package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/templates"
)

// PredictTool handles the blueprint_predict MCP tool.
// It runs the full pipeline on a requirement and opens a session that
// blueprint_refine and blueprint_feedback continue.
type PredictTool struct {
	bench    Workbench
	renderer templates.Renderer
}

// NewPredictTool creates a PredictTool with its dependencies.
func NewPredictTool(bench Workbench, renderer templates.Renderer) *PredictTool {
	return &PredictTool{bench: bench, renderer: renderer}
}

// Definition returns the MCP tool definition for registration.
func (t *PredictTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_predict",
		mcp.WithDescription(
			"Turn a free-text requirement (e.g. 'create a safety assessment form') into a validated "+
				"module structure: sections, fields and workflow steps, with a confidence score and rationale. "+
				"Invalid structures are repaired automatically. Returns a session_id for "+
				"blueprint_refine and blueprint_feedback.",
		),
		mcp.WithString("requirement",
			mcp.Required(),
			mcp.Description("The requirement in the user's own words"),
		),
		mcp.WithString("context",
			mcp.Description("Optional extra context, one item per line. 'key=value' lines become named signals."),
		),
		mcp.WithString("company",
			mcp.Description("Tenant company. Biases pattern ranking towards this company's domain; never filters."),
		),
		mcp.WithString("project",
			mcp.Description("Tenant project within the company"),
		),
		mcp.WithString("tenant_description",
			mcp.Description("Describes the tenant's domain. Used once to initialise the tenant context."),
		),
		mcp.WithBoolean("auto_fix",
			mcp.Description("Repair invalid structures automatically. Defaults to true."),
			mcp.DefaultBool(true),
		),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.DefaultString(formatMarkdown),
			mcp.Enum(formatMarkdown, formatJSON),
		),
	)
}

// Handle processes the blueprint_predict tool call.
func (t *PredictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requirement := req.GetString("requirement", "")
	format := req.GetString("format", formatMarkdown)

	autoFix := req.GetBool("auto_fix", true)

	out, err := t.bench.Predict(ctx, session.PredictInput{
		UserInput:         requirement,
		Context:           splitLines(req.GetString("context", "")),
		Auth:              authFrom(req),
		TenantDescription: req.GetString("tenant_description", ""),
		Overrides:         pipeline.Overrides{EnableAutoFix: &autoFix},
	})
	if errors.Is(err, session.ErrEmptyInput) {
		return mcp.NewToolResultError("'requirement' is required"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("predicting: %w", err)
	}

	if format == formatJSON {
		return jsonResult(out)
	}

	doc, err := t.renderer.Render(templates.Result, templates.ResultData{
		Title:  requirement,
		Result: out.Result,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering result: %w", err)
	}
	if out.SessionID != "" {
		doc += fmt.Sprintf("\n**Session:** `%s`\n\n"+
			"Refine with `blueprint_refine` (e.g. \"add field supervisor name\"), then close with "+
			"`blueprint_feedback` once the user accepts, rejects or modifies it.\n", out.SessionID)
	}
	return mcp.NewToolResultText(doc), nil
}
