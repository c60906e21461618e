// Package tools implements the MCP tool handlers for blueprint.
//
// Each tool is a struct that receives its dependencies through its
// constructor and exposes Definition (for registration) and Handle (an
// mcp-go tool handler). Tools depend on the Workbench interface, not on
// the concrete session manager.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/tenant"
)

// Workbench is what the tools drive. *session.Manager satisfies it.
type Workbench interface {
	Predict(ctx context.Context, in session.PredictInput) (*session.PredictOutput, error)
	Refine(ctx context.Context, sessionID, instruction string) (*session.RefineOutput, error)
	Feedback(ctx context.Context, in session.FeedbackInput) (*session.FeedbackOutput, error)
	RecordOutcome(ctx context.Context, patternID, tenantID string, outcome feedback.Outcome) (feedback.OutcomeEvent, error)
	Ground(ctx context.Context, patternID string, success bool) (patterns.PatternConfidence, error)
	Patterns() []session.PatternSummary
}

// Output formats.
const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

// authFrom reads the optional company/project arguments.
func authFrom(req mcp.CallToolRequest) tenant.AuthContext {
	return tenant.AuthContext{
		Company:    strings.TrimSpace(req.GetString("company", "")),
		Project:    strings.TrimSpace(req.GetString("project", "")),
		AuthMethod: "mcp",
	}
}

// splitLines turns a newline-separated argument into trimmed, non-empty lines.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// jsonResult marshals v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

var errInvalidOutcome = errors.New("'outcome' must be 'accepted', 'rejected' or 'modified'")

func outcomeArg(req mcp.CallToolRequest) (feedback.Outcome, error) {
	o, err := feedback.ParseOutcome(strings.ToLower(strings.TrimSpace(req.GetString("outcome", ""))))
	if err != nil {
		return "", errInvalidOutcome
	}
	return o, nil
}
