package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/session"
)

// FeedbackTool handles the blueprint_feedback MCP tool.
// It closes a session and turns the user's verdict into learning signals.
type FeedbackTool struct {
	bench Workbench
}

// NewFeedbackTool creates a FeedbackTool.
func NewFeedbackTool(bench Workbench) *FeedbackTool {
	return &FeedbackTool{bench: bench}
}

// Definition returns the MCP tool definition for registration.
func (t *FeedbackTool) Definition() mcp.Tool {
	return mcp.NewTool("blueprint_feedback",
		mcp.WithDescription(
			"Record the user's final verdict on a session's structure. "+
				"'accepted' strengthens the pattern (affinity and grounding), 'rejected' weakens its affinity, "+
				"'modified' records the edits only. Closes the session.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session returned by blueprint_predict"),
		),
		mcp.WithString("outcome",
			mcp.Required(),
			mcp.Description("What the user did with the structure"),
			mcp.Enum(string(feedback.OutcomeAccepted), string(feedback.OutcomeRejected), string(feedback.OutcomeModified)),
		),
		mcp.WithNumber("rating",
			mcp.Description("Optional 1-5 rating; 0 or absent means no rating"),
		),
		mcp.WithString("comment",
			mcp.Description("Optional free-text comment"),
		),
		mcp.WithString("pattern_id",
			mcp.Description("Pattern to credit when the session has expired"),
		),
	)
}

// Handle processes the blueprint_feedback tool call.
func (t *FeedbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	outcome, err := outcomeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rating := req.GetInt("rating", 0)
	if rating < 0 || rating > 5 {
		return mcp.NewToolResultError("'rating' must be between 1 and 5"), nil
	}

	out, err := t.bench.Feedback(ctx, session.FeedbackInput{
		SessionID: sessionID,
		Outcome:   outcome,
		Rating:    rating,
		Comment:   req.GetString("comment", ""),
		PatternID: strings.TrimSpace(req.GetString("pattern_id", "")),
	})
	if errors.Is(err, feedback.ErrEmptySession) || errors.Is(err, feedback.ErrInvalidOutcome) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("submitting feedback: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Feedback Recorded\n\n")
	sb.WriteString(fmt.Sprintf("- **Session:** `%s`\n", sessionID))
	sb.WriteString(fmt.Sprintf("- **Outcome:** %s\n", outcome))
	sb.WriteString(fmt.Sprintf("- **Signal weight:** %.2f (%d modification(s))\n", out.Signal.Weight, len(out.Signal.Modifications)))
	if out.Signal.PatternID != "" {
		sb.WriteString(fmt.Sprintf("- **Pattern:** `%s`\n", out.Signal.PatternID))
	}
	if ev := out.Outcome; ev != nil {
		applied := "not applied (no vector index)"
		if ev.Applied {
			applied = "applied"
		}
		sb.WriteString(fmt.Sprintf("- **Affinity delta:** %+.1f, %s\n", ev.Delta, applied))
	}
	if c := out.Confidence; c != nil {
		sb.WriteString(fmt.Sprintf("- **Grounded:** %d time(s)\n", c.GroundingCount))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
