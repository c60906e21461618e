// Package prompts implements MCP prompt handlers for blueprint.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the blueprint-start MCP prompt.
// It walks the AI through predict, refine and feedback for one requirement.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("blueprint-start",
		mcp.WithPromptDescription(
			"Design a module from a plain-language requirement. "+
				"Predicts a structure, lets you refine it, and records your verdict so future predictions improve.",
		),
		mcp.WithArgument("requirement",
			mcp.ArgumentDescription("What you want to build, e.g. 'create a safety assessment form'"),
		),
		mcp.WithArgument("company",
			mcp.ArgumentDescription("Your company, to bias predictions towards your domain"),
		),
	)
}

// Handle processes the blueprint-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var requirement, company string
	if args := req.Params.Arguments; args != nil {
		requirement = strings.TrimSpace(args["requirement"])
		company = strings.TrimSpace(args["company"])
	}

	first := "1. Ask me what I want to build, then run `blueprint_predict` with my answer as 'requirement'"
	description := "Start a blueprint session"
	if requirement != "" {
		first = fmt.Sprintf("1. Run `blueprint_predict` with requirement=%q", requirement)
		description = fmt.Sprintf("Blueprint: %s", requirement)
	}
	if company != "" {
		first += fmt.Sprintf(" and company=%q", company)
	}

	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"I want to design a new module.\n\n" +
						"Please:\n" +
						first + "\n" +
						"2. Show me the structure and ask the clarity questions, if any\n" +
						"3. For each change I ask for, run `blueprint_refine` with the session_id and my instruction\n" +
						"4. When I'm done, run `blueprint_feedback` with outcome 'accepted', 'modified' or 'rejected'\n\n" +
						"Keep the structure as the source of truth: never edit it by hand, always go through the tools.",
				),
			},
		},
	}, nil
}
