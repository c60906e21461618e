// Package resources implements MCP resource handlers for blueprint.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (blueprint://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/session"
)

const (
	patternsURI    = "blueprint://patterns"
	sessionPrefix  = "blueprint://sessions/"
	sessionURIForm = sessionPrefix + "{id}"
)

// Source is the read side of the session manager.
type Source interface {
	Patterns() []session.PatternSummary
	Get(id string) (*session.Session, error)
}

// Handler manages blueprint resource endpoints.
type Handler struct {
	source Source
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

// PatternsResource returns the MCP resource definition for the catalogue.
func (h *Handler) PatternsResource() mcp.Resource {
	return mcp.NewResource(
		patternsURI,
		"Blueprint Pattern Catalogue",
		mcp.WithResourceDescription("Every registered pattern with its current confidence"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandlePatterns returns the catalogue as JSON.
func (h *Handler) HandlePatterns(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(req.Params.URI, h.source.Patterns())
}

// SessionTemplate returns the resource template for open sessions.
func (h *Handler) SessionTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		sessionURIForm,
		"Blueprint Session",
		mcp.WithTemplateDescription("The current structure of an open session, including applied refinements"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleSession returns one open session as JSON.
func (h *Handler) HandleSession(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, sessionPrefix)
	if id == "" || id == req.Params.URI {
		return errorResource(req.Params.URI, "missing session id"), nil
	}
	s, err := h.source.Get(id)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonContents(req.Params.URI, s)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
