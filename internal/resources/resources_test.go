package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/blueprint/internal/session"
)

type fakeSource struct {
	patterns []session.PatternSummary
	sessions map[string]*session.Session
}

func (f *fakeSource) Patterns() []session.PatternSummary { return f.patterns }

func (f *fakeSource) Get(id string) (*session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s, nil
}

func read(t *testing.T, fn func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string) mcp.TextResourceContents {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	contents, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T", contents[0])
	}
	return tc
}

func TestPatternsResource(t *testing.T) {
	h := NewHandler(&fakeSource{patterns: []session.PatternSummary{{ID: "incident-report", Confidence: 0.9}}})

	if got := h.PatternsResource().URI; got != "blueprint://patterns" {
		t.Errorf("uri = %q", got)
	}

	tc := read(t, h.HandlePatterns, "blueprint://patterns")
	if tc.MIMEType != "application/json" {
		t.Errorf("mime = %q", tc.MIMEType)
	}
	var rows []session.PatternSummary
	if err := json.Unmarshal([]byte(tc.Text), &rows); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "incident-report" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSessionResource(t *testing.T) {
	h := NewHandler(&fakeSource{sessions: map[string]*session.Session{
		"abc": {ID: "abc", PatternID: "risk-assessment", UserInput: "create assessment module"},
	}})

	if got := h.SessionTemplate().Name; got != "Blueprint Session" {
		t.Errorf("template name = %q", got)
	}

	tc := read(t, h.HandleSession, "blueprint://sessions/abc")
	if !strings.Contains(tc.Text, `"pattern_id": "risk-assessment"`) {
		t.Errorf("unexpected body:\n%s", tc.Text)
	}

	missing := read(t, h.HandleSession, "blueprint://sessions/zzz")
	if missing.MIMEType != "text/plain" || !strings.HasPrefix(missing.Text, "Error:") {
		t.Errorf("missing session = %+v", missing)
	}

	bad := read(t, h.HandleSession, "blueprint://sessions/")
	if !strings.Contains(bad.Text, "missing session id") {
		t.Errorf("empty id = %+v", bad)
	}
}
