// Package templates renders pipeline output as Markdown for the MCP tools and
// the CLI.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/prediction"
)

//go:embed *.md.tmpl
var files embed.FS

// Template names.
const (
	Result     = "result.md.tmpl"
	Prediction = "prediction.md.tmpl"
	Patterns   = "patterns.md.tmpl"
)

// Renderer renders a named template with data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// EmbedRenderer renders the templates embedded in the binary.
type EmbedRenderer struct {
	tmpl *template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*EmbedRenderer, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(files, "*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &EmbedRenderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *EmbedRenderer) Render(name string, data any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"join":    strings.Join,
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}

// ─── Data ────────────────────────────────────────────────────────────────────

// ResultData feeds the Result template.
type ResultData struct {
	Title  string
	Result *pipeline.Result
}

// PredictionData feeds the Prediction template, used after a refinement.
type PredictionData struct {
	Title        string
	Prediction   *prediction.StructurePrediction
	Modification string
}

// PatternRow is one catalogue entry.
type PatternRow struct {
	ID             string
	Name           string
	Category       string
	Description    string
	Confidence     float64
	GroundingCount int
	UsageCount     int
	Sections       int
}

// PatternsData feeds the Patterns template.
type PatternsData struct {
	Patterns []PatternRow
}
