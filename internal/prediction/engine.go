package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/signal"
)

const (
	// GenericConfidence is the confidence of the no-match fallback.
	GenericConfidence = 0.3
	// DefaultVectorMinScore is the similarity threshold for the vector path.
	DefaultVectorMinScore = 0.3

	maxMatchConfidence = 0.95
	maxAlternatives    = 2
)

// ErrNoLibrary is returned when the engine was built without a pattern library.
var ErrNoLibrary = errors.New("prediction: no pattern library")

// Engine builds structure predictions.
type Engine struct {
	library        *patterns.Library
	index          patterns.VectorIndex
	vectorMinScore float64
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectorIndex enables the vector path. A nil index leaves it disabled.
func WithVectorIndex(idx patterns.VectorIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// WithVectorMinScore overrides the vector similarity threshold.
func WithVectorMinScore(v float64) Option {
	return func(e *Engine) { e.vectorMinScore = v }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine over library.
func NewEngine(library *patterns.Library, opts ...Option) *Engine {
	e := &Engine{
		library:        library,
		vectorMinScore: DefaultVectorMinScore,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("prediction")
	return e
}

// Predict tries the vector index, then rule matching, then falls back to a
// generic three-field module. A vector hit wins even if a rule match would
// score higher. Only a cancelled context or a missing library is an error.
func (e *Engine) Predict(ctx context.Context, sig signal.ProcessedSignal, tenant *patterns.TenantContext) (*StructurePrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.library == nil {
		return nil, ErrNoLibrary
	}

	c := sig.Intent
	match := e.vectorMatch(ctx, sig, tenant)
	if match == nil {
		match = e.library.Match(c, tenant)
	}
	if match == nil {
		e.logger.Debug("no pattern matched, using generic structure", zap.String("domain", c.Domain))
		p := genericPrediction(c)
		return &p, nil
	}

	p := fromPattern(match.Pattern, match.Score, match.Source, c)
	for _, alt := range e.library.Rank(c, tenant) {
		if len(p.Alternatives) == maxAlternatives {
			break
		}
		if alt.Pattern.ID == match.Pattern.ID {
			continue
		}
		p.Alternatives = append(p.Alternatives, fromPattern(alt.Pattern, alt.Score, alt.Source, c))
	}

	e.logger.Debug("predicted structure",
		zap.String("pattern", p.PatternID),
		zap.String("source", p.Source),
		zap.Float64("confidence", p.Confidence),
		zap.Int("alternatives", len(p.Alternatives)),
	)
	return &p, nil
}

func (e *Engine) vectorMatch(ctx context.Context, sig signal.ProcessedSignal, tenant *patterns.TenantContext) *patterns.PatternMatch {
	if e.index == nil || !e.index.IsAvailable() || !e.index.IsInitialized() {
		return nil
	}
	m := e.index.FindBestMatch(ctx, QueryText(sig), e.vectorMinScore, tenant)
	if m != nil {
		m.Source = patterns.SourceVector
	}
	return m
}

// QueryText is the text sent to the vector index: domain, entities, then the
// raw requirement.
func QueryText(sig signal.ProcessedSignal) string {
	parts := make([]string, 0, len(sig.Intent.Entities)+2)
	if sig.Intent.Domain != "" {
		parts = append(parts, sig.Intent.Domain)
	}
	parts = append(parts, sig.Intent.Entities...)
	if raw := strings.TrimSpace(sig.Raw); raw != "" {
		parts = append(parts, raw)
	}
	return strings.Join(parts, " ")
}

func fromPattern(p patterns.Pattern, score float64, source string, c signal.IntentClassification) StructurePrediction {
	out := StructurePrediction{
		ModuleType: p.Category,
		PatternID:  p.ID,
		Source:     source,
		Sections:   make([]SectionPrediction, 0, len(p.Structure.Sections)),
		Workflow:   buildWorkflow(p.Structure.Workflows),
		Confidence: matchConfidence(score, c.Confidence),
		Rationale: fmt.Sprintf("Matched pattern %q by %s with score %.2f; intent %s at %.2f confidence.",
			p.Name, source, score, c.Intent, c.Confidence),
	}

	for i, tmpl := range p.Structure.Sections {
		s := SectionPrediction{Name: tmpl.Name, Description: tmpl.Description}
		if i == 0 {
			for _, name := range p.Structure.DefaultFields {
				s.Fields = append(s.Fields, FieldPrediction{
					Name:     Slugify(name),
					Label:    Humanize(name),
					Type:     InferFieldType(name),
					Required: true,
				})
			}
		}
		prefix := Slugify(tmpl.Name)
		for _, ft := range tmpl.FieldTypes {
			s.Fields = append(s.Fields, FieldPrediction{
				Name:  prefix + "_" + ft,
				Label: tmpl.Name + " " + Humanize(ft),
				Type:  ft,
			})
		}
		out.Sections = append(out.Sections, s)
	}
	return out
}

func buildWorkflow(names []string) []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(names))
	for i, name := range names {
		step := WorkflowStep{
			Name:     Humanize(name),
			Order:    i + 1,
			Type:     InferStepType(name),
			Assignee: InferAssignee(name),
		}
		if i > 0 {
			step.Condition = ConditionPreviousStep
		}
		steps = append(steps, step)
	}
	return steps
}

// matchConfidence blends the match score with the intent confidence.
func matchConfidence(score, intentConfidence float64) float64 {
	v := 0.6*score + 0.4*intentConfidence
	return math.Max(GenericConfidence, math.Min(maxMatchConfidence, v))
}

func genericPrediction(c signal.IntentClassification) StructurePrediction {
	moduleType := c.Domain
	if moduleType == "" {
		moduleType = "general"
	}
	return StructurePrediction{
		ModuleType: moduleType,
		Source:     SourceGeneric,
		Sections: []SectionPrediction{{
			Name: "General",
			Fields: []FieldPrediction{
				{Name: "title", Label: "Title", Type: TypeText, Required: true},
				{Name: "description", Label: "Description", Type: TypeTextarea},
				{Name: "date", Label: "Date", Type: TypeDate},
			},
		}},
		Workflow:   []WorkflowStep{},
		Confidence: GenericConfidence,
		Rationale:  "No pattern matched; using a generic structure. Add detail about the domain for a better prediction.",
	}
}
