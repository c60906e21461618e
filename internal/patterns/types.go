// Package patterns holds the in-memory catalogue of structure templates and
// everything that scores them: applicability rules, the confidence
// decay/grounding model and tenant-aware embedding fusion.
package patterns

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPatternNotFound is returned when an ID is not registered.
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrInvalidPattern is returned by Register for malformed patterns.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// ─── Pattern ─────────────────────────────────────────────────────────────────

// Pattern is a reusable structure template.
type Pattern struct {
	ID                 string              `json:"id" yaml:"id"`
	Name               string              `json:"name" yaml:"name"`
	Category           string              `json:"category" yaml:"category"`
	Description        string              `json:"description" yaml:"description"`
	Structure          Structure           `json:"structure" yaml:"structure"`
	ApplicabilityRules []ApplicabilityRule `json:"applicability_rules" yaml:"applicability_rules"`
	ConfidenceFactors  []ConfidenceFactor  `json:"confidence_factors,omitempty" yaml:"confidence_factors"`
	Metadata           Metadata            `json:"metadata" yaml:"metadata"`
	DomainAffinity     []float32           `json:"domain_affinity,omitempty" yaml:"-"`
	Confidence         *PatternConfidence  `json:"confidence,omitempty" yaml:"confidence"`
}

// Structure is the template a prediction is generated from.
type Structure struct {
	Sections      []SectionTemplate `json:"sections" yaml:"sections"`
	Workflows     []string          `json:"workflows" yaml:"workflows"`
	DefaultFields []string          `json:"default_fields" yaml:"default_fields"`
}

// SectionTemplate declares a section and the field types it carries.
type SectionTemplate struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	FieldTypes  []string `json:"field_types" yaml:"field_types"`
}

// Rule operators.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpContains  = "contains"
	OpIn        = "in"
	OpMatches   = "matches"
)

// Rule fields, read from an intent classification.
const (
	FieldIntent   = "intent"
	FieldDomain   = "domain"
	FieldEntities = "entities"
	FieldKeywords = "keywords"
)

// ApplicabilityRule adds Weight to a pattern's score when the classification
// field satisfies the operator against Value.
type ApplicabilityRule struct {
	Field    string  `json:"field" yaml:"field"`
	Operator string  `json:"operator" yaml:"operator"`
	Value    string  `json:"value" yaml:"value"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// ConfidenceFactor documents what a pattern's confidence rests on.
type ConfidenceFactor struct {
	Factor      string  `json:"factor" yaml:"factor"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// Metadata tracks bookkeeping about a pattern.
type Metadata struct {
	Version     string    `json:"version" yaml:"version"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
	UsageCount  int       `json:"usage_count" yaml:"usage_count"`
	SuccessRate float64   `json:"success_rate" yaml:"success_rate"`
}

// PatternConfidence is the stored input to CurrentConfidence. The effective
// value is never stored; it is derived from these fields and the clock.
type PatternConfidence struct {
	Base           float64    `json:"base" yaml:"base"`
	LastGrounded   *time.Time `json:"last_grounded,omitempty" yaml:"last_grounded"`
	GroundingCount int        `json:"grounding_count" yaml:"grounding_count"`
	DecayRate      float64    `json:"decay_rate" yaml:"decay_rate"`
}

// Clone returns a deep copy so callers can never reach library-owned slices.
func (p Pattern) Clone() Pattern {
	out := p
	out.Structure.Sections = make([]SectionTemplate, len(p.Structure.Sections))
	for i, s := range p.Structure.Sections {
		s.FieldTypes = append([]string(nil), s.FieldTypes...)
		out.Structure.Sections[i] = s
	}
	out.Structure.Workflows = append([]string(nil), p.Structure.Workflows...)
	out.Structure.DefaultFields = append([]string(nil), p.Structure.DefaultFields...)
	out.ApplicabilityRules = append([]ApplicabilityRule(nil), p.ApplicabilityRules...)
	out.ConfidenceFactors = append([]ConfidenceFactor(nil), p.ConfidenceFactors...)
	if p.DomainAffinity != nil {
		out.DomainAffinity = append([]float32(nil), p.DomainAffinity...)
	}
	if p.Confidence != nil {
		c := *p.Confidence
		if c.LastGrounded != nil {
			t := *c.LastGrounded
			c.LastGrounded = &t
		}
		out.Confidence = &c
	}
	return out
}

// ─── Matching ────────────────────────────────────────────────────────────────

// TenantContext is a tenant's domain embedding. Read-only to this package.
type TenantContext struct {
	TenantID  string    `json:"tenant_id"`
	Embedding []float32 `json:"-"`
}

// Match sources.
const (
	SourceRule   = "rule"
	SourceVector = "vector"
)

// PatternMatch is a transient scoring result.
type PatternMatch struct {
	Pattern Pattern `json:"pattern"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// VectorIndex is the external similarity search over patterns. Implementations
// fail closed: nil or false, never an error, when unconfigured or unreachable.
type VectorIndex interface {
	IsAvailable() bool
	IsInitialized() bool
	FindBestMatch(ctx context.Context, text string, minScore float64, tenant *TenantContext) *PatternMatch
	UpdatePatternAffinity(ctx context.Context, patternID string, embedding []float32, delta float64) bool
}
