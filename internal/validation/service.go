package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/prediction"
)

const (
	// DefaultLowConfidence is the confidence below which a warning is raised.
	DefaultLowConfidence = 0.5

	defaultModuleType = "custom"
	errorPenalty      = 0.25
	warningPenalty    = 0.05
)

// ErrNilPrediction is returned when there is nothing to validate.
var ErrNilPrediction = errors.New("validation: nil prediction")

// Service validates and repairs structure predictions. It is stateless.
type Service struct {
	lowConfidence float64
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLowConfidence overrides the low-confidence warning threshold.
func WithLowConfidence(v float64) Option {
	return func(s *Service) { s.lowConfidence = v }
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{lowConfidence: DefaultLowConfidence, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("validation")
	return s
}

// Validate checks p. Errors block validity and each carries a Fix; warnings
// never do.
func (s *Service) Validate(ctx context.Context, p *prediction.StructurePrediction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNilPrediction
	}

	r := &Result{Errors: []Issue{}, Warnings: []Issue{}}
	addErr := func(code, path, msg string, fix Fix) {
		r.Errors = append(r.Errors, Issue{Code: code, Severity: SeverityError, Path: path, Message: msg, Fix: &fix})
	}
	addWarn := func(code, path, msg string) {
		r.Warnings = append(r.Warnings, Issue{Code: code, Severity: SeverityWarning, Path: path, Message: msg})
	}

	if p.ModuleType == "" {
		addErr(CodeMissingModuleType, "module_type", "module type is missing", Fix{
			Action: ActionModify, Target: TargetModuleType, SectionIndex: -1, FieldIndex: -1,
			Value: defaultModuleType, Description: "set module type to " + defaultModuleType,
		})
	}

	if len(p.Sections) == 0 {
		addErr(CodeMissingSections, "sections", "module has no sections", Fix{
			Action: ActionAdd, Target: TargetSection, SectionIndex: -1, FieldIndex: -1,
			Value: "General", Description: "add a General section with a Title field",
		})
	}

	seen := make(map[string]bool)
	for _, sec := range p.Sections {
		for _, f := range sec.Fields {
			if f.Name != "" {
				seen[f.Name] = true
			}
		}
	}
	counted := make(map[string]bool)
	required := 0

	for si, sec := range p.Sections {
		path := fmt.Sprintf("sections[%d]", si)
		if sec.Name == "" {
			name := fmt.Sprintf("Section %d", si+1)
			addErr(CodeUnnamedSection, path, "section has no name", Fix{
				Action: ActionModify, Target: TargetSection, SectionIndex: si, FieldIndex: -1,
				Value: name, Description: "name the section " + name,
			})
		}
		if len(sec.Fields) == 0 {
			name := uniqueName(sectionSlug(sec, si)+"_notes", seen)
			seen[name] = true
			addErr(CodeEmptySection, path, "section has no fields", Fix{
				Action: ActionAdd, Target: TargetField, SectionIndex: si, FieldIndex: -1,
				Value: name, Description: "add a notes field",
			})
		}

		for fi, f := range sec.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, fi)
			if f.Required {
				required++
			}

			if f.Name == "" {
				name := prediction.Slugify(f.Label)
				if name == "" || seen[name] {
					name = uniqueName(fmt.Sprintf("%s_field_%d", sectionSlug(sec, si), fi+1), seen)
				}
				seen[name] = true
				addErr(CodeUnnamedField, fpath, "field has no name", Fix{
					Action: ActionModify, Target: TargetFieldName, SectionIndex: si, FieldIndex: fi,
					Value: name, Description: "name the field " + name,
				})
			} else if counted[f.Name] {
				name := uniqueName(f.Name, seen)
				seen[name] = true
				addErr(CodeDuplicateField, fpath, fmt.Sprintf("field name %q is used more than once", f.Name), Fix{
					Action: ActionModify, Target: TargetFieldName, SectionIndex: si, FieldIndex: fi,
					Value: name, Description: "rename the field to " + name,
				})
			}
			counted[f.Name] = true

			if !prediction.IsFieldType(f.Type) {
				addErr(CodeInvalidFieldType, fpath, fmt.Sprintf("field type %q is not supported", f.Type), Fix{
					Action: ActionModify, Target: TargetFieldType, SectionIndex: si, FieldIndex: fi,
					Value: prediction.TypeText, Description: "change the field type to text",
				})
			}
		}
	}

	if len(p.Sections) > 0 && required == 0 {
		addWarn(CodeNoRequiredFields, "sections", "no field is required")
	}
	if p.Confidence < s.lowConfidence {
		addWarn(CodeLowConfidence, "confidence", fmt.Sprintf("prediction confidence %.2f is low; review the structure", p.Confidence))
	}
	for i, step := range p.Workflow {
		path := fmt.Sprintf("workflow[%d]", i)
		if step.Assignee == "" {
			addWarn(CodeUnassignedStep, path, fmt.Sprintf("workflow step %q has no assignee", step.Name))
		}
		switch {
		case i == 0 && step.Condition == prediction.ConditionPreviousStep:
			addWarn(CodeBrokenStepGate, path, fmt.Sprintf("first workflow step %q waits on a previous step", step.Name))
		case i > 0 && step.Order <= p.Workflow[i-1].Order:
			addWarn(CodeBrokenStepGate, path, fmt.Sprintf("workflow step %q is not ordered after %q", step.Name, p.Workflow[i-1].Name))
		}
	}

	r.Valid = len(r.Errors) == 0
	score := 1 - errorPenalty*float64(len(r.Errors)) - warningPenalty*float64(len(r.Warnings))
	r.Score = math.Max(0, math.Min(1, score))

	s.logger.Debug("validated prediction",
		zap.Bool("valid", r.Valid),
		zap.Int("errors", len(r.Errors)),
		zap.Int("warnings", len(r.Warnings)),
	)
	return r, nil
}

// AutoFix applies one round of the fixes suggested in r to a copy of p.
func (s *Service) AutoFix(ctx context.Context, p *prediction.StructurePrediction, r *Result) (*prediction.StructurePrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNilPrediction
	}

	out := p.Clone()
	applied := 0
	for _, fix := range r.Fixes() {
		if applyFix(&out, fix) {
			applied++
		}
	}
	s.logger.Debug("applied fixes", zap.Int("applied", applied), zap.Int("suggested", len(r.Fixes())))
	return &out, nil
}

func applyFix(p *prediction.StructurePrediction, f Fix) bool {
	switch f.Target {
	case TargetModuleType:
		p.ModuleType = f.Value
		return true

	case TargetSection:
		switch f.Action {
		case ActionAdd:
			p.Sections = append(p.Sections, prediction.SectionPrediction{
				Name:   f.Value,
				Fields: []prediction.FieldPrediction{{Name: "title", Label: "Title", Type: prediction.TypeText, Required: true}},
			})
			return true
		case ActionModify:
			if !validSection(p, f.SectionIndex) {
				return false
			}
			p.Sections[f.SectionIndex].Name = f.Value
			return true
		}

	case TargetField:
		if f.Action != ActionAdd || !validSection(p, f.SectionIndex) {
			return false
		}
		sec := &p.Sections[f.SectionIndex]
		sec.Fields = append(sec.Fields, prediction.FieldPrediction{
			Name: f.Value, Label: prediction.Humanize(f.Value), Type: prediction.TypeTextarea,
		})
		return true

	case TargetFieldName, TargetFieldType:
		if !validSection(p, f.SectionIndex) || f.FieldIndex < 0 || f.FieldIndex >= len(p.Sections[f.SectionIndex].Fields) {
			return false
		}
		field := &p.Sections[f.SectionIndex].Fields[f.FieldIndex]
		if f.Target == TargetFieldType {
			field.Type = f.Value
			return true
		}
		field.Name = f.Value
		if field.Label == "" {
			field.Label = prediction.Humanize(f.Value)
		}
		return true
	}
	return false
}

func validSection(p *prediction.StructurePrediction, i int) bool {
	return i >= 0 && i < len(p.Sections)
}

func sectionSlug(sec prediction.SectionPrediction, i int) string {
	if slug := prediction.Slugify(sec.Name); slug != "" {
		return slug
	}
	return fmt.Sprintf("section_%d", i+1)
}

func uniqueName(base string, seen map[string]bool) string {
	if !seen[base] {
		return base
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s_%d", base, n)
		if !seen[name] {
			return name
		}
	}
}
