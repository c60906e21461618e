// Package validation checks predicted structures for completeness and
// proposes repairs the orchestrator can apply automatically.
package validation

// Severity of an issue. Only errors make a structure invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeMissingModuleType = "missing_module_type"
	CodeMissingSections   = "missing_sections"
	CodeUnnamedSection    = "unnamed_section"
	CodeEmptySection      = "empty_section"
	CodeUnnamedField      = "unnamed_field"
	CodeInvalidFieldType  = "invalid_field_type"
	CodeDuplicateField    = "duplicate_field"

	CodeNoRequiredFields = "no_required_fields"
	CodeLowConfidence    = "low_confidence"
	CodeUnassignedStep   = "unassigned_step"
	// CodeBrokenStepGate flags a step gated on a predecessor it does not
	// have, or one ordered before the step it follows.
	CodeBrokenStepGate = "broken_step_gate"
)

// Fix actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionModify = "modify"
)

// Fix targets.
const (
	TargetModuleType = "module_type"
	TargetSection    = "section"
	TargetField      = "field"
	TargetFieldName  = "field_name"
	TargetFieldType  = "field_type"
)

// Fix is a suggested structural repair. Indexes address the structure the
// issue was found on; -1 means not applicable.
type Fix struct {
	Action       string `json:"action"`
	Target       string `json:"target"`
	SectionIndex int    `json:"section_index"`
	FieldIndex   int    `json:"field_index"`
	Value        string `json:"value,omitempty"`
	Description  string `json:"description"`
}

// Issue is one finding.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Fix      *Fix     `json:"fix,omitempty"`
}

// Result is the outcome of one validation pass.
type Result struct {
	Valid    bool    `json:"valid"`
	Score    float64 `json:"score"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Fixes returns the suggested fixes of every error, in order.
func (r *Result) Fixes() []Fix {
	if r == nil {
		return nil
	}
	var out []Fix
	for _, e := range r.Errors {
		if e.Fix != nil {
			out = append(out, *e.Fix)
		}
	}
	return out
}

// Codes lists the codes of all errors.
func (r *Result) Codes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}
