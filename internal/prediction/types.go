// Package prediction turns a matched pattern into a concrete module structure
// and applies free-text edits to existing structures.
package prediction

// Field types a prediction may use.
const (
	TypeText      = "text"
	TypeTextarea  = "textarea"
	TypeNumber    = "number"
	TypeDate      = "date"
	TypeEmail     = "email"
	TypeSelect    = "select"
	TypeCheckbox  = "checkbox"
	TypeFile      = "file"
	TypeSignature = "signature"
)

// FieldTypes lists every supported field type.
var FieldTypes = []string{
	TypeText, TypeTextarea, TypeNumber, TypeDate, TypeEmail,
	TypeSelect, TypeCheckbox, TypeFile, TypeSignature,
}

// IsFieldType reports whether t is a supported field type.
func IsFieldType(t string) bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// ConditionPreviousStep gates a workflow step on its predecessor.
const ConditionPreviousStep = "previous_step_complete"

// Prediction sources.
const (
	SourceRule    = "rule"
	SourceVector  = "vector"
	SourceGeneric = "generic"
)

// StructurePrediction is a proposed module. Values are produced fresh per run
// and are never edited in place; ApplyModification returns a new one.
type StructurePrediction struct {
	ModuleType   string                `json:"module_type"`
	PatternID    string                `json:"pattern_id,omitempty"`
	Source       string                `json:"source"`
	Sections     []SectionPrediction   `json:"sections"`
	Workflow     []WorkflowStep        `json:"workflow"`
	Confidence   float64               `json:"confidence"`
	Rationale    string                `json:"rationale"`
	Alternatives []StructurePrediction `json:"alternatives,omitempty"`
}

// SectionPrediction is one group of fields.
type SectionPrediction struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldPrediction `json:"fields"`
}

// FieldPrediction is one input on the module.
type FieldPrediction struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// WorkflowStep is one stage of the module's approval flow.
type WorkflowStep struct {
	Name      string `json:"name"`
	Order     int    `json:"order"`
	Type      string `json:"type"`
	Assignee  string `json:"assignee"`
	Condition string `json:"condition,omitempty"`
}

// FieldCount returns the number of fields across all sections.
func (p StructurePrediction) FieldCount() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Fields)
	}
	return n
}

// Clone returns a deep copy.
func (p StructurePrediction) Clone() StructurePrediction {
	out := p
	out.Sections = make([]SectionPrediction, len(p.Sections))
	for i, s := range p.Sections {
		s.Fields = append([]FieldPrediction(nil), s.Fields...)
		out.Sections[i] = s
	}
	out.Workflow = append([]WorkflowStep(nil), p.Workflow...)
	if p.Alternatives != nil {
		out.Alternatives = make([]StructurePrediction, len(p.Alternatives))
		for i, a := range p.Alternatives {
			out.Alternatives[i] = a.Clone()
		}
	}
	return out
}
