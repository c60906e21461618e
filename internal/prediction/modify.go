package prediction

import (
	"fmt"
	"math"
	"strings"
)

// Modification targets.
const (
	TargetSection    = "section"
	TargetField      = "field"
	TargetWorkflow   = "workflow"
	TargetValidation = "validation"
	TargetOrder      = "order"
	TargetType       = "type"
)

// Modification actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionModify = "modify"
)

const (
	modificationDecay   = 0.95
	modificationFloor   = 0.5
	defaultSectionName  = "New Section"
	defaultFieldLabel   = "New Field"
	defaultWorkflowStep = "New Step"
)

// Modification is a parsed edit instruction.
type Modification struct {
	Target  string `json:"target"`
	Action  string `json:"action"`
	Subject string `json:"subject,omitempty"` // humanised
	NewName string `json:"new_name,omitempty"`
	Raw     string `json:"raw"`
}

type keywordSet struct {
	name  string
	words []string
}

// Tested in order; first set with a word present wins. Words are compared as
// whole tokens so "address" never reads as "add".
var targetKeywords = []keywordSet{
	{TargetSection, []string{"section", "sections", "page", "pages", "group", "groups"}},
	{TargetField, []string{"field", "fields", "input", "inputs", "question", "questions", "column", "columns"}},
	{TargetWorkflow, []string{"workflow", "workflows", "step", "steps", "approval", "approvals", "process"}},
	{TargetValidation, []string{"validation", "required", "mandatory", "optional", "rule", "rules"}},
	{TargetOrder, []string{"order", "move", "reorder", "sort", "before", "after"}},
	{TargetType, []string{"type", "format"}},
}

var actionKeywords = []keywordSet{
	{ActionAdd, []string{"add", "create", "include", "insert", "append", "new"}},
	{ActionRemove, []string{"remove", "delete", "drop", "exclude"}},
}

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "for": true,
	"in": true, "on": true, "with": true, "and": true, "please": true,
	"called": true, "named": true, "me": true, "my": true, "this": true,
	"that": true, "it": true, "be": true, "should": true, "make": true,
	"set": true, "is": true, "change": true, "modify": true, "update": true,
	"edit": true, "rename": true, "top": true, "first": true,
	"last": true, "bottom": true, "end": true, "start": true, "not": true,
	"as": true, "from": true, "into": true,
}

// ParseModification classifies an instruction into target, action and the
// name it refers to. Defaults are target field, action modify.
func ParseModification(instruction string) Modification {
	ws := words(instruction)
	m := Modification{
		Target: pickKeyword(targetKeywords, ws, TargetField),
		Action: pickKeyword(actionKeywords, ws, ActionModify),
		Raw:    instruction,
	}

	if m.Action == ActionModify {
		if left, right, ok := cutWord(ws, "to"); ok {
			m.Subject = subject(left)
			m.NewName = subject(right)
			return m
		}
	}
	m.Subject = subject(ws)
	return m
}

// ApplyModification parses instruction and applies it to a copy of p. The
// returned prediction's confidence is p.Confidence*0.95, floored at 0.5. An
// instruction that matches nothing still yields a copy with decayed
// confidence and a rationale saying so.
func ApplyModification(p StructurePrediction, instruction string) (StructurePrediction, Modification) {
	m := ParseModification(instruction)
	out := p.Clone()
	out.Alternatives = nil

	applied := apply(&out, m, words(instruction))

	out.Confidence = math.Max(modificationFloor, p.Confidence*modificationDecay)
	note := fmt.Sprintf("%s %s", m.Action, m.Target)
	if m.Subject != "" {
		note += fmt.Sprintf(" %q", m.Subject)
	}
	if !applied {
		note += " (no matching element, unchanged)"
	}
	out.Rationale = strings.TrimSpace(out.Rationale + " Modified: " + note + ".")
	return out, m
}

func apply(p *StructurePrediction, m Modification, ws []string) bool {
	switch m.Target {
	case TargetSection:
		return applySection(p, m)
	case TargetField:
		return applyField(p, m)
	case TargetWorkflow:
		return applyWorkflow(p, m)
	case TargetValidation:
		return applyValidation(p, m, ws)
	case TargetOrder:
		return applyOrder(p, m, ws)
	case TargetType:
		return applyType(p, m, ws)
	}
	return false
}

func applySection(p *StructurePrediction, m Modification) bool {
	switch m.Action {
	case ActionAdd:
		name := m.Subject
		if name == "" {
			name = defaultSectionName
		}
		p.Sections = append(p.Sections, SectionPrediction{Name: name, Fields: []FieldPrediction{}})
		return true
	case ActionRemove:
		i := findSection(p.Sections, m.Subject)
		if i < 0 {
			return false
		}
		p.Sections = append(p.Sections[:i], p.Sections[i+1:]...)
		return true
	default:
		i := findSection(p.Sections, m.Subject)
		if i < 0 || m.NewName == "" {
			return false
		}
		p.Sections[i].Name = m.NewName
		return true
	}
}

func applyField(p *StructurePrediction, m Modification) bool {
	switch m.Action {
	case ActionAdd:
		label := m.Subject
		if label == "" {
			label = defaultFieldLabel
		}
		if len(p.Sections) == 0 {
			p.Sections = append(p.Sections, SectionPrediction{Name: "General"})
		}
		last := &p.Sections[len(p.Sections)-1]
		last.Fields = append(last.Fields, FieldPrediction{Name: Slugify(label), Label: label, Type: TypeText})
		return true
	case ActionRemove:
		si, fi := findField(p.Sections, m.Subject)
		if si < 0 {
			return false
		}
		s := &p.Sections[si]
		s.Fields = append(s.Fields[:fi], s.Fields[fi+1:]...)
		return true
	default:
		si, fi := findField(p.Sections, m.Subject)
		if si < 0 || m.NewName == "" {
			return false
		}
		f := &p.Sections[si].Fields[fi]
		if t := strings.ToLower(m.NewName); IsFieldType(t) {
			// "change location field to number"
			f.Type = t
			return true
		}
		f.Label = m.NewName
		f.Name = Slugify(m.NewName)
		return true
	}
}

func applyWorkflow(p *StructurePrediction, m Modification) bool {
	switch m.Action {
	case ActionAdd:
		name := m.Subject
		if name == "" {
			name = defaultWorkflowStep
		}
		p.Workflow = append(p.Workflow, WorkflowStep{
			Name:     name,
			Type:     InferStepType(name),
			Assignee: InferAssignee(name),
		})
	case ActionRemove:
		i := findStep(p.Workflow, m.Subject)
		if i < 0 {
			return false
		}
		p.Workflow = append(p.Workflow[:i], p.Workflow[i+1:]...)
	default:
		i := findStep(p.Workflow, m.Subject)
		if i < 0 || m.NewName == "" {
			return false
		}
		p.Workflow[i].Name = m.NewName
	}
	renumber(p.Workflow)
	return true
}

// applyValidation toggles the required flag. "optional", "not required" and
// remove actions clear it; anything else sets it.
func applyValidation(p *StructurePrediction, m Modification, ws []string) bool {
	si, fi := findField(p.Sections, m.Subject)
	if si < 0 {
		return false
	}
	required := true
	if m.Action == ActionRemove || hasWord(ws, "optional") || hasWord(ws, "not") {
		required = false
	}
	p.Sections[si].Fields[fi].Required = required
	return true
}

// applyOrder moves the named section, or failing that the named field within
// its section, to the front; "last", "bottom" or "end" move it to the back.
func applyOrder(p *StructurePrediction, m Modification, ws []string) bool {
	toEnd := hasWord(ws, "last") || hasWord(ws, "bottom") || hasWord(ws, "end")
	if i := findSection(p.Sections, m.Subject); i >= 0 {
		p.Sections = move(p.Sections, i, toEnd)
		return true
	}
	si, fi := findField(p.Sections, m.Subject)
	if si < 0 {
		return false
	}
	p.Sections[si].Fields = move(p.Sections[si].Fields, fi, toEnd)
	return true
}

func applyType(p *StructurePrediction, m Modification, ws []string) bool {
	newType := ""
	for _, w := range ws {
		if IsFieldType(w) {
			newType = w
		}
	}
	if newType == "" {
		return false
	}
	si, fi := findField(p.Sections, m.Subject)
	if si < 0 {
		si, fi = findField(p.Sections, stripWords(m.Subject, FieldTypes))
	}
	if si < 0 {
		return false
	}
	p.Sections[si].Fields[fi].Type = newType
	return true
}

func move[T any](items []T, i int, toEnd bool) []T {
	item := items[i]
	rest := append(append([]T(nil), items[:i]...), items[i+1:]...)
	if toEnd {
		return append(rest, item)
	}
	return append([]T{item}, rest...)
}

func renumber(steps []WorkflowStep) {
	for i := range steps {
		steps[i].Order = i + 1
		if i == 0 {
			steps[i].Condition = ""
		} else {
			steps[i].Condition = ConditionPreviousStep
		}
	}
}

// ─── Lookup helpers ──────────────────────────────────────────────────────────

func matchesName(label, name, subject string) bool {
	if subject == "" {
		return false
	}
	s := strings.ToLower(subject)
	return strings.Contains(strings.ToLower(label), s) || name == Slugify(subject)
}

func findSection(sections []SectionPrediction, subject string) int {
	for i, s := range sections {
		if matchesName(s.Name, Slugify(s.Name), subject) {
			return i
		}
	}
	return -1
}

func findField(sections []SectionPrediction, subject string) (int, int) {
	for si, s := range sections {
		for fi, f := range s.Fields {
			if matchesName(f.Label, f.Name, subject) {
				return si, fi
			}
		}
	}
	return -1, -1
}

func findStep(steps []WorkflowStep, subject string) int {
	for i, s := range steps {
		if matchesName(s.Name, Slugify(s.Name), subject) {
			return i
		}
	}
	return -1
}

// ─── Word helpers ────────────────────────────────────────────────────────────

func words(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.Trim(f, ".,;:!?\"'()[]"); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func hasWord(ws []string, w string) bool {
	for _, x := range ws {
		if x == w {
			return true
		}
	}
	return false
}

func pickKeyword(sets []keywordSet, ws []string, fallback string) string {
	for _, set := range sets {
		for _, kw := range set.words {
			if hasWord(ws, kw) {
				return set.name
			}
		}
	}
	return fallback
}

func cutWord(ws []string, sep string) ([]string, []string, bool) {
	for i, w := range ws {
		if w == sep && i > 0 && i < len(ws)-1 {
			return ws[:i], ws[i+1:], true
		}
	}
	return nil, nil, false
}

var keywordWords = func() map[string]bool {
	m := make(map[string]bool)
	for _, sets := range [][]keywordSet{targetKeywords, actionKeywords} {
		for _, set := range sets {
			for _, w := range set.words {
				m[w] = true
			}
		}
	}
	return m
}()

// subject drops filler and keyword words and humanises what is left.
func subject(ws []string) string {
	kept := make([]string, 0, len(ws))
	for _, w := range ws {
		if fillerWords[w] || keywordWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return ""
	}
	return Humanize(strings.Join(kept, " "))
}

func stripWords(s string, drop []string) string {
	ws := strings.Fields(s)
	kept := ws[:0]
	for _, w := range ws {
		if !hasWord(drop, strings.ToLower(w)) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
