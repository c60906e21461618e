package prediction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/signal"
)

// fakeIndex is a VectorIndex returning a fixed match.
type fakeIndex struct {
	available   bool
	initialized bool
	match       *patterns.PatternMatch
	queries     []string
	minScores   []float64
}

func (f *fakeIndex) IsAvailable() bool   { return f.available }
func (f *fakeIndex) IsInitialized() bool { return f.initialized }
func (f *fakeIndex) FindBestMatch(_ context.Context, text string, minScore float64, _ *patterns.TenantContext) *patterns.PatternMatch {
	f.queries = append(f.queries, text)
	f.minScores = append(f.minScores, minScore)
	if f.match == nil {
		return nil
	}
	m := *f.match
	return &m
}
func (f *fakeIndex) UpdatePatternAffinity(context.Context, string, []float32, float64) bool {
	return false
}

func builtinLibrary(t *testing.T) *patterns.Library {
	t.Helper()
	lib := patterns.NewLibrary()
	ps, err := patterns.Builtin()
	require.NoError(t, err)
	require.NoError(t, lib.RegisterAll(ps))
	return lib
}

func process(t *testing.T, text string) signal.ProcessedSignal {
	t.Helper()
	s, err := signal.NewProcessor().Process(text, nil)
	require.NoError(t, err)
	return s
}

// --- Predict ---

func TestPredict_AssessmentByRule(t *testing.T) {
	e := NewEngine(builtinLibrary(t), WithLogger(zaptest.NewLogger(t)))
	p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
	require.NoError(t, err)

	assert.Equal(t, "assessment", p.ModuleType)
	assert.Equal(t, "risk-assessment", p.PatternID)
	assert.Equal(t, SourceRule, p.Source)
	require.Len(t, p.Sections, 4)
	assert.InDelta(t, 0.6*0.675+0.4*0.75, p.Confidence, 1e-9)

	first := p.Sections[0]
	require.Len(t, first.Fields, 6, "5 default fields plus one per declared type")
	assert.Equal(t, FieldPrediction{Name: "assessment_title", Label: "Assessment Title", Type: TypeText, Required: true}, first.Fields[0])
	assert.Equal(t, TypeDate, first.Fields[1].Type)
	assert.Equal(t, TypeEmail, first.Fields[2].Type)
	assert.Equal(t, TypeTextarea, first.Fields[4].Type)
	assert.Equal(t, "assessment_details_text", first.Fields[5].Name)
	assert.False(t, first.Fields[5].Required)

	hazards := p.Sections[1]
	require.Len(t, hazards.Fields, 3)
	assert.Equal(t, "hazard_identification_select", hazards.Fields[1].Name)
}

func TestPredict_WorkflowSteps(t *testing.T) {
	e := NewEngine(builtinLibrary(t))
	p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
	require.NoError(t, err)

	want := []WorkflowStep{
		{Name: "Submit Assessment", Order: 1, Type: "submission", Assignee: "owner"},
		{Name: "Supervisor Review", Order: 2, Type: "review", Assignee: "supervisor", Condition: ConditionPreviousStep},
		{Name: "Manager Approval", Order: 3, Type: "approval", Assignee: "manager", Condition: ConditionPreviousStep},
		{Name: "Notify Team", Order: 4, Type: "notification", Assignee: "team", Condition: ConditionPreviousStep},
	}
	assert.Equal(t, want, p.Workflow)
}

func TestPredict_GenericFallback(t *testing.T) {
	e := NewEngine(builtinLibrary(t))
	p, err := e.Predict(context.Background(), process(t, "make something"), nil)
	require.NoError(t, err)

	assert.Equal(t, SourceGeneric, p.Source)
	assert.Equal(t, GenericConfidence, p.Confidence)
	assert.Equal(t, "general", p.ModuleType)
	require.Len(t, p.Sections, 1)
	var labels []string
	for _, f := range p.Sections[0].Fields {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Title", "Description", "Date"}, labels)
}

func TestPredict_VectorMatchWinsEvenWhenLower(t *testing.T) {
	lib := builtinLibrary(t)
	incident, err := lib.Get("incident-report")
	require.NoError(t, err)

	idx := &fakeIndex{available: true, initialized: true, match: &patterns.PatternMatch{Pattern: incident, Score: 0.31}}
	e := NewEngine(lib, WithVectorIndex(idx))
	p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
	require.NoError(t, err)

	assert.Equal(t, "incident-report", p.PatternID)
	assert.Equal(t, SourceVector, p.Source)
	require.Len(t, idx.queries, 1)
	assert.Equal(t, "assessment assessment create assessment module", idx.queries[0])
	assert.Equal(t, DefaultVectorMinScore, idx.minScores[0])
}

func TestPredict_VectorSkippedWhenUnavailable(t *testing.T) {
	for _, idx := range []*fakeIndex{
		{available: false, initialized: true},
		{available: true, initialized: false},
	} {
		e := NewEngine(builtinLibrary(t), WithVectorIndex(idx))
		p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
		require.NoError(t, err)
		assert.Equal(t, SourceRule, p.Source)
		assert.Empty(t, idx.queries)
	}
}

func TestPredict_VectorMissFallsBackToRule(t *testing.T) {
	idx := &fakeIndex{available: true, initialized: true}
	e := NewEngine(builtinLibrary(t), WithVectorIndex(idx))
	p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
	require.NoError(t, err)
	assert.Equal(t, "risk-assessment", p.PatternID)
	assert.Len(t, idx.queries, 1)
}

func TestPredict_Alternatives(t *testing.T) {
	lib := patterns.NewLibrary()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, lib.Register(patterns.Pattern{
			ID: id, Name: id, Category: "assessment",
			Structure: patterns.Structure{Sections: []patterns.SectionTemplate{{Name: "Main", FieldTypes: []string{"text"}}}},
			ApplicabilityRules: []patterns.ApplicabilityRule{
				{Field: patterns.FieldDomain, Operator: patterns.OpEquals, Value: "assessment", Weight: 0.5},
			},
		}))
	}
	e := NewEngine(lib)
	p, err := e.Predict(context.Background(), process(t, "create assessment module"), nil)
	require.NoError(t, err)

	assert.Equal(t, "a", p.PatternID)
	require.Len(t, p.Alternatives, 2)
	assert.Equal(t, "b", p.Alternatives[0].PatternID)
	assert.Equal(t, "c", p.Alternatives[1].PatternID)
}

func TestPredict_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(builtinLibrary(t)).Predict(ctx, process(t, "create assessment module"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredict_NoLibrary(t *testing.T) {
	_, err := NewEngine(nil).Predict(context.Background(), process(t, "create assessment module"), nil)
	assert.ErrorIs(t, err, ErrNoLibrary)
}

func TestMatchConfidence_Clamped(t *testing.T) {
	assert.Equal(t, GenericConfidence, matchConfidence(0, 0))
	assert.Equal(t, 0.95, matchConfidence(1, 1))
}

// --- Naming ---

func TestInferFieldType(t *testing.T) {
	tests := map[string]string{
		"assessment_date": TypeDate,
		"reporter_email":  TypeEmail,
		"serial_number":   TypeNumber,
		"head_count":      TypeNumber,
		"description":     TypeTextarea,
		"manager_comment": TypeTextarea,
		"status":          TypeSelect,
		"incident_type":   TypeSelect,
		"category":        TypeSelect,
		"location":        TypeText,
	}
	for name, want := range tests {
		if got := InferFieldType(name); got != want {
			t.Errorf("InferFieldType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSlugifyAndHumanize(t *testing.T) {
	assert.Equal(t, "hazard_identification", Slugify("Hazard Identification"))
	assert.Equal(t, "photo_evidence", Slugify("  Photo -- Evidence! "))
	assert.Equal(t, "Assessor Email", Humanize("assessor_email"))
	assert.Equal(t, "Photo Evidence", Humanize("photo evidence"))
}

func TestInferStepDefaults(t *testing.T) {
	assert.Equal(t, "task", InferStepType("do the thing"))
	assert.Equal(t, "owner", InferAssignee("do the thing"))
}
