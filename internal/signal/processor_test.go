package signal

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ClassifyIntent ---

func TestClassifyIntent_CreateAssessmentModule(t *testing.T) {
	c := NewProcessor().ClassifyIntent("create assessment module")

	if c.Intent != IntentCreate {
		t.Fatalf("intent = %s, want CREATE", c.Intent)
	}
	// "create" at index 0 of 3 words: (1 + 1*0.5) * 1.0 = 1.5, confidence 0.75.
	if math.Abs(c.Confidence-0.75) > 1e-9 {
		t.Errorf("confidence = %v, want 0.75", c.Confidence)
	}
	if c.Domain != "assessment" {
		t.Errorf("domain = %q, want assessment", c.Domain)
	}
	assert.Equal(t, []string{"assessment"}, c.Entities)
}

func TestClassifyIntent_NoKeywordFloorsConfidence(t *testing.T) {
	c := NewProcessor().ClassifyIntent("the quick brown fox")
	if c.Confidence != MinConfidence {
		t.Errorf("confidence = %v, want %v", c.Confidence, MinConfidence)
	}
	if c.Intent != IntentCreate {
		t.Errorf("intent = %s, want first enumerated intent on all-zero scores", c.Intent)
	}
}

func TestClassifyIntent_EmptyInput(t *testing.T) {
	c := NewProcessor().ClassifyIntent("")
	if c.Confidence != MinConfidence {
		t.Errorf("confidence = %v, want %v", c.Confidence, MinConfidence)
	}
	if c.Entities == nil {
		t.Error("entities should be an empty slice, not nil")
	}
}

func TestClassifyIntent_EarlierKeywordScoresHigher(t *testing.T) {
	p := NewProcessor()
	early := p.ClassifyIntent("delete the old incident report form")
	late := p.ClassifyIntent("the old incident report form delete")
	if early.Scores[IntentDelete] <= late.Scores[IntentDelete] {
		t.Errorf("early score %v should exceed late score %v",
			early.Scores[IntentDelete], late.Scores[IntentDelete])
	}
}

func TestClassifyIntent_TieKeepsFirstEnumerated(t *testing.T) {
	p := &Processor{intents: IntentKeywords{
		IntentModify: {"alpha": 1},
		IntentDelete: {"alpha": 1},
	}}
	c := p.ClassifyIntent("alpha beta")
	assert.Equal(t, IntentModify, c.Intent)
	assert.Equal(t, c.Scores[IntentModify], c.Scores[IntentDelete])
}

func TestClassifyIntent_ConfidenceCappedAtOne(t *testing.T) {
	c := NewProcessor().ClassifyIntent("create build generate make design a new form")
	if c.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", c.Confidence)
	}
}

func TestClassifyIntent_PunctuationStripped(t *testing.T) {
	c := NewProcessor().ClassifyIntent("Please, CREATE! an inspection checklist.")
	assert.Equal(t, IntentCreate, c.Intent)
	assert.Equal(t, "inspection", c.Domain)
	assert.Equal(t, []string{"inspection", "checklist"}, c.Entities)
}

func TestClassifyIntent_DomainOrderFirstMatchWins(t *testing.T) {
	// Mentions both a risk (assessment) and an incident; assessment is listed first.
	c := NewProcessor().ClassifyIntent("create an incident risk form")
	assert.Equal(t, "assessment", c.Domain)
}

func TestClassifyIntent_QuotedEntitiesFirst(t *testing.T) {
	c := NewProcessor().ClassifyIntent(`create a "Forklift Check" incident form for each incident`)
	assert.Equal(t, "incident", c.Domain)
	assert.Equal(t, []string{"Forklift Check", "incident"}, c.Entities)
}

func TestClassifyIntent_EntitiesDeduplicatedCaseInsensitive(t *testing.T) {
	c := NewProcessor().ClassifyIntent(`create "Risk" risk assessment`)
	assert.Equal(t, []string{"Risk", "assessment"}, c.Entities)
}

func TestClassifyIntent_ApostropheIsNotAQuote(t *testing.T) {
	c := NewProcessor().ClassifyIntent("create the team's training course")
	assert.Equal(t, []string{"training", "course"}, c.Entities)
}

// --- DetectAnomalies ---

func anomalyTypes(as []Anomaly) []AnomalyType {
	out := make([]AnomalyType, len(as))
	for i, a := range as {
		out[i] = a.Type
	}
	return out
}

func TestDetectAnomalies_ShortInput(t *testing.T) {
	p := NewProcessor()
	for _, in := range []string{"", "x", "make it"} {
		c := p.ClassifyIntent(in)
		got := anomalyTypes(p.DetectAnomalies(in, c))
		assert.Contains(t, got, AnomalyInsufficientInput, "input %q", in)
	}
}

func TestDetectAnomalies_LongInput(t *testing.T) {
	p := NewProcessor()
	in := "create an assessment " + strings.Repeat("a", 1000)
	got := anomalyTypes(p.DetectAnomalies(in, p.ClassifyIntent(in)))
	assert.Contains(t, got, AnomalyComplexInput)
	assert.NotContains(t, got, AnomalyInsufficientInput)
}

func TestDetectAnomalies_Conflicting(t *testing.T) {
	p := NewProcessor()
	in := "create or delete the assessment form"
	got := anomalyTypes(p.DetectAnomalies(in, p.ClassifyIntent(in)))
	assert.Contains(t, got, AnomalyConflictingIntents)
}

func TestDetectAnomalies_MissingEntitiesSkippedForQuery(t *testing.T) {
	p := NewProcessor()

	query := "list all my forms please"
	qc := p.ClassifyIntent(query)
	require.Equal(t, IntentQuery, qc.Intent)
	assert.NotContains(t, anomalyTypes(p.DetectAnomalies(query, qc)), AnomalyMissingEntities)

	create := "make something useful"
	cc := p.ClassifyIntent(create)
	require.Equal(t, IntentCreate, cc.Intent)
	assert.Contains(t, anomalyTypes(p.DetectAnomalies(create, cc)), AnomalyMissingEntities)
}

func TestDetectAnomalies_CleanInput(t *testing.T) {
	p := NewProcessor()
	in := "create assessment module"
	assert.Empty(t, p.DetectAnomalies(in, p.ClassifyIntent(in)))
}

// --- Process ---

func TestProcess_BuildsFullSignal(t *testing.T) {
	s, err := NewProcessor().Process("create assessment module", []string{"site=north plant", "quarterly review"})
	require.NoError(t, err)

	assert.Equal(t, "create assessment module", s.Raw)
	assert.Equal(t, "prediction", s.Routing.Route)
	assert.False(t, s.Routing.NeedsClarification)
	assert.Equal(t, []ContextSignal{
		{Source: "caller", Key: "site", Value: "north plant"},
		{Source: "caller", Key: "note", Value: "quarterly review"},
		{Source: "derived", Key: "domain", Value: "assessment"},
		{Source: "derived", Key: "entity", Value: "assessment"},
	}, s.ContextSignals)
}

func TestProcess_ShortInputNeedsClarification(t *testing.T) {
	s, err := NewProcessor().Process("hi", nil)
	require.NoError(t, err)
	assert.True(t, s.HasAnomaly(AnomalyInsufficientInput))
	assert.True(t, s.Routing.NeedsClarification)
}

func TestProcess_RoutesPerIntent(t *testing.T) {
	p := NewProcessor()
	tests := map[string]string{
		"update the incident form":      "modification",
		"show me every inspection":      "query",
		"validate my training course":   "validation",
		"remove the maintenance module": "deletion",
	}
	for in, want := range tests {
		s, err := p.Process(in, nil)
		require.NoError(t, err)
		assert.Equal(t, want, s.Routing.Route, "input %q", in)
	}
}

func TestProcess_InvalidUTF8(t *testing.T) {
	_, err := NewProcessor().Process("create \xff\xfe form", nil)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}
