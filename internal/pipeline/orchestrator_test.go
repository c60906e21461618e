package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/signal"
	"github.com/HendryAvila/blueprint/internal/validation"
)

// --- Test doubles ---

type stubPredictor struct {
	pred   *prediction.StructurePrediction
	err    error
	panics bool
	tenant *patterns.TenantContext
}

func (s *stubPredictor) Predict(_ context.Context, _ signal.ProcessedSignal, tenant *patterns.TenantContext) (*prediction.StructurePrediction, error) {
	s.tenant = tenant
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	p := s.pred.Clone()
	return &p, nil
}

// countingValidator wraps a Validator and counts AutoFix calls.
type countingValidator struct {
	Validator
	autoFixCalls int
}

func (c *countingValidator) AutoFix(ctx context.Context, p *prediction.StructurePrediction, r *validation.Result) (*prediction.StructurePrediction, error) {
	c.autoFixCalls++
	return c.Validator.AutoFix(ctx, p, r)
}

// stubbornValidator always fails with a fix that never helps.
type stubbornValidator struct {
	validateErr  error
	autoFixCalls int
}

func (s *stubbornValidator) Validate(context.Context, *prediction.StructurePrediction) (*validation.Result, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return &validation.Result{Errors: []validation.Issue{{
		Code: "always", Severity: validation.SeverityError,
		Fix: &validation.Fix{Action: validation.ActionModify, Target: "nothing"},
	}}}, nil
}

func (s *stubbornValidator) AutoFix(_ context.Context, p *prediction.StructurePrediction, _ *validation.Result) (*prediction.StructurePrediction, error) {
	s.autoFixCalls++
	out := p.Clone()
	return &out, nil
}

type fakeIndex struct {
	available  bool
	calls      int
	lastID     string
	lastDelta  float64
	lastVector []float32
}

func (f *fakeIndex) IsAvailable() bool   { return f.available }
func (f *fakeIndex) IsInitialized() bool { return f.available }
func (f *fakeIndex) FindBestMatch(context.Context, string, float64, *patterns.TenantContext) *patterns.PatternMatch {
	return nil
}
func (f *fakeIndex) UpdatePatternAffinity(_ context.Context, id string, emb []float32, delta float64) bool {
	f.calls++
	f.lastID, f.lastDelta, f.lastVector = id, delta, emb
	return true
}

type fakeTenants map[string]*patterns.TenantContext

func (f fakeTenants) GetContext(_ context.Context, id string) *patterns.TenantContext { return f[id] }

func realComponents(t *testing.T) (*signal.Processor, *prediction.Engine, *validation.Service) {
	t.Helper()
	lib := patterns.NewLibrary()
	ps, err := patterns.Builtin()
	require.NoError(t, err)
	require.NoError(t, lib.RegisterAll(ps))
	return signal.NewProcessor(), prediction.NewEngine(lib), validation.NewService()
}

func emptySectionPrediction() *prediction.StructurePrediction {
	return &prediction.StructurePrediction{
		ModuleType: "incident",
		Confidence: 0.7,
		Sections: []prediction.SectionPrediction{
			{Name: "Details", Fields: []prediction.FieldPrediction{{Name: "title", Label: "Title", Type: "text", Required: true}}},
			{Name: "Evidence"},
		},
	}
}

func stageNames(rs []StageResult) []Stage {
	out := make([]Stage, len(rs))
	for i, r := range rs {
		out[i] = r.Stage
	}
	return out
}

// --- Execute ---

func TestExecute_AssessmentEndToEnd(t *testing.T) {
	proc, pred, val := realComponents(t)
	o := New(proc, pred, val, WithLogger(zaptest.NewLogger(t)))

	res := o.Execute(context.Background(), Request{UserInput: "create assessment module"})

	require.True(t, res.Success, "stages: %+v", res.Stages)
	require.NotNil(t, res.Prediction)
	assert.Equal(t, "assessment", res.Prediction.ModuleType)
	assert.NotEmpty(t, res.Prediction.Sections)
	assert.True(t, res.Validation.Valid)
	assert.False(t, res.AutoFixed)
	assert.Equal(t, []Stage{StageSignalProcessing, StagePrediction, StageValidation}, stageNames(res.Stages))
	assert.NotEmpty(t, res.RequestID)
	require.NotNil(t, res.Clarity)
	assert.True(t, res.Clarity.GatePassed)
}

func TestExecute_VagueInput(t *testing.T) {
	proc, pred, val := realComponents(t)
	res := New(proc, pred, val).Execute(context.Background(), Request{UserInput: "make something"})

	require.NotNil(t, res.Prediction)
	assert.Less(t, res.Prediction.Confidence, 0.8)
	assert.True(t, res.Success)
	assert.False(t, res.Clarity.GatePassed)
}

func TestExecute_AutoFixRepairs(t *testing.T) {
	proc, _, val := realComponents(t)
	cv := &countingValidator{Validator: val}
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, cv)

	res := o.Execute(context.Background(), Request{
		UserInput: "create an incident form",
		Config:    &Config{EnableAutoFix: true, MaxAutoFixAttempts: 3},
	})

	assert.True(t, res.AutoFixed)
	assert.True(t, res.Success)
	assert.True(t, res.Validation.Valid)
	assert.LessOrEqual(t, cv.autoFixCalls, 3)
	assert.Equal(t, 1, res.AutoFixAttempts)
	require.Len(t, res.AutoFixTrace, 1)
	assert.Equal(t, validation.ActionAdd, res.AutoFixTrace[0].Fixes[0].Action)
	assert.Equal(t, "evidence_notes", res.Prediction.Sections[1].Fields[0].Name)
	assert.Equal(t, StageAutoFix, res.Stages[len(res.Stages)-1].Stage)
}

func TestExecute_AutoFixBounded(t *testing.T) {
	proc, _, _ := realComponents(t)
	sv := &stubbornValidator{}
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, sv)

	res := o.Execute(context.Background(), Request{UserInput: "create an incident form"})

	assert.Equal(t, DefaultMaxAutoFixAttempts, sv.autoFixCalls)
	assert.Equal(t, DefaultMaxAutoFixAttempts, res.AutoFixAttempts)
	assert.False(t, res.Success)
	assert.False(t, res.AutoFixed)
	assert.NotNil(t, res.Prediction, "best-effort prediction is still returned")
}

func TestExecute_AutoFixDisabled(t *testing.T) {
	proc, _, val := realComponents(t)
	cv := &countingValidator{Validator: val}
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, cv, WithConfig(Config{EnableAutoFix: false}))

	res := o.Execute(context.Background(), Request{UserInput: "create an incident form"})
	assert.False(t, res.Success)
	assert.Zero(t, cv.autoFixCalls)
	assert.Len(t, res.Stages, 3)
}

func TestExecute_OverridesKeepConfiguredAttempts(t *testing.T) {
	proc, _, _ := realComponents(t)
	sv := &stubbornValidator{}
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, sv,
		WithConfig(Config{EnableAutoFix: false, MaxAutoFixAttempts: 0}))

	on := true
	res := o.Execute(context.Background(), Request{
		UserInput: "create an incident form",
		Overrides: Overrides{EnableAutoFix: &on},
	})
	assert.Zero(t, sv.autoFixCalls)
	assert.Zero(t, res.AutoFixAttempts)
	assert.False(t, res.Success)

	two := 2
	res = o.Execute(context.Background(), Request{
		UserInput: "create an incident form",
		Overrides: Overrides{EnableAutoFix: &on, MaxAutoFixAttempts: &two},
	})
	assert.Equal(t, 2, res.AutoFixAttempts)
}

func TestExecute_NothingToFixStopsLoop(t *testing.T) {
	proc, _, _ := realComponents(t)
	v := &noFixValidator{}
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, v)

	res := o.Execute(context.Background(), Request{UserInput: "create an incident form"})
	assert.False(t, res.Success)
	assert.Zero(t, v.autoFixCalls)
	assert.Zero(t, res.AutoFixAttempts)
}

type noFixValidator struct{ stubbornValidator }

func (n *noFixValidator) Validate(context.Context, *prediction.StructurePrediction) (*validation.Result, error) {
	return &validation.Result{Errors: []validation.Issue{{Code: "unfixable", Severity: validation.SeverityError}}}, nil
}

func TestExecute_SignalFailureShortCircuits(t *testing.T) {
	proc, pred, val := realComponents(t)
	res := New(proc, pred, val).Execute(context.Background(), Request{UserInput: "create \xff form"})

	assert.False(t, res.Success)
	assert.Nil(t, res.Prediction)
	require.Len(t, res.Stages, 1)
	assert.False(t, res.Stages[0].Success)
	assert.Contains(t, res.Stages[0].Error, "UTF-8")
}

func TestExecute_PredictionErrorShortCircuits(t *testing.T) {
	proc, _, val := realComponents(t)
	res := New(proc, &stubPredictor{err: errors.New("index exploded")}, val).
		Execute(context.Background(), Request{UserInput: "create assessment module"})

	assert.False(t, res.Success)
	assert.Nil(t, res.Prediction)
	require.Len(t, res.Stages, 2)
	assert.Equal(t, "index exploded", res.Stages[1].Error)
}

func TestExecute_PanicIsRecovered(t *testing.T) {
	proc, _, val := realComponents(t)
	res := New(proc, &stubPredictor{panics: true}, val).
		Execute(context.Background(), Request{UserInput: "create assessment module"})

	assert.False(t, res.Success)
	require.Len(t, res.Stages, 2)
	assert.Contains(t, res.Stages[1].Error, "panic")
}

func TestExecute_ValidationErrorShortCircuits(t *testing.T) {
	proc, _, _ := realComponents(t)
	o := New(proc, &stubPredictor{pred: emptySectionPrediction()}, &stubbornValidator{validateErr: errors.New("validator down")})

	res := o.Execute(context.Background(), Request{UserInput: "create an incident form"})
	assert.False(t, res.Success)
	assert.Nil(t, res.Prediction)
	require.Len(t, res.Stages, 3)
	assert.False(t, res.Stages[2].Success)
}

func TestExecute_ResolvesTenant(t *testing.T) {
	proc, _, val := realComponents(t)
	sp := &stubPredictor{pred: emptySectionPrediction()}
	acme := &patterns.TenantContext{TenantID: "acme", Embedding: []float32{1, 0}}
	o := New(proc, sp, val, WithTenantResolver(fakeTenants{"acme": acme}))

	res := o.Execute(context.Background(), Request{UserInput: "create an incident form", TenantID: "acme"})
	assert.Equal(t, "acme", res.TenantID)
	assert.Same(t, acme, sp.tenant)

	// A tenant without a context yet keeps its id on the result.
	res = o.Execute(context.Background(), Request{UserInput: "create an incident form", TenantID: "unknown"})
	assert.Equal(t, "unknown", res.TenantID)
	assert.Nil(t, sp.tenant)

	res = o.Execute(context.Background(), Request{UserInput: "create an incident form"})
	assert.Empty(t, res.TenantID)
}

// --- RecordOutcome ---

func TestRecordOutcome_Deltas(t *testing.T) {
	proc, pred, val := realComponents(t)
	idx := &fakeIndex{available: true}
	sink := &feedback.MemorySink{}
	tenants := fakeTenants{"acme": {TenantID: "acme", Embedding: []float32{0.5, 0.5}}}
	o := New(proc, pred, val, WithVectorIndex(idx), WithOutcomeSink(sink), WithTenantResolver(tenants))

	ev, err := o.RecordOutcome(context.Background(), "risk-assessment", "acme", feedback.OutcomeAccepted)
	require.NoError(t, err)
	assert.True(t, ev.Applied)
	assert.Equal(t, 0.1, idx.lastDelta)
	assert.Equal(t, []float32{0.5, 0.5}, idx.lastVector)

	ev, err = o.RecordOutcome(context.Background(), "risk-assessment", "", feedback.OutcomeRejected)
	require.NoError(t, err)
	assert.True(t, ev.Applied)
	assert.Equal(t, -0.1, idx.lastDelta)
	assert.Nil(t, idx.lastVector)

	ev, err = o.RecordOutcome(context.Background(), "risk-assessment", "acme", feedback.OutcomeModified)
	require.NoError(t, err)
	assert.False(t, ev.Applied)
	assert.Equal(t, 2, idx.calls)

	assert.Len(t, sink.Outcomes(), 3)
}

func TestRecordOutcome_UsesClock(t *testing.T) {
	proc, pred, val := realComponents(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := &feedback.MemorySink{}
	o := New(proc, pred, val, WithOutcomeSink(sink), WithClock(func() time.Time { return at }))

	ev, err := o.RecordOutcome(context.Background(), "risk-assessment", "", feedback.OutcomeModified)
	require.NoError(t, err)
	assert.Equal(t, at, ev.At)
	require.Len(t, sink.Outcomes(), 1)
	assert.Equal(t, at, sink.Outcomes()[0].At)
}

func TestRecordOutcome_IndexUnavailable(t *testing.T) {
	proc, pred, val := realComponents(t)
	idx := &fakeIndex{available: false}
	o := New(proc, pred, val, WithVectorIndex(idx))

	ev, err := o.RecordOutcome(context.Background(), "risk-assessment", "", feedback.OutcomeAccepted)
	require.NoError(t, err)
	assert.False(t, ev.Applied)
	assert.Zero(t, idx.calls)
}

func TestRecordOutcome_NoIndex(t *testing.T) {
	proc, pred, val := realComponents(t)
	ev, err := New(proc, pred, val).RecordOutcome(context.Background(), "risk-assessment", "", feedback.OutcomeAccepted)
	require.NoError(t, err)
	assert.False(t, ev.Applied)
}

func TestRecordOutcome_InvalidInput(t *testing.T) {
	proc, pred, val := realComponents(t)
	o := New(proc, pred, val)

	_, err := o.RecordOutcome(context.Background(), "risk-assessment", "", "meh")
	assert.ErrorIs(t, err, feedback.ErrInvalidOutcome)

	_, err = o.RecordOutcome(context.Background(), "", "", feedback.OutcomeAccepted)
	assert.Error(t, err)
}
