package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_CreatesDBFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "blueprint.db"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "blueprint.db"), s.Path())
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, s.SavePatternVector(ctx, PatternVector{PatternID: "p", Model: "hash", Vector: []float32{1}}))
	require.NoError(t, s.Close())

	s, err = New(Config{DataDir: dir})
	require.NoError(t, err)
	defer s.Close()
	v, err := s.GetPatternVector(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v.Vector)
}

func TestNew_OpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := New(Config{DataDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ".blueprint", filepath.Base(cfg.DataDir))
}

// ─── Pattern vectors ────────────────────────────────────────────────────────

func TestPatternVector_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePatternVector(ctx, PatternVector{
		PatternID: "risk-assessment",
		Model:     "hash-256",
		Vector:    []float32{0.5, -0.25},
	}))

	v, err := s.GetPatternVector(ctx, "risk-assessment")
	require.NoError(t, err)
	assert.Equal(t, "hash-256", v.Model)
	assert.Equal(t, []float32{0.5, -0.25}, v.Vector)
	assert.Nil(t, v.Affinity)
	assert.True(t, v.UpdatedAt.Equal(testNow))
}

func TestPatternVector_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePatternVector(ctx, PatternVector{PatternID: "p", Model: "a", Vector: []float32{1}}))
	require.NoError(t, s.SavePatternVector(ctx, PatternVector{
		PatternID: "p", Model: "b", Vector: []float32{2}, Affinity: []float32{0.1},
	}))

	v, err := s.GetPatternVector(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "b", v.Model)
	assert.Equal(t, []float32{2}, v.Vector)
	assert.Equal(t, []float32{0.1}, v.Affinity)

	all, err := s.ListPatternVectors(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPatternVector_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPatternVector(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPatternVectors_Ordered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.SavePatternVector(ctx, PatternVector{PatternID: id, Model: "m", Vector: []float32{1}}))
	}

	all, err := s.ListPatternVectors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].PatternID)
	assert.Equal(t, "b", all[1].PatternID)
	assert.Equal(t, "c", all[2].PatternID)
}

func TestUpdateAffinity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePatternVector(ctx, PatternVector{PatternID: "p", Model: "m", Vector: []float32{1, 0}}))

	require.NoError(t, s.UpdateAffinity(ctx, "p", []float32{0.1, 0.2}))
	v, err := s.GetPatternVector(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v.Vector)
	assert.Equal(t, []float32{0.1, 0.2}, v.Affinity)

	assert.ErrorIs(t, s.UpdateAffinity(ctx, "missing", []float32{1}), ErrNotFound)
}

// ─── Tenant contexts ────────────────────────────────────────────────────────

func TestTenantContext_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTenantContext(ctx, TenantContext{
		TenantID:    "acme/mine-site",
		Model:       "hash-256",
		Embedding:   []float32{0.3, 0.4},
		SampleCount: 2,
	}))

	tc, err := s.GetTenantContext(ctx, "acme/mine-site")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.3, 0.4}, tc.Embedding)
	assert.Equal(t, 2, tc.SampleCount)
	assert.True(t, tc.UpdatedAt.Equal(testNow))

	_, err = s.GetTenantContext(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ─── Confidence snapshots ───────────────────────────────────────────────────

func TestConfidence_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	grounded := testNow.Add(-48 * time.Hour)

	require.NoError(t, s.SaveConfidence(ctx, "a", patterns.PatternConfidence{
		Base: 0.9, DecayRate: 0.01, GroundingCount: 3, LastGrounded: &grounded,
	}))
	require.NoError(t, s.SaveConfidence(ctx, "b", patterns.PatternConfidence{Base: 0.8, DecayRate: 0.02}))

	got, err := s.LoadConfidence(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	a := got["a"]
	assert.Equal(t, 0.9, a.Base)
	assert.Equal(t, 3, a.GroundingCount)
	require.NotNil(t, a.LastGrounded)
	assert.True(t, a.LastGrounded.Equal(grounded))

	assert.Nil(t, got["b"].LastGrounded)
	assert.Equal(t, 0.02, got["b"].DecayRate)
}

// ─── Learning signals ───────────────────────────────────────────────────────

func TestLearningSignals_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := feedback.LearningSignal{
		ID: "sig-1", SessionID: "s1", PatternID: "risk-assessment",
		Outcome: feedback.OutcomeAccepted, Weight: 1, CreatedAt: testNow.Add(-time.Hour),
	}
	newer := feedback.LearningSignal{
		ID: "sig-2", SessionID: "s2", PatternID: "risk-assessment", TenantID: "acme",
		Outcome: feedback.OutcomeModified, Weight: 0.8, Rating: 4, Comment: "close",
		Modifications: []feedback.ModificationEvent{
			{SessionID: "s2", Instruction: "add field supervisor", Target: "field", Action: "add", At: testNow},
		},
		CreatedAt: testNow,
	}
	other := feedback.LearningSignal{
		ID: "sig-3", SessionID: "s3", PatternID: "incident-report",
		Outcome: feedback.OutcomeRejected, Weight: 0.2, CreatedAt: testNow,
	}
	for _, sig := range []feedback.LearningSignal{older, newer, other} {
		require.NoError(t, s.SaveLearningSignal(ctx, sig))
	}

	got, err := s.ListLearningSignals(ctx, "risk-assessment", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sig-2", got[0].ID)
	assert.Equal(t, "acme", got[0].TenantID)
	assert.Equal(t, "close", got[0].Comment)
	require.Len(t, got[0].Modifications, 1)
	assert.Equal(t, "add field supervisor", got[0].Modifications[0].Instruction)
	assert.Empty(t, got[1].Modifications)

	all, err := s.ListLearningSignals(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLearningSignals_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sig := feedback.LearningSignal{ID: "dup", SessionID: "s", Outcome: feedback.OutcomeAccepted, CreatedAt: testNow}

	require.NoError(t, s.SaveLearningSignal(ctx, sig))
	assert.Error(t, s.SaveLearningSignal(ctx, sig))
}

// ─── Outcomes ───────────────────────────────────────────────────────────────

func TestOutcomes_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []feedback.OutcomeEvent{
		{PatternID: "p", TenantID: "acme", Outcome: feedback.OutcomeAccepted, Delta: 0.1, Applied: true, At: testNow},
		{PatternID: "q", Outcome: feedback.OutcomeRejected, Delta: -0.1, At: testNow},
		{PatternID: "p", Outcome: feedback.OutcomeModified, At: testNow},
	}
	for _, e := range events {
		require.NoError(t, s.SaveOutcome(ctx, e))
	}

	got, err := s.ListOutcomes(ctx, "p")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, feedback.OutcomeAccepted, got[0].Outcome)
	assert.True(t, got[0].Applied)
	assert.Equal(t, "acme", got[0].TenantID)
	assert.Equal(t, 0.1, got[0].Delta)
	assert.False(t, got[1].Applied)

	all, err := s.ListOutcomes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePatternVector(ctx, PatternVector{PatternID: "p", Model: "m", Vector: []float32{1}}))
	require.NoError(t, s.SaveOutcome(ctx, feedback.OutcomeEvent{PatternID: "p", Outcome: feedback.OutcomeAccepted, At: testNow}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{PatternVectors: 1, Outcomes: 1}, st)
}

var (
	_ feedback.Sink        = (*Store)(nil)
	_ feedback.OutcomeSink = (*Store)(nil)
)
