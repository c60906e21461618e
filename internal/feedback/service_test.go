package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type failingSink struct{ calls int }

func (f *failingSink) SaveLearningSignal(context.Context, LearningSignal) error {
	f.calls++
	return errors.New("disk full")
}

func newTestService(t *testing.T, sink Sink) *Service {
	return NewService(sink, WithClock(func() time.Time { return fixedNow }), WithLogger(zaptest.NewLogger(t)))
}

func TestWeight(t *testing.T) {
	tests := []struct {
		outcome Outcome
		mods    int
		rating  int
		want    float64
	}{
		{OutcomeAccepted, 0, 0, 1.0},
		{OutcomeAccepted, 3, 0, 0.7},
		{OutcomeAccepted, 20, 0, 0.3},
		{OutcomeModified, 0, 0, 0.5},
		{OutcomeModified, 2, 0, 0.4},
		{OutcomeModified, 50, 0, 0.1},
		{OutcomeRejected, 4, 0, -1.0},
		{OutcomeAccepted, 0, 5, 1.0},
		{OutcomeAccepted, 0, 1, 0.6},
		{OutcomeRejected, 0, 3, -0.8},
	}
	for _, tt := range tests {
		got := Weight(tt.outcome, tt.mods, tt.rating)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Weight(%s, %d, %d) = %v, want %v", tt.outcome, tt.mods, tt.rating, got, tt.want)
		}
	}
}

func TestRecordModification_EmptySession(t *testing.T) {
	s := newTestService(t, nil)
	assert.ErrorIs(t, s.RecordModification("  ", ModificationEvent{}), ErrEmptySession)
}

func TestRecordModification_BuffersPerSession(t *testing.T) {
	s := newTestService(t, nil)
	require.NoError(t, s.RecordModification("a", ModificationEvent{Instruction: "add a section"}))
	require.NoError(t, s.RecordModification("a", ModificationEvent{Instruction: "remove a field"}))
	require.NoError(t, s.RecordModification("b", ModificationEvent{Instruction: "rename x to y"}))

	a := s.Pending("a")
	require.Len(t, a, 2)
	assert.Equal(t, "a", a[0].SessionID)
	assert.Equal(t, fixedNow, a[0].At)
	assert.Len(t, s.Pending("b"), 1)
	assert.Empty(t, s.Pending("c"))
}

func TestSubmitFeedback_DerivesSignalAndClearsBuffer(t *testing.T) {
	sink := &MemorySink{}
	s := newTestService(t, sink)
	require.NoError(t, s.RecordModification("sess", ModificationEvent{Instruction: "add a photo section"}))
	require.NoError(t, s.RecordModification("sess", ModificationEvent{Instruction: "make location optional"}))

	sig, err := s.SubmitFeedback(context.Background(), Feedback{
		SessionID: "sess", PatternID: "risk-assessment", TenantID: "acme", Outcome: OutcomeAccepted,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sig.ID)
	assert.InDelta(t, 0.8, sig.Weight, 1e-9)
	assert.Len(t, sig.Modifications, 2)
	assert.Equal(t, fixedNow, sig.CreatedAt)
	assert.Empty(t, s.Pending("sess"))

	stored := sink.Signals()
	require.Len(t, stored, 1)
	assert.Equal(t, sig.ID, stored[0].ID)
}

func TestSubmitFeedback_SinkFailureKeepsBuffer(t *testing.T) {
	sink := &failingSink{}
	s := newTestService(t, sink)
	require.NoError(t, s.RecordModification("sess", ModificationEvent{Instruction: "add a field"}))

	_, err := s.SubmitFeedback(context.Background(), Feedback{SessionID: "sess", Outcome: OutcomeModified})
	require.Error(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, s.Pending("sess"), 1)
}

func TestSubmitFeedback_Validation(t *testing.T) {
	s := newTestService(t, nil)

	_, err := s.SubmitFeedback(context.Background(), Feedback{Outcome: OutcomeAccepted})
	assert.ErrorIs(t, err, ErrEmptySession)

	_, err = s.SubmitFeedback(context.Background(), Feedback{SessionID: "s", Outcome: "loved"})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = s.SubmitFeedback(context.Background(), Feedback{SessionID: "s", Outcome: OutcomeAccepted, Rating: 9})
	assert.Error(t, err)
}

func TestSubmitFeedback_NoModifications(t *testing.T) {
	s := newTestService(t, nil)
	sig, err := s.SubmitFeedback(context.Background(), Feedback{SessionID: "s", Outcome: OutcomeRejected})
	require.NoError(t, err)
	assert.Equal(t, -1.0, sig.Weight)
	assert.NotNil(t, sig.Modifications)
	assert.Empty(t, sig.Modifications)
}
