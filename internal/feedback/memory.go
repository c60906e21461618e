package feedback

import (
	"context"
	"sync"
)

// MemorySink keeps signals and outcomes in memory. Used when no database is
// configured and in tests.
type MemorySink struct {
	mu       sync.Mutex
	signals  []LearningSignal
	outcomes []OutcomeEvent
}

// SaveLearningSignal implements Sink.
func (m *MemorySink) SaveLearningSignal(_ context.Context, s LearningSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

// SaveOutcome implements OutcomeSink.
func (m *MemorySink) SaveOutcome(_ context.Context, e OutcomeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, e)
	return nil
}

// Signals returns a copy of the stored signals.
func (m *MemorySink) Signals() []LearningSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LearningSignal(nil), m.signals...)
}

// Outcomes returns a copy of the stored outcome events.
func (m *MemorySink) Outcomes() []OutcomeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutcomeEvent(nil), m.outcomes...)
}
