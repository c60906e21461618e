// Package feedback captures what users do with predictions and turns it into
// weighted learning signals for offline analytics.
package feedback

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptySession is returned when a session ID is missing.
	ErrEmptySession = errors.New("feedback: empty session id")
	// ErrInvalidOutcome is returned for an unknown outcome value.
	ErrInvalidOutcome = errors.New("feedback: invalid outcome")
)

// Outcome is what the user did with a prediction.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeModified Outcome = "modified"
)

// ParseOutcome validates s.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeAccepted, OutcomeRejected, OutcomeModified:
		return o, nil
	}
	return "", ErrInvalidOutcome
}

// ModificationEvent is one edit a user made during a session.
type ModificationEvent struct {
	SessionID   string    `json:"session_id"`
	Instruction string    `json:"instruction"`
	Target      string    `json:"target,omitempty"`
	Action      string    `json:"action,omitempty"`
	At          time.Time `json:"at"`
}

// Feedback is the final verdict on a session's prediction.
type Feedback struct {
	SessionID string  `json:"session_id"`
	PatternID string  `json:"pattern_id,omitempty"`
	TenantID  string  `json:"tenant_id,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Rating    int     `json:"rating,omitempty"` // 1-5, 0 when not given
	Comment   string  `json:"comment,omitempty"`
}

// LearningSignal is the weighted record handed to analytics.
type LearningSignal struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"session_id"`
	PatternID     string              `json:"pattern_id,omitempty"`
	TenantID      string              `json:"tenant_id,omitempty"`
	Outcome       Outcome             `json:"outcome"`
	Weight        float64             `json:"weight"`
	Rating        int                 `json:"rating,omitempty"`
	Comment       string              `json:"comment,omitempty"`
	Modifications []ModificationEvent `json:"modifications"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OutcomeEvent records an affinity update request on a pattern.
type OutcomeEvent struct {
	PatternID string    `json:"pattern_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Delta     float64   `json:"delta"`
	Applied   bool      `json:"applied"`
	At        time.Time `json:"at"`
}

// Sink persists learning signals.
type Sink interface {
	SaveLearningSignal(ctx context.Context, s LearningSignal) error
}

// OutcomeSink persists outcome events.
type OutcomeSink interface {
	SaveOutcome(ctx context.Context, e OutcomeEvent) error
}
